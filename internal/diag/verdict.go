// Package diag classifies a completed diagnostic response into a verdict.
// Everything here is pure: no I/O, deterministic, order independent.
package diag

// Verdict is the overall outcome of one diagnostic run.
type Verdict uint8

const (
	// VerdictOK means every test that ran passed (or was skipped/warned).
	VerdictOK Verdict = iota

	// VerdictGenericFailure means at least one test failed, but no failure
	// indicates the device should be pulled from service.
	VerdictGenericFailure

	// VerdictIsolateFailure means at least one failure maps to the isolate
	// priority class: the affected device should be taken out of service.
	// Isolate dominates every other outcome.
	VerdictIsolateFailure

	// VerdictKilled means the run was aborted on an external signal.
	// Not a failure of the devices under test.
	VerdictKilled
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "pass"
	case VerdictGenericFailure:
		return "fail"
	case VerdictIsolateFailure:
		return "fail (isolate)"
	case VerdictKilled:
		return "killed"
	}
	return "unknown"
}
