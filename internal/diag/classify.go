package diag

import (
	"github.com/accelkit/acceldiag/internal/schema"
)

// Classify reduces a completed response to a verdict.
//
// Any failing test whose error records include an isolate-class code wins
// over everything else, no matter where it occurs: level-one table or any
// device slot. A fail status with no isolate error anywhere is a generic
// failure. Scan order does not affect the result.
func Classify(r *schema.RunResponse) Verdict {
	verdict := VerdictOK

	count := min(int(r.LevelOneCount), len(r.LevelOneResults))
	for i := 0; i < count; i++ {
		switch scanResult(&r.LevelOneResults[i]) {
		case VerdictIsolateFailure:
			return VerdictIsolateFailure
		case VerdictGenericFailure:
			verdict = VerdictGenericFailure
		}
	}

	// Results are written to device indices, so every slot must be scanned.
	for i := range r.Devices {
		for j := range r.Devices[i].Results {
			switch scanResult(&r.Devices[i].Results[j]) {
			case VerdictIsolateFailure:
				return VerdictIsolateFailure
			case VerdictGenericFailure:
				verdict = VerdictGenericFailure
			}
		}
	}

	return verdict
}

func scanResult(t *schema.TestResultV5) Verdict {
	if t.Status != schema.TestFail {
		return VerdictOK
	}
	for _, e := range t.Errors {
		if e.Code == 0 && e.Message == "" {
			continue
		}
		if PriorityByCode(e.Code) == PriorityIsolate {
			return VerdictIsolateFailure
		}
	}
	return VerdictGenericFailure
}

// DevicesThatRan returns the device table indices that executed at least
// one test, in index order. Used when the caller supplied no explicit
// device list: downstream consumers iterate over this derived set, not the
// raw identifier list.
func DevicesThatRan(r *schema.RunResponse) []int {
	var ran []int
	for i := range r.Devices {
		if uint32(len(ran)) >= r.DeviceCount {
			break
		}
		if r.Devices[i].DeviceID == schema.DeviceIDNone {
			continue
		}
		for j := range r.Devices[i].Results {
			if r.Devices[i].Results[j].Status != schema.TestNotRun {
				ran = append(ran, i)
				break
			}
		}
	}
	return ran
}
