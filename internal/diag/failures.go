package diag

import (
	"sort"

	"github.com/accelkit/acceldiag/internal/schema"
)

// Failure is one error record extracted from a failing test result.
type Failure struct {
	Priority Priority
	Code     uint32
	DeviceID uint32
	TestName string
	Message  string
}

type failureKey struct {
	code     uint32
	deviceID uint32
	message  string
}

// Failures flattens every error record attached to a failing test into a
// deduplicated list, isolate-class failures first. Within a priority
// class the scan order (level-one table, then device slots) is kept.
func Failures(r *schema.RunResponse) []Failure {
	var out []Failure
	seen := make(map[failureKey]struct{})

	collect := func(t *schema.TestResultV5, deviceID uint32, testName string) {
		if t.Status != schema.TestFail {
			return
		}
		for _, e := range t.Errors {
			if e.Code == 0 && e.Message == "" {
				continue
			}
			key := failureKey{code: e.Code, deviceID: e.DeviceID, message: e.Message}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Failure{
				Priority: PriorityByCode(e.Code),
				Code:     e.Code,
				DeviceID: deviceID,
				TestName: testName,
				Message:  e.Message,
			})
		}
	}

	count := min(int(r.LevelOneCount), len(r.LevelOneResults))
	for i := 0; i < count; i++ {
		collect(&r.LevelOneResults[i], schema.DeviceIDNone, schema.LevelOneTestNames[i])
	}
	for i := range r.Devices {
		for j := range r.Devices[i].Results {
			collect(&r.Devices[i].Results[j], r.Devices[i].DeviceID, schema.TestName(j))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
