package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/accelkit/acceldiag/internal/diag"
	"github.com/accelkit/acceldiag/internal/schema"
)

// Document is the machine-readable report for one run.
type Document struct {
	DaemonVersion string            `json:"version"`
	DriverVersion string            `json:"driverVersion"`
	DeviceIDs     []string          `json:"deviceIds,omitempty"`
	DeviceSerials map[string]string `json:"deviceSerials,omitempty"`
	Verdict       string            `json:"result"`
	RuntimeError  string            `json:"runtimeError,omitempty"`
	Categories    []Category        `json:"categories,omitempty"`
}

type Category struct {
	Name  string `json:"category"`
	Tests []Test `json:"tests"`
}

type Test struct {
	Name    string       `json:"name"`
	Results []TestResult `json:"results"`
}

type TestResult struct {
	DeviceID *uint32   `json:"deviceId,omitempty"`
	Status   string    `json:"status"`
	Warnings []Warning `json:"warnings,omitempty"`
	Info     string    `json:"info,omitempty"`
}

type Warning struct {
	Message  string `json:"warning"`
	Code     uint32 `json:"errorId"`
	Category uint32 `json:"errorCategory"`
	Severity uint32 `json:"errorSeverity"`
}

// categorized mirrors the table sections: which per-device tests belong to
// which report category.
var categorized = []struct {
	name  string
	tests []int
}{
	{"Integration", []int{schema.TestPCIe}},
	{"Hardware", []int{schema.TestMemory, schema.TestDiagnostic, schema.TestPulse, schema.TestEUD}},
	{"Stress", []int{
		schema.TestSMStress, schema.TestTargetedStress, schema.TestTargetedPower,
		schema.TestMemoryBandwidth, schema.TestMemtest,
	}},
}

// NewDocument builds the JSON report from a response and its verdict.
func NewDocument(res *schema.RunResponse, verdict diag.Verdict) Document {
	doc := Document{
		DaemonVersion: res.DaemonVersion,
		DriverVersion: res.DriverVersion,
		Verdict:       verdict.String(),
		RuntimeError:  res.SystemError.Message,
	}

	for i := uint32(0); i < res.DeviceCount && i < schema.MaxDevices; i++ {
		doc.DeviceIDs = append(doc.DeviceIDs, res.DeviceIDs[i])
	}
	for i, serial := range res.DeviceSerials {
		if serial == "" {
			continue
		}
		if doc.DeviceSerials == nil {
			doc.DeviceSerials = make(map[string]string)
		}
		doc.DeviceSerials[fmt.Sprintf("%d", i)] = serial
	}

	devices := diag.DevicesThatRan(res)

	if deployment := deploymentCategory(res); len(deployment.Tests) > 0 {
		doc.Categories = append(doc.Categories, deployment)
	}
	for _, cat := range categorized {
		out := Category{Name: cat.name}
		for _, testIdx := range cat.tests {
			test := Test{Name: schema.TestName(testIdx)}
			for _, i := range devices {
				if r := deviceResult(res, i, testIdx); r != nil {
					test.Results = append(test.Results, *r)
				}
			}
			if len(test.Results) > 0 {
				out.Tests = append(out.Tests, test)
			}
		}
		if len(out.Tests) > 0 {
			doc.Categories = append(doc.Categories, out)
		}
	}
	return doc
}

func deploymentCategory(res *schema.RunResponse) Category {
	cat := Category{Name: "Deployment"}
	count := min(int(res.LevelOneCount), schema.LevelOneTestCapacity)
	for i := 0; i < count; i++ {
		r := &res.LevelOneResults[i]
		if r.Status == schema.TestNotRun {
			continue
		}
		result := TestResult{Status: r.Status.String(), Info: r.Info}
		for _, e := range r.Errors {
			if e.Message == "" && e.Code == 0 {
				continue
			}
			result.Warnings = append(result.Warnings, Warning{
				Message:  e.Message,
				Code:     e.Code,
				Category: e.Category,
				Severity: e.Severity,
			})
		}
		cat.Tests = append(cat.Tests, Test{
			Name:    schema.LevelOneTestNames[i],
			Results: []TestResult{result},
		})
	}
	return cat
}

func deviceResult(res *schema.RunResponse, deviceIdx, testIdx int) *TestResult {
	r := &res.Devices[deviceIdx].Results[testIdx]
	if r.Status == schema.TestNotRun {
		return nil
	}
	id := res.Devices[deviceIdx].DeviceID
	out := TestResult{DeviceID: &id, Status: r.Status.String(), Info: r.Info}
	for _, e := range r.Errors {
		if e.Message == "" && e.Code == 0 {
			continue
		}
		out.Warnings = append(out.Warnings, Warning{
			Message:  e.Message,
			Code:     e.Code,
			Category: e.Category,
			Severity: e.Severity,
		})
	}
	return &out
}

// JSON writes the indented document for one run.
func JSON(w io.Writer, res *schema.RunResponse, verdict diag.Verdict) error {
	doc := NewDocument(res, verdict)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
