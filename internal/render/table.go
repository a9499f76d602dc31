// Package render formats a completed diagnostic response for humans
// (table) and machines (JSON document). It sits outside the
// classification core: it consumes a verdict plus the response, never
// computes one.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/accelkit/acceldiag/internal/diag"
	"github.com/accelkit/acceldiag/internal/schema"
)

const (
	tableHeader = "+---------------------------+------------------------------------------------+\n" +
		"| Diagnostic                | Result                                         |\n" +
		"+===========================+================================================+\n"
	tableFooter      = "+---------------------------+------------------------------------------------+\n"
	sectionMetadata  = "|-----  Metadata  ----------+------------------------------------------------|\n"
	sectionDeploy    = "|-----  Deployment  --------+------------------------------------------------|\n"
	sectionHardware  = "+-----  Hardware  ----------+------------------------------------------------+\n"
	sectionIntegrate = "+-----  Integration  -------+------------------------------------------------+\n"
	sectionStress    = "+-----  Stress  ------------+------------------------------------------------+\n"

	// infoWidth is the space available in the result column; longer texts
	// wrap onto continuation rows.
	infoWidth = 45
)

var (
	passText = color.New(color.FgGreen).SprintFunc()
	failText = color.New(color.FgRed).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
)

// Table writes the classic two-column report: metadata, level-one
// deployment tests, then per-device integration, hardware and stress
// sections. Verbose also prints per-test warnings and info rows.
func Table(w io.Writer, res *schema.RunResponse, verbose bool) error {
	devices := diag.DevicesThatRan(res)

	t := &table{w: w, verbose: verbose}
	t.raw(tableHeader)
	t.metadata(res)
	t.deployment(res)

	if len(devices) > 0 {
		t.raw(sectionIntegrate)
		t.deviceTest(res, devices, schema.TestPCIe)

		t.raw(sectionHardware)
		t.deviceTest(res, devices, schema.TestMemory)
		if !allSkipped(res, devices, schema.TestDiagnostic) {
			t.deviceTest(res, devices, schema.TestDiagnostic)
		}
		t.deviceTest(res, devices, schema.TestPulse)
		t.deviceTest(res, devices, schema.TestEUD)

		t.raw(sectionStress)
		t.deviceTest(res, devices, schema.TestSMStress)
		t.deviceTest(res, devices, schema.TestTargetedStress)
		t.deviceTest(res, devices, schema.TestTargetedPower)
		t.deviceTest(res, devices, schema.TestMemoryBandwidth)
		t.deviceTest(res, devices, schema.TestMemtest)
	}

	t.raw(tableFooter)
	return t.err
}

type table struct {
	w       io.Writer
	verbose bool
	err     error
}

func (t *table) raw(s string) {
	if t.err != nil {
		return
	}
	_, t.err = io.WriteString(t.w, s)
}

func (t *table) row(name, info string) {
	t.raw(fmt.Sprintf("| %-25s | %-46s |\n", name, info))
}

// wrapped prints info across as many rows as needed, naming only the first.
func (t *table) wrapped(name, info string) {
	for pos := 0; pos < len(info); pos += infoWidth {
		end := min(pos+infoWidth, len(info))
		t.row(name, info[pos:end])
		name = ""
	}
}

func (t *table) metadata(res *schema.RunResponse) {
	t.raw(sectionMetadata)
	t.row("Daemon Version", res.DaemonVersion)
	t.row("Driver Version Detected", res.DriverVersion)

	ids := make([]string, 0, res.DeviceCount)
	for i := uint32(0); i < res.DeviceCount && i < schema.MaxDevices; i++ {
		ids = append(ids, res.DeviceIDs[i])
	}
	t.row("Device IDs Detected", strings.Join(ids, ","))
}

func (t *table) deployment(res *schema.RunResponse) {
	t.raw(sectionDeploy)
	count := min(int(res.LevelOneCount), schema.LevelOneTestCapacity)
	for i := 0; i < count; i++ {
		r := &res.LevelOneResults[i]
		if r.Status == schema.TestNotRun {
			continue
		}
		t.row(schema.LevelOneTestNames[i], statusText(r.Status))
		for _, e := range r.Errors {
			if e.Message != "" {
				t.wrapped("Error", Sanitize(e.Message))
			}
		}
		if r.Info != "" {
			t.wrapped("Info", Sanitize(r.Info))
		}
	}
}

func (t *table) deviceTest(res *schema.RunResponse, devices []int, testIdx int) {
	name := schema.TestName(testIdx)

	var passed, failed, warned, skipped []string
	ran := false
	for _, i := range devices {
		r := &res.Devices[i].Results[testIdx]
		id := fmt.Sprintf("%d", res.Devices[i].DeviceID)
		switch r.Status {
		case schema.TestPass:
			passed = append(passed, id)
		case schema.TestFail:
			failed = append(failed, id)
		case schema.TestWarn:
			warned = append(warned, id)
		case schema.TestSkip:
			skipped = append(skipped, id)
		default:
			continue
		}
		ran = true
	}
	if !ran {
		return
	}

	total := len(passed) + len(failed) + len(warned) + len(skipped)
	switch total {
	case len(passed):
		t.row(name, passText("Pass")+" - All")
	case len(skipped):
		t.row(name, "Skip - All")
	case len(failed):
		t.row(name, failText("Fail")+" - All")
	case len(warned):
		t.row(name, warnText("Warn")+" - All")
	default:
		first := name
		for _, group := range []struct {
			label string
			ids   []string
		}{
			{passText("Pass"), passed},
			{failText("Fail"), failed},
			{warnText("Warn"), warned},
			{"Skip", skipped},
		} {
			if len(group.ids) == 0 {
				continue
			}
			t.row(first, group.label+" - Devices: "+strings.Join(group.ids, ", "))
			first = ""
		}
	}

	showDetails := t.verbose || len(failed) > 0 || len(warned) > 0 || len(skipped) > 0
	if !showDetails {
		return
	}
	for _, i := range devices {
		r := &res.Devices[i].Results[testIdx]
		for _, e := range r.Errors {
			if e.Message != "" {
				t.wrapped("Warning", Sanitize(e.Message))
			}
		}
		if r.Info != "" && t.verbose {
			t.wrapped("Info", Sanitize(r.Info))
		}
	}
}

func allSkipped(res *schema.RunResponse, devices []int, testIdx int) bool {
	for _, i := range devices {
		if res.Devices[i].Results[testIdx].Status != schema.TestSkip {
			return false
		}
	}
	return true
}

func statusText(s schema.TestStatus) string {
	switch s {
	case schema.TestPass:
		return passText("Pass")
	case schema.TestFail:
		return failText("Fail")
	case schema.TestWarn:
		return warnText("Warn")
	case schema.TestSkip:
		return "Skip"
	}
	return s.String()
}

// Sanitize strips a leading "***"-delimited marker and surrounding
// whitespace from daemon-produced message text.
func Sanitize(s string) string {
	if pos := strings.Index(s, "***"); pos != -1 {
		s = s[pos+3:]
	}
	return strings.TrimSpace(s)
}
