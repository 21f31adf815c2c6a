package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/pipeline"
	"github.com/jbweber/homestead/internal/validate"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVM formats a single VM as a table row.
func (f *TableFormatter) FormatVM(vm *lifecycle.VMInfo) (string, error) {
	return f.FormatVMList([]lifecycle.VMInfo{*vm})
}

// FormatVMList formats a list of VMs as a table.
func (f *TableFormatter) FormatVMList(vms []lifecycle.VMInfo) (string, error) {
	if len(vms) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tADDRESS\tAUTOSTART\tCPUs\tMEMORY")
	}

	for _, vm := range vms {
		address := "-"
		if vm.Spec != nil && vm.Spec.NetworkAddress != "" {
			address = vm.Spec.IP()
		}

		autostart := "no"
		if vm.Autostart {
			autostart = "yes"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d MiB\n",
			vm.Name, vm.State, address, autostart, vm.CPUs, vm.MemoryMB)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatReport formats a pipeline run report as a table with a summary
// line.
func (f *TableFormatter) FormatReport(report *pipeline.RunReport) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ENVIRONMENT\tRESULT\tSTAGE\tDETAIL")
	}

	for _, res := range report.Results {
		result := "pass"
		stage := "-"
		detail := "-"
		if !res.Passed {
			result = "FAIL"
			stage = string(res.Stage)
			if res.Err != nil {
				detail = res.Err.Error()
			}
		}
		if warns := countWarnings(res); res.Passed && warns > 0 {
			detail = fmt.Sprintf("%d warning(s)", warns)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Environment, result, stage, detail)
	}

	_ = w.Flush()

	// Per-violation detail below the table
	for _, res := range report.Results {
		for _, v := range res.Violations {
			fmt.Fprintf(&buf, "  %s: %s\n", res.Environment, v.String())
		}
	}

	status := "PASSED"
	if !report.Passed() {
		status = "FAILED"
	}
	fmt.Fprintf(&buf, "\nrun %s: %s (%d environment(s))\n", report.ID, status, len(report.Results))

	return buf.String(), nil
}

func countWarnings(res pipeline.EnvironmentResult) int {
	n := 0
	for _, v := range res.Violations {
		if v.Severity == validate.SeverityWarning {
			n++
		}
	}
	return n
}
