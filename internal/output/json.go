package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/pipeline"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatVM formats a single VM as JSON.
func (f *JSONFormatter) FormatVM(vm *lifecycle.VMInfo) (string, error) {
	data, err := json.MarshalIndent(vm, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatVMList formats a list of VMs as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []lifecycle.VMInfo) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(vms, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VMs to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatReport formats a pipeline run report as JSON.
func (f *JSONFormatter) FormatReport(report *pipeline.RunReport) (string, error) {
	data, err := json.MarshalIndent(newReportView(report), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
