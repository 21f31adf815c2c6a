package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/homestead/internal/lifecycle"
	"github.com/jbweber/homestead/internal/pipeline"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatVM formats a single VM as YAML.
func (f *YAMLFormatter) FormatVM(vm *lifecycle.VMInfo) (string, error) {
	data, err := yaml.Marshal(vm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to YAML: %w", err)
	}
	return string(data), nil
}

// FormatVMList formats a list of VMs as YAML.
// Outputs as a YAML stream (multiple documents separated by ---).
func (f *YAMLFormatter) FormatVMList(vms []lifecycle.VMInfo) (string, error) {
	if len(vms) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i, vm := range vms {
		data, err := yaml.Marshal(vm)
		if err != nil {
			return "", fmt.Errorf("failed to marshal VM %s to YAML: %w", vm.Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}

// FormatReport formats a pipeline run report as YAML.
func (f *YAMLFormatter) FormatReport(report *pipeline.RunReport) (string, error) {
	data, err := yaml.Marshal(newReportView(report))
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to YAML: %w", err)
	}
	return string(data), nil
}
