package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jbweber/homestead/internal/config"
	"github.com/jbweber/homestead/internal/lifecycle"
)

const testPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl test@example.com"

// writeConfigDir builds a layered config directory with a shared defaults
// file and one file per environment.
func writeConfigDir(t *testing.T, environments map[string]string) string {
	t.Helper()

	dir := t.TempDir()

	keyPath := filepath.Join(dir, "id_ed25519.pub")
	if err := os.WriteFile(keyPath, []byte(testPublicKey+"\n"), 0o600); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}

	defaults := fmt.Sprintf(`memory: 2048
vcpus: 2
disk_size: 20
max_memory: 8192
ssh_key_path: %s
`, keyPath)
	if err := os.WriteFile(config.DefaultsPath(dir), []byte(defaults), 0o644); err != nil {
		t.Fatalf("failed to write defaults: %v", err)
	}

	envDir := filepath.Join(dir, "environments")
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		t.Fatalf("failed to create environments dir: %v", err)
	}
	for name, content := range environments {
		if err := os.WriteFile(config.EnvironmentPath(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write environment %s: %v", name, err)
		}
	}

	return dir
}

func TestRunCheckModeMixedResults(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"dev": `vm_name: dev-vm
network_address: 192.168.122.10/24
`,
		// memory over the shared ceiling
		"staging": `vm_name: staging-vm
network_address: 192.168.122.20/24
memory: 16384
`,
	})

	d := &Driver{ConfigDir: dir}
	report, err := d.Run(context.Background(), []string{"dev", "staging"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("report has %d results, want 2 (collect-all)", len(report.Results))
	}

	dev, staging := report.Results[0], report.Results[1]
	if !dev.Passed {
		t.Errorf("dev should pass, failed at %s: %v", dev.Stage, dev.Err)
	}
	if staging.Passed {
		t.Error("staging should fail validation")
	}
	if staging.Stage != StageValidate {
		t.Errorf("staging failed at stage %s, want %s", staging.Stage, StageValidate)
	}

	if report.Passed() {
		t.Error("report.Passed() = true with a failing environment")
	}
	if got := report.ExitCode(); got != 1 {
		t.Errorf("ExitCode() = %d, want 1", got)
	}
	if report.ID == "" {
		t.Error("report has no run ID")
	}
}

func TestRunAllPassing(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"dev": `vm_name: dev-vm
network_address: 192.168.122.10/24
`,
	})

	d := &Driver{ConfigDir: dir}
	report, err := d.Run(context.Background(), []string{"dev"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Passed() {
		t.Fatalf("report failed: %+v", report.Results)
	}
	if got := report.ExitCode(); got != 0 {
		t.Errorf("ExitCode() = %d, want 0", got)
	}
}

func TestRunMissingEnvironment(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"dev": `vm_name: dev-vm
network_address: 192.168.122.10/24
`,
	})

	d := &Driver{ConfigDir: dir}
	report, err := d.Run(context.Background(), []string{"dev", "prod"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Results) != 2 {
		t.Fatalf("report has %d results, want 2", len(report.Results))
	}
	prod := report.Results[1]
	if prod.Passed || prod.Stage != StageResolve {
		t.Errorf("prod = passed=%v stage=%s, want failed at resolve", prod.Passed, prod.Stage)
	}

	// Missing configuration maps to exit code 2
	if got := report.ExitCode(); got != 2 {
		t.Errorf("ExitCode() = %d, want 2", got)
	}
}

func TestRunAddressConflict(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"dev": `vm_name: dev-vm
network_address: 192.168.122.110/24
`,
		"staging": `vm_name: staging-vm
network_address: 192.168.122.110/24
`,
	})

	d := &Driver{ConfigDir: dir}
	report, err := d.Run(context.Background(), []string{"dev", "staging"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Both environments claim the same address, so both see a conflict
	for _, res := range report.Results {
		if res.Passed {
			t.Errorf("%s should fail on address conflict", res.Environment)
		}
	}
}

// recordingDriver records EnsureState calls and fails selected VMs.
type recordingDriver struct {
	calls  []string
	target lifecycle.State
	fail   map[string]error
}

func (r *recordingDriver) EnsureState(_ context.Context, spec *config.ResolvedSpec, target lifecycle.State) error {
	r.calls = append(r.calls, spec.Name)
	r.target = target
	if err, ok := r.fail[spec.Name]; ok {
		return err
	}
	return nil
}

func TestRunExecuteMode(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"dev": `vm_name: dev-vm
network_address: 192.168.122.10/24
`,
		"staging": `vm_name: staging-vm
network_address: 192.168.122.20/24
`,
	})

	exec := &recordingDriver{
		fail: map[string]error{"staging-vm": fmt.Errorf("hypervisor unavailable")},
	}
	d := &Driver{ConfigDir: dir, Executor: exec}

	report, err := d.Run(context.Background(), []string{"dev", "staging"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(exec.calls) != 2 {
		t.Fatalf("EnsureState called for %v, want both environments", exec.calls)
	}
	if exec.target != lifecycle.StateRunning {
		t.Errorf("default target = %s, want running", exec.target)
	}

	if report.Results[0].Passed != true {
		t.Errorf("dev should pass, got %v", report.Results[0].Err)
	}
	staging := report.Results[1]
	if staging.Passed || staging.Stage != StageExecute {
		t.Errorf("staging = passed=%v stage=%s, want failed at execute", staging.Passed, staging.Stage)
	}
	if got := report.ExitCode(); got != 1 {
		t.Errorf("ExitCode() = %d, want 1", got)
	}
}

func TestRunOverridesApply(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"dev": `vm_name: dev-vm
network_address: 192.168.122.10/24
memory: 16384
`,
	})

	// Without the override dev fails the ceiling; with it, it passes
	d := &Driver{ConfigDir: dir, Overrides: map[string]string{"memory": "4096"}}
	report, err := d.Run(context.Background(), []string{"dev"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Passed() {
		t.Errorf("run with override should pass: %+v", report.Results)
	}
}

func TestRunNoEnvironments(t *testing.T) {
	d := &Driver{ConfigDir: t.TempDir()}
	if _, err := d.Run(context.Background(), nil); err == nil {
		t.Fatal("Run() with no environments expected error, got nil")
	}
}
