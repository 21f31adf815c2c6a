package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NotFoundError indicates a required configuration file is missing. The CLI
// maps this to its dependency/configuration exit code.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("configuration file not found: %s", e.Path)
}

// IsNotFound reports whether err is a missing-configuration error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// DefaultsPath returns the path of the shared defaults file.
func DefaultsPath(dir string) string {
	return filepath.Join(dir, "defaults.yaml")
}

// EnvironmentPath returns the path of an environment's override file.
func EnvironmentPath(dir, env string) string {
	return filepath.Join(dir, "environments", env+".yaml")
}

// Resolve merges the configuration layers for the named environment and
// returns the effective spec. Precedence, highest to lowest: overrides,
// the environment file, the defaults file.
//
// Override values are parsed as YAML scalars, so "memory=2048" yields an
// integer and "packages=[git,vim]" a list. Unknown keys from any layer are
// passed through into ResolvedSpec.Extra.
//
// A missing defaults or environment file is a *NotFoundError.
func Resolve(dir, env string, overrides map[string]string) (*ResolvedSpec, error) {
	if env == "" {
		return nil, fmt.Errorf("environment name is required")
	}

	base, err := loadLayer(DefaultsPath(dir))
	if err != nil {
		return nil, err
	}

	envLayer, err := loadLayer(EnvironmentPath(dir, env))
	if err != nil {
		return nil, err
	}

	merged := mergeLayers(base, envLayer)

	for key, raw := range overrides {
		value, err := parseOverrideValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid override %s=%s: %w", key, raw, err)
		}
		merged[key] = value
	}

	spec, err := decodeSpec(merged)
	if err != nil {
		return nil, fmt.Errorf("environment %s: %w", env, err)
	}

	spec.Environment = env
	spec.Normalize()
	return spec, nil
}

// ListEnvironments returns the names of all declared environments, sorted.
func ListEnvironments(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "environments"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: filepath.Join(dir, "environments")}
		}
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}

	var envs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		envs = append(envs, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(envs)
	return envs, nil
}

// ReservedAddresses returns the network addresses explicitly declared by
// environments other than exclude, keyed by address. Only addresses set in
// an environment's own file count; an address inherited from defaults does
// not reserve it for every environment.
func ReservedAddresses(dir, exclude string) (map[string]string, error) {
	envs, err := ListEnvironments(dir)
	if err != nil {
		return nil, err
	}

	reserved := make(map[string]string)
	for _, env := range envs {
		if env == exclude {
			continue
		}
		layer, err := loadLayer(EnvironmentPath(dir, env))
		if err != nil {
			return nil, err
		}
		addr, ok := layer["network_address"].(string)
		if !ok || addr == "" {
			continue
		}
		// Strip any CIDR suffix so 10.0.0.5/24 and 10.0.0.5/16 collide.
		if i := strings.IndexByte(addr, '/'); i >= 0 {
			addr = addr[:i]
		}
		if _, dup := reserved[addr]; !dup {
			reserved[addr] = env
		}
	}
	return reserved, nil
}

// loadLayer reads one configuration file into a flat key/value map.
func loadLayer(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	layer := make(map[string]any)
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return layer, nil
}

// mergeLayers merges configuration layers, later layers winning. Values
// replace wholesale; lists are not concatenated.
func mergeLayers(layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}
	return merged
}

// parseOverrideValue interprets a runtime override value as a YAML scalar
// so numeric and list overrides keep their types through the merge.
func parseOverrideValue(raw string) (any, error) {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}

// decodeSpec binds the merged map onto a ResolvedSpec and collects unknown
// keys into Extra.
func decodeSpec(merged map[string]any) (*ResolvedSpec, error) {
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode merged configuration: %w", err)
	}

	var spec ResolvedSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("malformed configuration: %w", err)
	}

	for key, value := range merged {
		if _, known := knownKeys[key]; known {
			continue
		}
		if spec.Extra == nil {
			spec.Extra = make(map[string]any)
		}
		spec.Extra[key] = value
	}
	return &spec, nil
}
