package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition describes one agent's defaults: the Claude Code agent to
// invoke and the file behaviors a chain step inherits unless the step
// overrides them. Output names a file the agent writes into the chain
// dir ("" = none). Reads lists chain-dir files the agent is pointed at
// before starting (nil = none). Progress opts the agent into the shared
// progress log.
type Definition struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Output      string   `yaml:"output,omitempty"`
	Reads       []string `yaml:"reads,omitempty"`
	Progress    bool     `yaml:"progress,omitempty"`
}

// Title returns the name to show in UIs.
func (d Definition) Title() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

func Parse(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse agent YAML: %w", err)
	}

	if def.Name == "" {
		def.Name = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".yaml"), ".yml")
	}

	return &def, nil
}

// LoadAll returns the built-in definitions overlaid with YAML definitions
// from dirs, in order. Later dirs win, so project agents shadow user
// agents which shadow built-ins. Directories that don't exist are skipped.
func LoadAll(dirs []string) (map[string]Definition, error) {
	defs := make(map[string]Definition, len(builtins))
	for _, d := range builtins {
		defs[d.Name] = d
	}

	for _, dir := range dirs {
		if err := loadFromDir(dir, defs); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return defs, nil
}

func loadFromDir(dir string, defs map[string]Definition) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		def, err := Parse(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := Validate(def); err != nil {
			return fmt.Errorf("invalid agent %s: %w", path, err)
		}

		defs[def.Name] = *def
	}

	return nil
}

func Validate(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("agent must have a name")
	}
	if strings.ContainsAny(def.Name, " \t\n") {
		return fmt.Errorf("agent name %q must not contain whitespace", def.Name)
	}
	for _, r := range def.Reads {
		if r == "" {
			return fmt.Errorf("agent %q has an empty reads entry", def.Name)
		}
	}
	return nil
}

// Lookup returns the definition for name, or a bare definition carrying
// only the name when nothing declares it. Unknown agents are legal; they
// contribute no default behaviors.
func Lookup(defs map[string]Definition, name string) Definition {
	if d, ok := defs[name]; ok {
		return d
	}
	return Definition{Name: name}
}
