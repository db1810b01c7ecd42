package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/mpataki/relay/internal/behavior"
)

// Preset is a chain definition loaded from a Lua file. A preset names the
// ordered agents and may override any step's template or file behaviors.
// Lua's nil/false distinction carries directly onto the override model:
// an absent field inherits the agent default, `output = false` or
// `reads = false` disables the field outright.
type Preset struct {
	Name        string
	Description string
	Steps       []Step
}

type Step struct {
	Agent    string
	Override behavior.Override
}

// Agents returns the ordered agent names.
func (p *Preset) Agents() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Agent
	}
	return names
}

// Overrides returns the per-step overrides, index-aligned with Agents.
func (p *Preset) Overrides() []behavior.Override {
	ovs := make([]behavior.Override, len(p.Steps))
	for i, s := range p.Steps {
		ovs[i] = s.Override
	}
	return ovs
}

// Templates returns the inline template layer, index-aligned with Agents.
// "" marks steps without an inline template.
func (p *Preset) Templates() []string {
	ts := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ts[i] = s.Override.Template
	}
	return ts
}

// Parse evaluates a preset script in a sandboxed Lua state and extracts
// the `chain` table it must define.
func Parse(path string) (*Preset, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset: %w", err)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	defer L.Close()

	openSafeLibs(L)

	if err := L.DoString(string(script)); err != nil {
		return nil, fmt.Errorf("failed to evaluate preset: %w", err)
	}

	chainVal := L.GetGlobal("chain")
	tbl, ok := chainVal.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("preset must define a 'chain' table")
	}

	p := &Preset{
		Name:        optString(L.GetField(tbl, "name")),
		Description: optString(L.GetField(tbl, "description")),
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), ".lua")
	}

	stepsVal := L.GetField(tbl, "steps")
	stepsTbl, ok := stepsVal.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("chain must define a 'steps' list")
	}

	n := stepsTbl.Len()
	if n == 0 {
		return nil, fmt.Errorf("chain must have at least one step")
	}

	for i := 1; i <= n; i++ {
		stepTbl, ok := stepsTbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("step %d must be a table", i)
		}

		step, err := parseStep(L, stepTbl, i)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, step)
	}

	return p, nil
}

func parseStep(L *lua.LState, tbl *lua.LTable, i int) (Step, error) {
	var step Step

	agentVal := L.GetField(tbl, "agent")
	name, ok := agentVal.(lua.LString)
	if !ok || name == "" {
		return step, fmt.Errorf("step %d must name an agent", i)
	}
	step.Agent = string(name)

	step.Override.Template = optString(L.GetField(tbl, "template"))

	switch v := L.GetField(tbl, "output").(type) {
	case *lua.LNilType:
	case lua.LBool:
		if bool(v) {
			return step, fmt.Errorf("step %d: output must be a file name or false", i)
		}
		disabled := ""
		step.Override.Output = &disabled
	case lua.LString:
		s := string(v)
		step.Override.Output = &s
	default:
		return step, fmt.Errorf("step %d: output must be a file name or false", i)
	}

	switch v := L.GetField(tbl, "reads").(type) {
	case *lua.LNilType:
	case lua.LBool:
		if bool(v) {
			return step, fmt.Errorf("step %d: reads must be a file list or false", i)
		}
		step.Override.Reads = &[]string{}
	case *lua.LTable:
		var reads []string
		for j := 1; j <= v.Len(); j++ {
			f, ok := v.RawGetInt(j).(lua.LString)
			if !ok || f == "" {
				return step, fmt.Errorf("step %d: reads entries must be file names", i)
			}
			reads = append(reads, string(f))
		}
		step.Override.Reads = &reads
	default:
		return step, fmt.Errorf("step %d: reads must be a file list or false", i)
	}

	switch v := L.GetField(tbl, "progress").(type) {
	case *lua.LNilType:
	case lua.LBool:
		b := bool(v)
		step.Override.Progress = &b
	default:
		return step, fmt.Errorf("step %d: progress must be true or false", i)
	}

	return step, nil
}

// openSafeLibs loads only the safe standard libraries. Presets are data
// with a little logic; they get no I/O, no loading, no nondeterminism.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil)

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func optString(v lua.LValue) string {
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// LoadAll parses every .lua preset under dirs. Later dirs win on name
// collisions, so project presets shadow user presets. Directories that
// don't exist are skipped.
func LoadAll(dirs []string) (map[string]*Preset, error) {
	presets := make(map[string]*Preset)

	for _, dir := range dirs {
		if err := loadFromDir(dir, presets); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return presets, nil
}

func loadFromDir(dir string, presets map[string]*Preset) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		p, err := Parse(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		presets[p.Name] = p
	}

	return nil
}
