package behavior

import (
	"strings"

	"github.com/mpataki/relay/internal/agent"
)

// Override carries one step's explicit settings, from a preset or a saved
// session. nil fields are unspecified and fall through to the agent's
// defaults; a non-nil zero value (empty string, empty slice, false)
// disables the field outright. Template is the inline template layer,
// "" meaning absent.
type Override struct {
	Template string
	Output   *string
	Reads    *[]string
	Progress *bool
}

// Resolved is a step's effective behavior. Zero values mean disabled.
type Resolved struct {
	Output   string
	Reads    []string
	Progress bool
}

// ResolveStep resolves each field independently: explicit override, then
// agent default, then disabled. An explicit disable never falls through
// to the default.
func ResolveStep(def agent.Definition, ov Override) Resolved {
	r := Resolved{
		Output:   def.Output,
		Reads:    def.Reads,
		Progress: def.Progress,
	}
	if ov.Output != nil {
		r.Output = *ov.Output
	}
	if ov.Reads != nil {
		r.Reads = *ov.Reads
	}
	if ov.Progress != nil {
		r.Progress = *ov.Progress
	}
	return r
}

// ChainID identifies a chain by its ordered agent names. "a->b" and
// "b->a" are distinct chains, and a saved template for one never leaks
// into the other.
func ChainID(agents []string) string {
	return strings.Join(agents, "->")
}

const (
	// DefaultFirstTemplate seeds the first step with the raw task.
	DefaultFirstTemplate = "{task}"
	// DefaultNextTemplate seeds every later step with the prior step's output.
	DefaultNextTemplate = "{previous}"
)

// ResolveChainTemplates produces one template per agent. Highest priority
// is the inline template at that position, then a template saved for this
// exact chain and agent, then the positional default. Empty strings count
// as absent at every layer.
func ResolveChainTemplates(agents []string, inline []string, saved map[string]map[string]string) []string {
	id := ChainID(agents)
	out := make([]string, len(agents))
	for i, name := range agents {
		if i < len(inline) && inline[i] != "" {
			out[i] = inline[i]
			continue
		}
		if t := saved[id][name]; t != "" {
			out[i] = t
			continue
		}
		if i == 0 {
			out[i] = DefaultFirstTemplate
		} else {
			out[i] = DefaultNextTemplate
		}
	}
	return out
}

// FirstProgressIndex returns the index of the first step whose resolved
// Progress is true, or -1 when no step participates. The first such step
// creates the shared progress log; later ones update it.
func FirstProgressIndex(defs []agent.Definition, ovs []Override) int {
	for i := range defs {
		var ov Override
		if i < len(ovs) {
			ov = ovs[i]
		}
		if ResolveStep(defs[i], ov).Progress {
			return i
		}
	}
	return -1
}
