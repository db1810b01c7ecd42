package behavior

import (
	"path/filepath"
	"strings"
)

// ProgressFile is the shared progress log agents maintain in the chain dir.
const ProgressFile = "PROGRESS.md"

// Instructions renders the file-coordination bullets for one step: where
// to read context from, where to write output, and how to handle the
// shared progress log. One bullet per active field. Returns "" when no
// field is active; callers must skip appending the block then.
func Instructions(r Resolved, chainDir string, firstProgress bool) string {
	var bullets []string

	if len(r.Reads) > 0 {
		paths := make([]string, len(r.Reads))
		for i, f := range r.Reads {
			paths[i] = filepath.Join(chainDir, f)
		}
		bullets = append(bullets, "- Read these files for context before starting: "+strings.Join(paths, ", "))
	}

	if r.Output != "" {
		bullets = append(bullets, "- Write your complete output to "+filepath.Join(chainDir, r.Output))
	}

	if r.Progress {
		p := filepath.Join(chainDir, ProgressFile)
		if firstProgress {
			bullets = append(bullets, "- Create and maintain "+p+", recording what you did and what remains")
		} else {
			bullets = append(bullets, "- Read "+p+" first, then update it with what you did and what remains")
		}
	}

	return strings.Join(bullets, "\n")
}
