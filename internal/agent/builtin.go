package agent

// builtins ship with relay so a fresh install can run useful chains
// without writing any YAML. Any of these can be shadowed by a user or
// project agent file with the same name.
var builtins = []Definition{
	{
		Name:        "planner",
		DisplayName: "Planner",
		Description: "Breaks the task into a concrete implementation plan",
		Output:      "plan.md",
	},
	{
		Name:        "researcher",
		DisplayName: "Researcher",
		Description: "Surveys the codebase and gathers context for later steps",
		Output:      "research.md",
	},
	{
		Name:        "coder",
		DisplayName: "Coder",
		Description: "Implements the plan",
		Reads:       []string{"plan.md"},
		Progress:    true,
	},
	{
		Name:        "reviewer",
		DisplayName: "Reviewer",
		Description: "Reviews the implementation against the plan",
		Reads:       []string{"plan.md"},
		Output:      "review.md",
		Progress:    true,
	},
}
