package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpataki/relay/internal/agent"
	"github.com/mpataki/relay/internal/behavior"
	"github.com/mpataki/relay/internal/chaindir"
	"github.com/mpataki/relay/internal/config"
	"github.com/mpataki/relay/internal/logging"
	"github.com/mpataki/relay/internal/models"
	"github.com/mpataki/relay/internal/preset"
	"github.com/mpataki/relay/internal/runner"
	"github.com/mpataki/relay/internal/settings"
	"github.com/mpataki/relay/internal/storage"
	"github.com/mpataki/relay/internal/tui"
)

var logger *zap.Logger

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Run tasks through chains of Claude Code agents",
		Long: "Relay pipes a task through an ordered chain of Claude Code agents.\n" +
			"Each step's prompt template can be reviewed and edited before anything\n" +
			"runs; confirmed edits are remembered for that exact chain.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			// Logging is best-effort; the tool works without it
			if l, err := logging.New(cfg.LogPath(), verbose); err == nil {
				logger = l
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
		RunE: runTUI,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newAgentsCommand())
	rootCmd.AddCommand(newTemplatesCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newKillCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newCleanCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStorage() (*config.Config, *storage.Storage, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return cfg, store, nil
}

func loadAgents(cfg *config.Config) (map[string]agent.Definition, error) {
	defs, err := agent.LoadAll([]string{cfg.UserAgentDir, cfg.ProjectAgentDir})
	if err != nil {
		return nil, fmt.Errorf("failed to load agents: %w", err)
	}
	return defs, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	defs, err := loadAgents(cfg)
	if err != nil {
		return err
	}

	r := runner.New(store, chaindir.New(cfg.ChainsDir()), defs, logger)

	app := tui.NewApp(r)
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

// resolveChainArg turns the chain argument into an ordered agent list. A
// preset name wins; anything else is treated as agent names joined with "->".
func resolveChainArg(arg string, cfg *config.Config) (name string, agents []string, overrides []behavior.Override, inline []string, err error) {
	presets, err := preset.LoadAll([]string{cfg.UserPresetDir, cfg.ProjectPresetDir})
	if err != nil {
		return "", nil, nil, nil, fmt.Errorf("failed to load presets: %w", err)
	}

	if p, ok := presets[strings.TrimSuffix(arg, ".lua")]; ok {
		return p.Name, p.Agents(), p.Overrides(), p.Templates(), nil
	}

	agents = strings.Split(arg, "->")
	for i, a := range agents {
		agents[i] = strings.TrimSpace(a)
		if agents[i] == "" {
			return "", nil, nil, nil, fmt.Errorf("chain %q has an empty agent name", arg)
		}
	}

	return arg, agents, make([]behavior.Override, len(agents)), make([]string, len(agents)), nil
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <chain> <task...>",
		Short: "Run a task through an agent chain",
		Long: "The chain argument is either a preset name or an inline agent list\n" +
			"joined with \"->\", e.g. planner->coder->reviewer.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainArg := args[0]
			task := strings.Join(args[1:], " ")
			yes, _ := cmd.Flags().GetBool("yes")
			noExec, _ := cmd.Flags().GetBool("no-exec")

			cfg, store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			defs, err := loadAgents(cfg)
			if err != nil {
				return err
			}

			chainName, agents, overrides, inline, err := resolveChainArg(chainArg, cfg)
			if err != nil {
				return err
			}

			sets := settings.Load(cfg.SettingsPath)
			templates := behavior.ResolveChainTemplates(agents, inline, sets.Chains)

			if !yes {
				steps := tui.BuildSteps(agents, defs, overrides, sets.Chains)
				c := tui.NewClarify(behavior.ChainID(agents), task, steps, sets, cfg.SettingsPath, logger)

				final, err := tui.RunClarify(c)
				if err != nil {
					return fmt.Errorf("clarification failed: %w", err)
				}
				if !final.Confirmed() {
					fmt.Println("Cancelled.")
					return nil
				}
				templates = final.Templates()
			}

			r := runner.New(store, chaindir.New(cfg.ChainsDir()), defs, logger)

			chain := &runner.Chain{
				Name:      chainName,
				Task:      task,
				Agents:    agents,
				Templates: templates,
				Overrides: overrides,
			}

			run, err := r.StartRun(chain)
			if err != nil {
				return fmt.Errorf("failed to start run: %w", err)
			}

			fmt.Printf("Created run #%d\n", run.ID)
			fmt.Printf("Chain dir: %s\n", run.ChainDir)

			if noExec {
				fmt.Println("Skipping execution (--no-exec)")
				return nil
			}

			r.OnStep = func(step *models.StepExecution) {
				switch step.Status {
				case models.StepStatusPending:
					fmt.Printf("[%d/%d] %s...\n", step.Position+1, len(agents), step.AgentName)
				case models.StepStatusComplete:
					fmt.Printf("[%d/%d] %s done\n", step.Position+1, len(agents), step.AgentName)
				case models.StepStatusFailed:
					fmt.Printf("[%d/%d] %s failed\n", step.Position+1, len(agents), step.AgentName)
				}
			}

			if err := r.Execute(run, chain); err != nil {
				return fmt.Errorf("execution failed: %w", err)
			}

			fmt.Printf("Run completed with status: %s\n", run.Status)
			if run.Error != "" {
				fmt.Printf("Error: %s\n", run.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip template review and run immediately")
	cmd.Flags().Bool("no-exec", false, "Create the run and chain dir but don't execute")
	return cmd
}

func newAgentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List available agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}

			defs, err := loadAgents(cfg)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(defs))
			for name := range defs {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				def := defs[name]
				line := fmt.Sprintf("%-12s", def.Name)
				if def.Description != "" {
					line += " " + def.Description
				}
				if b := describeBehavior(def); b != "" {
					line += " (" + b + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func describeBehavior(def agent.Definition) string {
	var parts []string
	if def.Output != "" {
		parts = append(parts, "writes "+def.Output)
	}
	if len(def.Reads) > 0 {
		parts = append(parts, "reads "+strings.Join(def.Reads, ", "))
	}
	if def.Progress {
		parts = append(parts, "tracks progress")
	}
	return strings.Join(parts, "; ")
}

func newTemplatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "templates [chain]",
		Short: "Show saved or effective chain templates",
		Long: "Without an argument, lists every chain with saved templates. With a\n" +
			"chain argument, shows the effective template each step would run with.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}

			sets := settings.Load(cfg.SettingsPath)

			if len(args) == 0 {
				if len(sets.Chains) == 0 {
					fmt.Println("No saved templates.")
					return nil
				}

				ids := make([]string, 0, len(sets.Chains))
				for id := range sets.Chains {
					ids = append(ids, id)
				}
				sort.Strings(ids)

				for _, id := range ids {
					fmt.Println(id)
					agents := make([]string, 0, len(sets.Chains[id]))
					for a := range sets.Chains[id] {
						agents = append(agents, a)
					}
					sort.Strings(agents)
					for _, a := range agents {
						fmt.Printf("  %-12s %s\n", a, sets.Chains[id][a])
					}
				}
				return nil
			}

			_, agents, _, inline, err := resolveChainArg(args[0], cfg)
			if err != nil {
				return err
			}

			templates := behavior.ResolveChainTemplates(agents, inline, sets.Chains)
			for i, a := range agents {
				fmt.Printf("%d. %-12s %s\n", i+1, a, templates[i])
			}
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(20)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			for _, run := range runs {
				fmt.Printf("#%d %s [%s] %s %s\n",
					run.ID, run.ChainName, run.Status,
					storage.FormatTimeAgo(run.CreatedAt),
					truncate(run.Task, 50))
			}

			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			_, store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			fmt.Printf("Run #%d: %s\n", run.ID, run.ChainName)
			fmt.Printf("Status: %s\n", run.Status)
			fmt.Printf("Task: %s\n", run.Task)
			fmt.Printf("Agents: %s\n", run.ChainID)
			fmt.Printf("Chain dir: %s\n", run.ChainDir)
			if run.CurrentAgent != "" {
				fmt.Printf("Current agent: %s\n", run.CurrentAgent)
			}
			if run.Error != "" {
				fmt.Printf("Error: %s\n", run.Error)
			}

			steps, err := store.GetStepsForRun(runID)
			if err != nil {
				return err
			}

			if len(steps) > 0 {
				fmt.Println("\nSteps:")
				for _, step := range steps {
					status := string(step.Status)
					if step.ExitCode != nil {
						status += fmt.Sprintf(" (exit %d)", *step.ExitCode)
					}
					fmt.Printf("  %d. %s [%s]\n", step.Position+1, step.AgentName, status)
				}
			}

			return nil
		},
	}
}

func newKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <run-id>",
		Short: "Kill a running chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			cfg, store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			r := runner.New(store, chaindir.New(cfg.ChainsDir()), nil, logger)

			if err := r.KillRun(runID); err != nil {
				return fmt.Errorf("failed to kill run: %w", err)
			}

			fmt.Printf("Killed run #%d\n", runID)
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its chain directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			cfg, store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			r := runner.New(store, chaindir.New(cfg.ChainsDir()), nil, logger)

			if err := r.DeleteRun(runID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			fmt.Printf("Deleted run #%d\n", runID)
			return nil
		},
	}
}

func newCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove aged chain directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			maxAge, _ := cmd.Flags().GetDuration("max-age")

			cfg, err := config.New()
			if err != nil {
				return err
			}

			removed, err := chaindir.New(cfg.ChainsDir()).CleanupAged(maxAge)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			fmt.Printf("Removed %d chain directories\n", removed)
			return nil
		},
	}

	cmd.Flags().Duration("max-age", 7*24*time.Hour, "Remove chain dirs older than this")
	return cmd
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
