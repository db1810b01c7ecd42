package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mpataki/relay/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		task TEXT NOT NULL,
		chain_name TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		chain_dir TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		current_agent TEXT,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		agent_name TEXT NOT NULL,
		template TEXT NOT NULL,
		prompt TEXT,
		result TEXT,
		claude_session_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		exit_code INTEGER,
		pid INTEGER,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		UNIQUE(run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

func (s *Storage) CreateRun(run *models.Run) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO runs (task, chain_name, chain_id, chain_dir, status, current_agent, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Task, run.ChainName, run.ChainID, run.ChainDir, run.Status, run.CurrentAgent, run.Error,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetRun(id int64) (*models.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, completed_at, task, chain_name, chain_id, chain_dir, status, current_agent, error
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row.Scan)
}

func scanRun(scan func(...any) error) (*models.Run, error) {
	var run models.Run
	var completedAt sql.NullTime
	var currentAgent, runErr sql.NullString

	err := scan(
		&run.ID, &run.CreatedAt, &completedAt, &run.Task,
		&run.ChainName, &run.ChainID, &run.ChainDir, &run.Status, &currentAgent, &runErr,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if currentAgent.Valid {
		run.CurrentAgent = currentAgent.String
	}
	if runErr.Valid {
		run.Error = runErr.String
	}

	return &run, nil
}

func (s *Storage) UpdateRun(run *models.Run) error {
	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, current_agent = ?, chain_dir = ?, error = ? WHERE id = ?`,
		run.CompletedAt, run.Status, run.CurrentAgent, run.ChainDir, run.Error, run.ID,
	)
	return err
}

func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, completed_at, task, chain_name, chain_id, chain_dir, status, current_agent, error
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *Storage) CreateStep(step *models.StepExecution) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO steps (run_id, position, agent_name, template, prompt, result, claude_session_id, status, exit_code, pid, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.RunID, step.Position, step.AgentName, step.Template, step.Prompt, step.Result,
		step.ClaudeSessionID, step.Status, step.ExitCode, step.PID, step.StartedAt, step.CompletedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetStepsForRun(runID int64) ([]*models.StepExecution, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, position, agent_name, template, prompt, result, claude_session_id, status, exit_code, pid, started_at, completed_at
		 FROM steps WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.StepExecution
	for rows.Next() {
		var step models.StepExecution
		var prompt, result, sessionID sql.NullString
		var exitCode, pid sql.NullInt64
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&step.ID, &step.RunID, &step.Position, &step.AgentName, &step.Template,
			&prompt, &result, &sessionID, &step.Status, &exitCode, &pid, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}

		if prompt.Valid {
			step.Prompt = prompt.String
		}
		if result.Valid {
			step.Result = result.String
		}
		if sessionID.Valid {
			step.ClaudeSessionID = sessionID.String
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			step.ExitCode = &code
		}
		if pid.Valid {
			p := int(pid.Int64)
			step.PID = &p
		}
		if startedAt.Valid {
			step.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			step.CompletedAt = &completedAt.Time
		}

		steps = append(steps, &step)
	}

	return steps, rows.Err()
}

func (s *Storage) GetRunningStepForRun(runID int64) (*models.StepExecution, error) {
	steps, err := s.GetStepsForRun(runID)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		if step.Status == models.StepStatusRunning {
			return step, nil
		}
	}
	return nil, nil
}

func (s *Storage) UpdateStepPID(stepID int64, pid int) error {
	_, err := s.db.Exec(`UPDATE steps SET pid = ? WHERE id = ?`, pid, stepID)
	return err
}

func (s *Storage) UpdateStep(step *models.StepExecution) error {
	_, err := s.db.Exec(
		`UPDATE steps SET prompt = ?, result = ?, claude_session_id = ?, status = ?, exit_code = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		step.Prompt, step.Result, step.ClaudeSessionID, step.Status, step.ExitCode, step.StartedAt, step.CompletedAt, step.ID,
	)
	return err
}

func (s *Storage) DeleteRun(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM steps WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// FormatTimeAgo renders a timestamp for list views.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
