package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/felixcuello/cp-server/internal/judge"
)

// Postgres implements the judge stores against the platform database.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to the platform database and verifies the
// connection.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection pool.
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type problemRow struct {
	ID                    int64  `db:"id"`
	Title                 string `db:"title"`
	Difficulty            int    `db:"difficulty"`
	TimeLimitSec          int    `db:"time_limit"`
	MemoryLimitKB         int    `db:"memory_limit"`
	TestingMode           string `db:"testing_mode"`
	IgnoreOutputLineOrder bool   `db:"ignore_output_line_order"`
	TotalSubmissions      int    `db:"total_submissions"`
	AcceptedSubmissions   int    `db:"accepted_submissions"`
}

type languageRow struct {
	ID                int64          `db:"id"`
	Name              string         `db:"name"`
	CompilerBinary    sql.NullString `db:"compiler_binary"`
	CompilerFlags     sql.NullString `db:"compiler_flags"`
	InterpreterBinary sql.NullString `db:"interpreter_binary"`
	InterpreterFlags  sql.NullString `db:"interpreter_flags"`
	MemoryLimitKB     int            `db:"memory_limit"`
	TimeLimitSec      int            `db:"time_limit"`
	Extension         string         `db:"extension"`
}

type exampleRow struct {
	ID        int64  `db:"id"`
	ProblemID int64  `db:"problem_id"`
	Input     []byte `db:"input"`
	Output    []byte `db:"output"`
	SortOrder int    `db:"sort_order"`
	IsHidden  bool   `db:"is_hidden"`
}

func (p *Postgres) GetProblem(ctx context.Context, id int64) (judge.Problem, error) {
	var row problemRow
	err := p.db.GetContext(ctx, &row,
		`SELECT id, title, difficulty, time_limit, memory_limit, testing_mode,
		        ignore_output_line_order, total_submissions, accepted_submissions
		 FROM problems WHERE id = $1`, id)
	if err != nil {
		return judge.Problem{}, fmt.Errorf("select problem %d: %w", id, err)
	}
	return judge.Problem{
		ID:                    row.ID,
		Title:                 row.Title,
		Difficulty:            judge.Difficulty(row.Difficulty),
		TimeLimitSec:          row.TimeLimitSec,
		MemoryLimitKB:         row.MemoryLimitKB,
		TestingMode:           judge.TestingMode(row.TestingMode),
		IgnoreOutputLineOrder: row.IgnoreOutputLineOrder,
		TotalSubmissions:      row.TotalSubmissions,
		AcceptedSubmissions:   row.AcceptedSubmissions,
	}, nil
}

func (p *Postgres) GetLanguage(ctx context.Context, id int64) (judge.Language, error) {
	var row languageRow
	err := p.db.GetContext(ctx, &row,
		`SELECT id, name, compiler_binary, compiler_flags, interpreter_binary,
		        interpreter_flags, memory_limit, time_limit, extension
		 FROM languages WHERE id = $1`, id)
	if err != nil {
		return judge.Language{}, fmt.Errorf("select language %d: %w", id, err)
	}
	return judge.Language{
		ID:                row.ID,
		Name:              row.Name,
		CompilerBinary:    row.CompilerBinary.String,
		CompilerFlags:     row.CompilerFlags.String,
		InterpreterBinary: row.InterpreterBinary.String,
		InterpreterFlags:  row.InterpreterFlags.String,
		MemoryLimitKB:     row.MemoryLimitKB,
		TimeLimitSec:      row.TimeLimitSec,
		Extension:         row.Extension,
	}, nil
}

// AddExample stores a new test case with its payloads compressed, the
// write half of the blob codec OrderedExamples decompresses.
func (p *Postgres) AddExample(ctx context.Context, ex judge.Example) (int64, error) {
	var id int64
	err := p.db.GetContext(ctx, &id,
		`INSERT INTO examples (problem_id, input, output, sort_order, is_hidden)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ex.ProblemID,
		CompressBlob([]byte(ex.Input)),
		CompressBlob([]byte(ex.Output)),
		ex.SortOrder, ex.IsHidden)
	if err != nil {
		return 0, fmt.Errorf("insert example for problem %d: %w", ex.ProblemID, err)
	}
	return id, nil
}

func (p *Postgres) OrderedExamples(ctx context.Context, problemID int64) ([]judge.Example, error) {
	var rows []exampleRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT id, problem_id, input, output, sort_order, is_hidden
		 FROM examples WHERE problem_id = $1 ORDER BY sort_order ASC, id ASC`,
		problemID)
	if err != nil {
		return nil, fmt.Errorf("select examples for problem %d: %w", problemID, err)
	}
	examples := make([]judge.Example, 0, len(rows))
	for _, row := range rows {
		input, err := DecompressBlob(row.Input)
		if err != nil {
			return nil, fmt.Errorf("example %d input: %w", row.ID, err)
		}
		output, err := DecompressBlob(row.Output)
		if err != nil {
			return nil, fmt.Errorf("example %d output: %w", row.ID, err)
		}
		examples = append(examples, judge.Example{
			ID:        row.ID,
			ProblemID: row.ProblemID,
			Input:     string(input),
			Output:    string(output),
			SortOrder: row.SortOrder,
			IsHidden:  row.IsHidden,
		})
	}
	return examples, nil
}

func (p *Postgres) TemplateFor(ctx context.Context, problemID, languageID int64) (*judge.Template, error) {
	var code string
	err := p.db.GetContext(ctx, &code,
		`SELECT template_code FROM problem_templates
		 WHERE problem_id = $1 AND language_id = $2`,
		problemID, languageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select template (problem %d, language %d): %w", problemID, languageID, err)
	}
	return &judge.Template{ProblemID: problemID, LanguageID: languageID, TemplateCode: code}, nil
}

func (p *Postgres) TesterFor(ctx context.Context, problemID, languageID int64) (*judge.Tester, error) {
	var code string
	err := p.db.GetContext(ctx, &code,
		`SELECT tester_code FROM problem_testers
		 WHERE problem_id = $1 AND language_id = $2`,
		problemID, languageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select tester (problem %d, language %d): %w", problemID, languageID, err)
	}
	return &judge.Tester{ProblemID: problemID, LanguageID: languageID, TesterCode: code}, nil
}

func (p *Postgres) UpdateStatistics(ctx context.Context, problemID int64, total, accepted int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE problems SET total_submissions = $1, accepted_submissions = $2,
		        updated_at = NOW()
		 WHERE id = $3`,
		total, accepted, problemID)
	if err != nil {
		return fmt.Errorf("update statistics for problem %d: %w", problemID, err)
	}
	return nil
}

func (p *Postgres) GetSubmission(ctx context.Context, id int64) (judge.Submission, error) {
	var sub judge.Submission
	err := p.db.GetContext(ctx, &sub,
		`SELECT id, problem_id, language_id, user_id, contest_id, source_code,
		        status, time_used, memory_used, created_at, updated_at
		 FROM submissions WHERE id = $1`, id)
	if err != nil {
		return judge.Submission{}, fmt.Errorf("select submission %d: %w", id, err)
	}
	return sub, nil
}

// ClaimForJudging is the idempotency gate: the conditional UPDATE wins for
// exactly one worker, every redelivery sees zero affected rows.
func (p *Postgres) ClaimForJudging(ctx context.Context, id int64, next judge.Status) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE submissions SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status IN ('queued', 'enqueued')`,
		next, id)
	if err != nil {
		return false, fmt.Errorf("claim submission %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim submission %d: rows affected: %w", id, err)
	}
	return affected == 1, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, id int64, status judge.Status) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE submissions SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update submission %d status: %w", id, err)
	}
	return nil
}

func (p *Postgres) UpdateTimeUsed(ctx context.Context, id int64, seconds float64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE submissions SET time_used = $1, updated_at = NOW() WHERE id = $2`,
		seconds, id)
	if err != nil {
		return fmt.Errorf("update submission %d time_used: %w", id, err)
	}
	return nil
}

func (p *Postgres) CountForProblem(ctx context.Context, problemID int64) (total, accepted int, err error) {
	row := struct {
		Total    int `db:"total"`
		Accepted int `db:"accepted"`
	}{}
	err = p.db.GetContext(ctx, &row,
		`SELECT COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE status = 'accepted') AS accepted
		 FROM submissions WHERE problem_id = $1`, problemID)
	if err != nil {
		return 0, 0, fmt.Errorf("count submissions for problem %d: %w", problemID, err)
	}
	return row.Total, row.Accepted, nil
}

// UpsertUserProblemStatus keeps the per-user solve record monotonic: a
// solved row never regresses when a later submission fails.
func (p *Postgres) UpsertUserProblemStatus(ctx context.Context, userID, problemID int64, accepted bool) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO user_problem_statuses (user_id, problem_id, solved, attempts, updated_at)
		 VALUES ($1, $2, $3, 1, NOW())
		 ON CONFLICT (user_id, problem_id) DO UPDATE
		 SET solved = user_problem_statuses.solved OR EXCLUDED.solved,
		     attempts = user_problem_statuses.attempts + 1,
		     updated_at = NOW()`,
		userID, problemID, accepted)
	if err != nil {
		return fmt.Errorf("upsert user problem status (%d, %d): %w", userID, problemID, err)
	}
	return nil
}
