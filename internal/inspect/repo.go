package inspect

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/crosslink/internal/alias"
	"github.com/starford/crosslink/internal/apperr"
	"github.com/starford/crosslink/internal/linker"
	"github.com/starford/crosslink/internal/models"
)

// Run summarizes one linking run.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DryRun      bool      `json:"dry_run"`
	MaxDistance int       `json:"max_distance"`
	Documents   int       `json:"documents"`
	Accepted    int       `json:"accepted"`
	Rejected    int       `json:"rejected"`
	Written     int       `json:"written"`
	Failed      int       `json:"failed"`
	Edges       int       `json:"edges"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Summarize fills the counters of run from report. Written is left to the
// caller since only the commit phase knows it.
func Summarize(run Run, report *linker.Report) Run {
	run.Documents = len(report.Results)
	run.Accepted = 0
	run.Rejected = 0
	run.Failed = 0
	for _, res := range report.Results {
		if res.Err != nil {
			run.Failed++
			continue
		}
		run.Accepted += len(res.Accepted)
		run.Rejected += len(res.Rejected)
	}
	run.Edges = report.Edges
	return run
}

// SaveRun stores run together with the alias table, the final token stream
// of each linked document and every candidate, in one transaction.
func (db *DB) SaveRun(run Run, report *linker.Report) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("inspect: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, dry_run, max_distance,
			documents, accepted, rejected, written, failed, edges)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt, run.FinishedAt, run.DryRun, run.MaxDistance,
		run.Documents, run.Accepted, run.Rejected, run.Written, run.Failed, run.Edges)
	if err != nil {
		return fmt.Errorf("inspect: insert run: %w", err)
	}

	aliasStmt, err := tx.Prepare(`INSERT INTO aliases (run_id, alias, paths) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("inspect: prepare alias insert: %w", err)
	}
	defer aliasStmt.Close()
	for _, e := range report.Aliases {
		paths, _ := json.Marshal(e.Paths)
		if _, err := aliasStmt.Exec(run.ID, e.Alias, string(paths)); err != nil {
			return fmt.Errorf("inspect: insert alias: %w", err)
		}
	}

	tokenStmt, err := tx.Prepare(`INSERT INTO tokens (run_id, path, idx, kind, text) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("inspect: prepare token insert: %w", err)
	}
	defer tokenStmt.Close()
	candStmt, err := tx.Prepare(`
		INSERT INTO candidates (run_id, source, target, start_idx, end_idx, phrase, distance, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("inspect: prepare candidate insert: %w", err)
	}
	defer candStmt.Close()

	for _, res := range report.Results {
		if res.Document != nil {
			for i, t := range res.Document.Tokens {
				if _, err := tokenStmt.Exec(run.ID, res.Path, i, string(t.Kind), t.Text); err != nil {
					return fmt.Errorf("inspect: insert token: %w", err)
				}
			}
		}
		for _, c := range res.Candidates {
			decided := decision(res, c)
			if _, err := candStmt.Exec(run.ID, c.Source, c.Target, c.Start, c.End,
				c.Phrase, decided.Distance, decided.Reason); err != nil {
				return fmt.Errorf("inspect: insert candidate: %w", err)
			}
		}
	}

	return tx.Commit()
}

// decision returns the filtered copy of c, which carries distance and reason.
func decision(res *linker.Result, c models.Candidate) models.Candidate {
	for _, list := range [][]models.Candidate{res.Accepted, res.Rejected} {
		for _, d := range list {
			if d.Start == c.Start && d.End == c.End {
				return d
			}
		}
	}
	return c
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, dry_run, max_distance,
			documents, accepted, rejected, written, failed, edges
		FROM runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("inspect: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns the run with id or apperr.ErrNotFound.
func (db *DB) GetRun(id string) (Run, error) {
	row := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, dry_run, max_distance,
			documents, accepted, rejected, written, failed, edges
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("inspect: run %s: %w", id, apperr.ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	err := s.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.MaxDistance,
		&r.Documents, &r.Accepted, &r.Rejected, &r.Written, &r.Failed, &r.Edges)
	if err != nil {
		return Run{}, err
	}
	return r, nil
}

// Aliases returns the alias table recorded for a run, sorted by alias.
func (db *DB) Aliases(runID string) ([]alias.Entry, error) {
	rows, err := db.conn.Query(`SELECT alias, paths FROM aliases WHERE run_id = ? ORDER BY alias`, runID)
	if err != nil {
		return nil, fmt.Errorf("inspect: aliases: %w", err)
	}
	defer rows.Close()

	var out []alias.Entry
	for rows.Next() {
		var e alias.Entry
		var paths string
		if err := rows.Scan(&e.Alias, &paths); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(paths), &e.Paths)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Candidates returns the candidates of a run. An empty source returns all of
// them.
func (db *DB) Candidates(runID, source string) ([]models.Candidate, error) {
	q := `SELECT source, target, start_idx, end_idx, phrase, distance, reason
		FROM candidates WHERE run_id = ?`
	args := []any{runID}
	if source != "" {
		q += ` AND source = ?`
		args = append(args, source)
	}
	q += ` ORDER BY source, start_idx`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("inspect: candidates: %w", err)
	}
	defer rows.Close()

	out := []models.Candidate{}
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.Source, &c.Target, &c.Start, &c.End, &c.Phrase, &c.Distance, &c.Reason); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Tokens returns the recorded token stream of one document in a run.
func (db *DB) Tokens(runID, path string) ([]models.Token, error) {
	rows, err := db.conn.Query(`
		SELECT kind, text FROM tokens WHERE run_id = ? AND path = ? ORDER BY idx
	`, runID, path)
	if err != nil {
		return nil, fmt.Errorf("inspect: tokens: %w", err)
	}
	defer rows.Close()

	var out []models.Token
	for rows.Next() {
		var kind, text string
		if err := rows.Scan(&kind, &text); err != nil {
			return nil, err
		}
		out = append(out, models.Token{Kind: models.TokenKind(kind), Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("inspect: tokens %s: %w", path, apperr.ErrNotFound)
	}
	return out, nil
}

// Prune deletes all but the keep most recent runs.
func (db *DB) Prune(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := db.conn.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("inspect: prune: %w", err)
	}
	return res.RowsAffected()
}
