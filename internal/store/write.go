package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Format is the encoding of a stored rule body.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// Rule is the latest accepted document of one rule index.
type Rule struct {
	Index       int
	Format      Format
	Body        []byte
	ContentHash string
	Revision    int
	Seq         int64
}

// Issue is one problem reported back to a submitter.
type Issue struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Submission is one journaled PUT.
type Submission struct {
	ID          int64
	RequestID   string
	RuleIndex   int
	Format      Format
	ContentHash string
	Accepted    bool
	Issues      []Issue
	Seq         int64
}

// PutRule stores r as the current document of r.Index and returns the
// stored row. The revision starts at 1 and is bumped only when the content
// hash differs from the stored one; an identical document is a no-op.
func (s *Store) PutRule(ctx context.Context, r Rule) (Rule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Rule{}, fmt.Errorf("put rule: %w", err)
	}
	defer tx.Rollback()

	current, err := scanRule(tx.QueryRowContext(ctx, `
		SELECT rule_index, format, body, content_hash, revision, seq
		FROM rules
		WHERE rule_index = ?
	`, r.Index))
	switch {
	case err == nil && current.ContentHash == r.ContentHash && current.Format == r.Format:
		return current, nil
	case err == nil:
		r.Revision = current.Revision + 1
	case errors.Is(err, ErrNotFound):
		r.Revision = 1
	default:
		return Rule{}, fmt.Errorf("put rule: %w", err)
	}

	seq, err := nextSeq(ctx, tx, "rules")
	if err != nil {
		return Rule{}, fmt.Errorf("put rule: %w", err)
	}
	r.Seq = seq

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (rule_index, format, body, content_hash, revision, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_index) DO UPDATE SET
			format = excluded.format,
			body = excluded.body,
			content_hash = excluded.content_hash,
			revision = excluded.revision,
			seq = excluded.seq
	`,
		r.Index,
		string(r.Format),
		r.Body,
		r.ContentHash,
		r.Revision,
		r.Seq,
	)
	if err != nil {
		return Rule{}, fmt.Errorf("put rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Rule{}, fmt.Errorf("put rule: %w", err)
	}
	return r, nil
}

// WriteSubmission appends sub to the journal and returns it with ID and Seq
// assigned.
func (s *Store) WriteSubmission(ctx context.Context, sub Submission) (Submission, error) {
	issuesJSON, err := marshalIssues(sub.Issues)
	if err != nil {
		return Submission{}, fmt.Errorf("write submission: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Submission{}, fmt.Errorf("write submission: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSeq(ctx, tx, "submissions")
	if err != nil {
		return Submission{}, fmt.Errorf("write submission: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO submissions
		(request_id, rule_index, format, content_hash, accepted, issues, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		sub.RequestID,
		sub.RuleIndex,
		string(sub.Format),
		sub.ContentHash,
		sub.Accepted,
		issuesJSON,
		seq,
	)
	if err != nil {
		return Submission{}, fmt.Errorf("write submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Submission{}, fmt.Errorf("write submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Submission{}, fmt.Errorf("write submission: %w", err)
	}

	sub.ID = id
	sub.Seq = seq
	if sub.Issues == nil {
		sub.Issues = []Issue{}
	}
	return sub, nil
}

// nextSeq returns the next logical sequence number of table. The table
// name is never user input.
func nextSeq(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM "+table).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}
