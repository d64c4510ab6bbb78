package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no rule is stored under an index.
var ErrNotFound = errors.New("not found")

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadRule returns the rule stored under index, or ErrNotFound.
func (s *Store) ReadRule(ctx context.Context, index int) (Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `
		SELECT rule_index, format, body, content_hash, revision, seq
		FROM rules
		WHERE rule_index = ?
	`, index))
	if err != nil {
		return Rule{}, fmt.Errorf("read rule %d: %w", index, err)
	}
	return r, nil
}

// ListRules returns every stored rule ordered by index.
// Returns an empty slice (not nil) when nothing is stored.
func (s *Store) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_index, format, body, content_hash, revision, seq
		FROM rules
		ORDER BY rule_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// ReadSubmissions returns the journal of one rule index in write order.
// A positive limit keeps only the newest entries.
func (s *Store) ReadSubmissions(ctx context.Context, index, limit int) ([]Submission, error) {
	query := `
		SELECT id, request_id, rule_index, format, content_hash, accepted, issues, seq
		FROM submissions
		WHERE rule_index = ?
		ORDER BY seq ASC, id ASC
	`
	args := []any{index}
	if limit > 0 {
		query = `
		SELECT * FROM (
			SELECT id, request_id, rule_index, format, content_hash, accepted, issues, seq
			FROM submissions
			WHERE rule_index = ?
			ORDER BY seq DESC, id DESC
			LIMIT ?
		) ORDER BY seq ASC, id ASC
	`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	subs := []Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

// ReadSubmissionByRequest finds the journal entry of a request id.
func (s *Store) ReadSubmissionByRequest(ctx context.Context, requestID string) (Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `
		SELECT id, request_id, rule_index, format, content_hash, accepted, issues, seq
		FROM submissions
		WHERE request_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, requestID))
	if err != nil {
		return Submission{}, fmt.Errorf("read submission %s: %w", requestID, err)
	}
	return sub, nil
}

func scanRule(row rowScanner) (Rule, error) {
	var r Rule
	var format string
	err := row.Scan(&r.Index, &format, &r.Body, &r.ContentHash, &r.Revision, &r.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, fmt.Errorf("scan rule: %w", err)
	}
	r.Format = Format(format)
	return r, nil
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var format, issues string
	err := row.Scan(
		&sub.ID,
		&sub.RequestID,
		&sub.RuleIndex,
		&format,
		&sub.ContentHash,
		&sub.Accepted,
		&issues,
		&sub.Seq,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	if err != nil {
		return Submission{}, fmt.Errorf("scan submission: %w", err)
	}
	sub.Format = Format(format)
	if sub.Issues, err = unmarshalIssues(issues); err != nil {
		return Submission{}, err
	}
	return sub, nil
}
