package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rulegraph/internal/ir"
)

// marshalIssues converts issues to canonical JSON TEXT for storage.
// An empty list is stored as "[]".
func marshalIssues(issues []Issue) (string, error) {
	arr := make(ir.Array, len(issues))
	for i, is := range issues {
		arr[i] = ir.Object{
			"id":      ir.String(is.ID),
			"message": ir.String(is.Message),
		}
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal issues: %w", err)
	}
	return string(data), nil
}

// unmarshalIssues parses issues TEXT. It returns an empty (non-nil) slice
// for "[]".
func unmarshalIssues(data string) ([]Issue, error) {
	issues := []Issue{}
	if data == "" || data == "[]" {
		return issues, nil
	}
	if err := json.Unmarshal([]byte(data), &issues); err != nil {
		return nil, fmt.Errorf("unmarshal issues: %w", err)
	}
	return issues, nil
}
