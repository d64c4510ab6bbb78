package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNode is returned when a node id is not in the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownConnection is returned when a connection id is not in the graph.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrDuplicateLabel is returned by RenameNode when another node owns the label.
	ErrDuplicateLabel = errors.New("duplicate label")
)

// PolicyCode identifies which port policy rule a connect attempt violated.
type PolicyCode string

const (
	PolicyUnknownEndpoint PolicyCode = "unknown_endpoint"
	PolicyWrongRole       PolicyCode = "wrong_role"
	PolicyScopeMismatch   PolicyCode = "scope_mismatch"
	PolicyEndpointInUse   PolicyCode = "endpoint_in_use"
	PolicyOutputInUse     PolicyCode = "output_in_use"
	PolicySelfConnection  PolicyCode = "self_connection"
)

// PolicyError reports a connection rejected by the port policy.
type PolicyError struct {
	Code    PolicyCode
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("port policy [%s]: %s", e.Code, e.Message)
}

// IsPolicyError reports whether err is (or wraps) a *PolicyError.
func IsPolicyError(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

func policyErr(code PolicyCode, format string, args ...any) *PolicyError {
	return &PolicyError{Code: code, Message: fmt.Sprintf(format, args...)}
}
