package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBufferResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	return resp
}

func TestOutputFormatter_SuccessEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]any{"label": "Names match", "revision": 2}))

	resp := decodeBufferResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Names match", data["label"])
	assert.EqualValues(t, 2, data["revision"])
}

func TestOutputFormatter_Fail(t *testing.T) {
	tests := []struct {
		name string
		exit int
		code string
		msg  string
	}{
		{"generic", ExitCommandError, ErrCodeGeneric, "unsupported format \"csv\""},
		{"parse", ExitCommandError, ErrCodeParse, "graph.json: unknown field \"nodez\""},
		{"invalid graph", ExitFailure, ErrCodeInvalid, "rule graph is invalid"},
		{"backend down", ExitFailure, ErrCodeTransport, "backend unreachable"},
		{"unknown rule", ExitCommandError, ErrCodeNotFound, "rule \"names\" not found"},
		{"rejected", ExitFailure, ErrCodeRejected, "backend rejected the rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "json", Writer: buf}

			err := f.Fail(tt.exit, tt.code, tt.msg, nil)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.code)

			resp := decodeBufferResponse(t, buf)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.msg, resp.Error.Message)
		})
	}
}

func TestOutputFormatter_FailWithIssues(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	issues := []map[string]string{{"code": "E122", "node": "op1", "message": "operator has no parent"}}
	err := f.Fail(ExitFailure, ErrCodeInvalid, "rule graph is invalid", issues)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeBufferResponse(t, buf)
	details, ok := resp.Error.Details.([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "E122", details[0].(map[string]any)["code"])
}

func TestOutputFormatter_TextFail(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			err := f.Fail(ExitFailure, ErrCodeRejected, "backend rejected the rule", []string{"E126 op2"})
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, buf.String(), "Error [E006]: backend rejected the rule")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: [E126 op2]")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("rule names submitted (revision 3)"))
	assert.Equal(t, "rule names submitted (revision 3)\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		errOut  bool
	}{
		{"silent", false, true},
		{"to error writer", true, true},
		{"falls back to writer", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			f := &OutputFormatter{Format: "json", Writer: out, Verbose: tt.verbose}
			if tt.errOut {
				f.ErrWriter = errOut
			}

			f.VerboseLog("loaded %d nodes from %s", 5, "linkage.json")

			switch {
			case !tt.verbose:
				assert.Empty(t, out.String())
				assert.Empty(t, errOut.String())
			case tt.errOut:
				assert.Empty(t, out.String(), "diagnostics stay out of the envelope")
				assert.Equal(t, "loaded 5 nodes from linkage.json\n", errOut.String())
			default:
				assert.Equal(t, "loaded 5 nodes from linkage.json\n", out.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	cause := errors.New("open linkage.json: no such file or directory")
	wrapped := fmt.Errorf("rules submit: %w", WrapExitError(ExitCommandError, "cannot read graph", cause))

	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, "cannot read graph: open linkage.json: no such file or directory", WrapExitError(ExitCommandError, "cannot read graph", cause).Error())
	assert.Equal(t, "rule graph is invalid", NewExitError(ExitFailure, "rule graph is invalid").Error())
}
