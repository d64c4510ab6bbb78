package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rulegraph/internal/graph"
)

// LoadError describes a graph file that could not be read.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadSnapshot reads a saved graph. The file holds a graph snapshot as
// JSON, or as YAML when the extension is .yaml or .yml.
func LoadSnapshot(path string) (graph.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return graph.Snapshot{}, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "graph file not found"}
	}
	if err != nil {
		return graph.Snapshot{}, &LoadError{Code: ErrCodeGeneric, Path: path, Message: err.Error()}
	}

	snap, err := decodeSnapshot(path, data)
	if err != nil {
		return graph.Snapshot{}, &LoadError{Code: ErrCodeParse, Path: path, Message: err.Error()}
	}
	return snap, nil
}

// LoadGraph reads a saved graph and rebuilds its endpoints and connection
// ids.
func LoadGraph(path string) (*graph.Graph, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	if err := g.Restore(snap); err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Path: path, Message: err.Error()}
	}
	return g, nil
}

func decodeSnapshot(path string, data []byte) (graph.Snapshot, error) {
	var snap graph.Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// YAML goes through a generic tree so the JSON field names apply.
		var tree any
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&tree); err != nil {
			return snap, fmt.Errorf("parse yaml: %w", err)
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return snap, fmt.Errorf("parse yaml: %w", err)
		}
		data = converted
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return snap, fmt.Errorf("parse json: %w", err)
	}
	return snap, nil
}
