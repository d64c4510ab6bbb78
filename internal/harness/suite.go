package harness

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// SuiteResult summarizes a run over many scenario files.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one scenario that did not pass.
type SuiteFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// ExpandPaths turns files and directories into a sorted list of scenario
// files. Directories contribute their *.yaml and *.yml entries, not
// recursively.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path: %w", err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, err
			}
			out = append(out, matches...)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RunSuite loads and runs every scenario file. A file that cannot be
// loaded or run counts as a failure; the suite keeps going.
func RunSuite(paths []string, logger *slog.Logger) (*SuiteResult, error) {
	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, err
	}

	res := &SuiteResult{}
	for _, path := range files {
		res.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			res.fail(filepath.Base(path), path, err.Error())
			continue
		}
		result, err := RunWithLogger(scenario, logger)
		if err != nil {
			res.fail(scenario.Name, path, err.Error())
			continue
		}
		if !result.Pass {
			res.fail(scenario.Name, path, result.Errors...)
			continue
		}
		res.Passed++
		logger.Debug("scenario passed", "scenario", scenario.Name, "path", path)
	}
	return res, nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{Scenario: name, Path: path, Errors: errs})
}
