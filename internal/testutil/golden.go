// Package testutil provides shared test helpers for micro Go tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ScenariosDir is the relative path from the module root to the scenarios.
const ScenariosDir = "testdata/scenarios"

// ScenarioFile is the file that marks a directory as a scenario.
const ScenarioFile = "scenario.yaml"

// Scenario represents a test scenario loaded from a scenario.yaml file.
type Scenario struct {
	// Cmd is the CLI command line without the program name, for example
	// [run, program.yaml, --pretty].
	Cmd      []string       `yaml:"cmd"`
	MaxDepth int            `yaml:"maxDepth,omitempty"`
	Meta     *ScenarioMeta  `yaml:"meta,omitempty"`
	Expect   ExpectedResult `yaml:"expect"`
}

// ScenarioMeta holds optional scenario metadata.
type ScenarioMeta struct {
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// ExpectedResult describes the expected outcome of running a scenario.
type ExpectedResult struct {
	ExitCode       int    `yaml:"exitCode"`
	StdoutText     string `yaml:"stdoutText,omitempty"`
	StdoutContains string `yaml:"stdoutContains,omitempty"`
	StderrContains string `yaml:"stderrContains,omitempty"`
	// StderrCodes lists the diagnostic codes expected on stderr, in order.
	StderrCodes []string `yaml:"stderrCodes,omitempty"`
	// Values holds the formatted value of each completed top-level
	// expression of a run.
	Values []string `yaml:"values,omitempty"`
	// Scope maps top-level names to their formatted values after a run.
	// A name mapped to "<unbound>" must not be bound.
	Scope map[string]string `yaml:"scope,omitempty"`
}

// LoadScenario loads a scenario from a directory containing scenario.yaml.
// Unknown keys are rejected so typos in expectations cannot pass silently.
func LoadScenario(dir string) (*Scenario, error) {
	f, err := os.Open(filepath.Join(dir, ScenarioFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Scenario
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	if len(s.Cmd) == 0 {
		return nil, fmt.Errorf("%s: scenario has no cmd", dir)
	}
	return &s, nil
}

// ListScenarios returns all scenario directories under the given root,
// sorted by name.
func ListScenarios(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			scenarioPath := filepath.Join(root, e.Name(), ScenarioFile)
			if _, err := os.Stat(scenarioPath); err == nil {
				dirs = append(dirs, filepath.Join(root, e.Name()))
			}
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ReadProgramFile reads the program file referenced by the scenario cmd.
func ReadProgramFile(scenarioDir string, cmd []string) (string, string, error) {
	if len(cmd) < 2 {
		return "", "", nil
	}
	filename := cmd[1]
	source, err := os.ReadFile(filepath.Join(scenarioDir, filename))
	if err != nil {
		return "", "", err
	}
	return string(source), filename, nil
}
