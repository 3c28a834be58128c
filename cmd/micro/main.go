// Command micro runs, checks and formats micro expression trees.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/charliemeyer/pickcode-micro/pkg/config"
	"github.com/charliemeyer/pickcode-micro/pkg/diagnostics"
	"github.com/charliemeyer/pickcode-micro/pkg/evaluator"
	"github.com/charliemeyer/pickcode-micro/pkg/runtime"
)

// Exit codes.
const (
	exitOK      = 0
	exitUsage   = 1
	exitDiag    = 2
	exitRuntime = 4
)

const usage = `usage: micro <command> [options]

commands:
  run <file> [--pretty] [--trace <path>] [--max-depth N]
  check <file> [--pretty]
  fmt <file>
  trace <file.jsonl> [--json|--text]
  repl
  config [--json]
`

type app struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	projectDir string
	newRunID   func() string
}

func main() {
	cwd, _ := os.Getwd()
	a := &app{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		projectDir: cwd,
		newRunID:   uuid.NewString,
	}
	os.Exit(a.main(os.Args[1:]))
}

func (a *app) main(args []string) int {
	if len(args) < 1 {
		fmt.Fprint(a.stderr, usage)
		return exitUsage
	}

	cmd := args[0]
	switch cmd {
	case "run":
		return a.cmdRun(args[1:])
	case "check":
		return a.cmdCheck(args[1:])
	case "fmt":
		return a.cmdFmt(args[1:])
	case "trace":
		return a.cmdTrace(args[1:])
	case "repl":
		return a.cmdRepl(args[1:])
	case "config":
		return a.cmdConfig(args[1:])
	case "help", "--help", "-h":
		fmt.Fprint(a.stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", cmd)
		return exitUsage
	}
}

func (a *app) loadConfig(pretty bool) (*config.Config, bool) {
	cfg, path, err := config.Load(a.projectDir)
	if err != nil {
		diag := diagnostics.MakeDiag(diagnostics.EConfig, err.Error(), nil, "config file: "+path)
		a.printDiags([]diagnostics.Diagnostic{diag}, pretty)
		return nil, false
	}
	return cfg, true
}

func (a *app) cmdRun(args []string) int {
	var file string
	pretty, prettySet := false, false
	tracePath := ""
	maxDepth := 0

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--pretty":
			pretty, prettySet = true, true
		case "--trace":
			if i+1 < len(args) {
				i++
				tracePath = args[i]
			}
		case "--max-depth":
			if i+1 < len(args) {
				i++
				n, err := strconv.Atoi(args[i])
				if err != nil || n <= 0 || n > evaluator.MaxDepthCeiling {
					fmt.Fprintf(a.stderr, "invalid --max-depth: %s (want 1..%d)\n", args[i], evaluator.MaxDepthCeiling)
					return exitUsage
				}
				maxDepth = n
			}
		default:
			if !strings.HasPrefix(args[i], "-") || args[i] == "-" {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(a.stderr, "usage: micro run <file> [--pretty] [--trace <path>] [--max-depth N]")
		return exitUsage
	}

	cfg, ok := a.loadConfig(pretty)
	if !ok {
		return exitUsage
	}
	if !prettySet {
		pretty = cfg.Pretty
	}
	if tracePath == "" {
		tracePath = cfg.Trace
	}

	source, filename, exitCode := a.readSource(file, pretty)
	if exitCode != exitOK {
		return exitCode
	}

	opts := []runtime.Option{runtime.WithConfig(cfg), runtime.WithRunID(a.newRunID())}
	if maxDepth > 0 {
		opts = append(opts, runtime.WithMaxDepth(maxDepth))
	}
	if tracePath != "" {
		tw, err := openTrace(tracePath)
		if err != nil {
			a.printDiags([]diagnostics.Diagnostic{
				diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot open trace file: %s", err), nil, ""),
			}, pretty)
			return exitUsage
		}
		defer func() {
			if err := tw.Close(); err != nil {
				fmt.Fprintf(a.stderr, "warning: trace file %s: %s\n", tracePath, err)
			}
		}()
		opts = append(opts, runtime.WithTrace(tw.Emit))
	}

	result, execErr := runtime.New(opts...).Run(source, filename)
	if execErr != nil {
		a.printDiags(runtime.ErrorDiagnostics(execErr), pretty)
		var diagErr *runtime.DiagnosticError
		if errors.As(execErr, &diagErr) {
			return exitDiag
		}
		return exitRuntime
	}

	if pretty {
		fmt.Fprintln(a.stdout, evaluator.FormatValue(result.Value))
		return exitOK
	}
	jsonBytes, err := evaluator.ValueToJSON(result.Value)
	if err != nil {
		fmt.Fprintf(a.stderr, "error serializing result: %s\n", err)
		return exitRuntime
	}
	fmt.Fprintln(a.stdout, string(jsonBytes))
	return exitOK
}

func (a *app) cmdCheck(args []string) int {
	var file string
	pretty := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--pretty":
			pretty = true
		default:
			if !strings.HasPrefix(args[i], "-") || args[i] == "-" {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintln(a.stderr, "usage: micro check <file> [--pretty]")
		return exitUsage
	}

	source, filename, exitCode := a.readSource(file, pretty)
	if exitCode != exitOK {
		return exitCode
	}

	diags := runtime.New().Check(source, filename)
	if len(diags) > 0 {
		a.printDiags(diags, pretty)
	}
	if diagnostics.HasErrors(diags) {
		return exitDiag
	}

	if pretty {
		fmt.Fprintln(a.stdout, "No errors found.")
	} else {
		fmt.Fprintln(a.stdout, "[]")
	}
	return exitOK
}

func (a *app) cmdFmt(args []string) int {
	var file string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			file = arg
		}
	}

	if file == "" {
		fmt.Fprintln(a.stderr, "usage: micro fmt <file>")
		return exitUsage
	}

	source, filename, exitCode := a.readSource(file, false)
	if exitCode != exitOK {
		return exitCode
	}

	formatted, fmtErr := runtime.New().Format(source, filename)
	if fmtErr != nil {
		a.printDiags(runtime.ErrorDiagnostics(fmtErr), false)
		return exitDiag
	}
	fmt.Fprint(a.stdout, formatted)
	return exitOK
}

func (a *app) cmdConfig(args []string) int {
	cfg, path, err := config.Load(a.projectDir)
	if err != nil {
		a.printDiags([]diagnostics.Diagnostic{
			diagnostics.MakeDiag(diagnostics.EConfig, err.Error(), nil, ""),
		}, true)
		return exitUsage
	}

	asJSON := len(args) > 0 && args[0] == "--json"
	if asJSON {
		b, _ := json.MarshalIndent(map[string]any{
			"source":   path,
			"maxDepth": cfg.MaxDepth,
			"trace":    cfg.Trace,
			"pretty":   cfg.Pretty,
		}, "", "  ")
		fmt.Fprintln(a.stdout, string(b))
		return exitOK
	}

	if path == "" {
		fmt.Fprintln(a.stdout, "# defaults (no config file found)")
	} else {
		fmt.Fprintf(a.stdout, "# %s\n", path)
	}
	data, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintf(a.stderr, "error serializing config: %s\n", err)
		return exitUsage
	}
	fmt.Fprint(a.stdout, string(data))
	return exitOK
}

func (a *app) printDiags(diags []diagnostics.Diagnostic, pretty bool) {
	fmt.Fprintln(a.stderr, diagnostics.FormatDiagnostics(diags, pretty))
}

func (a *app) readSource(file string, pretty bool) (string, string, int) {
	if file == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			fmt.Fprintf(a.stderr, "error reading stdin: %s\n", err)
			return "", "", exitUsage
		}
		return string(data), "<stdin>", exitOK
	}

	source, err := os.ReadFile(file)
	if err != nil {
		diag := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf("cannot read file: %s", file), nil, "")
		a.printDiags([]diagnostics.Diagnostic{diag}, pretty)
		return "", "", exitUsage
	}
	return string(source), file, exitOK
}
