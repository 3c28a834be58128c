package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/charliemeyer/pickcode-micro/pkg/config"
	"github.com/charliemeyer/pickcode-micro/pkg/evaluator"
	"github.com/charliemeyer/pickcode-micro/pkg/runtime"
)

const (
	historyFile = ".micro_history"
	promptMain  = "micro> "
	promptCont  = "...    "
	banner      = "micro REPL. Enter expressions as flow YAML, e.g. {let: x, value: {lit: 1}}. Type :help for commands."
	helpText    = `
REPL commands:
  :help            Show this help
  :quit / :exit    Exit the REPL
  :scope           List the top-level bindings
  :load <file>     Run a file into the current session
  :fmt <expr>      Pretty-print an expression without running it
  :reset           Start over with an empty top-level scope
`
)

// session is the state shared by every line of a REPL run: one top-level
// scope that all inputs bind into.
type session struct {
	out    io.Writer
	errOut io.Writer
	cfg    *config.Config
	runID  string
	scope  *evaluator.Scope
	rt     *runtime.Runtime
}

func newSession(out, errOut io.Writer, cfg *config.Config, runID string) *session {
	s := &session{out: out, errOut: errOut, cfg: cfg, runID: runID}
	s.reset()
	return s
}

func (s *session) reset() {
	s.scope = evaluator.NewScope()
	s.rt = runtime.New(
		runtime.WithConfig(s.cfg),
		runtime.WithScope(s.scope),
		runtime.WithRunID(s.runID),
	)
}

// eval runs src against the session scope and prints the value of its last
// expression. A failed input keeps the bindings made before the failure.
func (s *session) eval(src, filename string) {
	res, err := s.rt.Run(src, filename)
	if err != nil {
		for _, d := range runtime.ErrorDiagnostics(err) {
			fmt.Fprintf(s.errOut, "%s[%s]: %s\n", severityLabel(d.IsError()), d.Code, d.Message)
		}
		return
	}
	fmt.Fprintln(s.out, evaluator.FormatValue(res.Value))
}

func severityLabel(isError bool) string {
	if isError {
		return "error"
	}
	return "warning"
}

// command handles a line starting with ':' and reports whether the REPL
// should exit.
func (s *session) command(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case ":help":
		fmt.Fprint(s.out, helpText)

	case ":quit", ":exit":
		return true

	case ":reset":
		s.reset()
		fmt.Fprintln(s.out, "scope reset.")

	case ":scope":
		names := s.scope.Names()
		if len(names) == 0 {
			fmt.Fprintln(s.out, "(empty)")
		}
		for _, name := range names {
			fmt.Fprintf(s.out, "%s = %s\n", name, evaluator.FormatValue(s.scope.Get(name)))
		}

	case ":load":
		if len(fields) < 2 {
			fmt.Fprintln(s.errOut, "usage: :load <file>")
			return false
		}
		path := fields[1]
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(s.errOut, "cannot read %s: %v\n", path, err)
			return false
		}
		s.eval(string(src), path)

	case ":fmt":
		src := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		if src == "" {
			fmt.Fprintln(s.errOut, "usage: :fmt <expr>")
			return false
		}
		out, err := s.rt.Format(src, "<repl>")
		if err != nil {
			for _, d := range runtime.ErrorDiagnostics(err) {
				fmt.Fprintf(s.errOut, "error[%s]: %s\n", d.Code, d.Message)
			}
			return false
		}
		fmt.Fprint(s.out, out)

	default:
		fmt.Fprintln(s.errOut, "unknown command. Type :help for help.")
	}
	return false
}

// unbalanced reports whether src has unclosed flow collections, ignoring
// brackets inside quoted scalars.
func unbalanced(src string) bool {
	depth := 0
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
		}
	}
	return depth > 0
}

// readInput reads one or more lines until flow collections are balanced.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C aborts the current input; let the user start again.
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !unbalanced(b.String()) {
			return b.String(), true
		}
	}
}

func (a *app) cmdRepl(args []string) int {
	cfg, ok := a.loadConfig(true)
	if !ok {
		return exitUsage
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	// Load history (best-effort)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	s := newSession(a.stdout, a.stderr, cfg, a.newRunID())
	fmt.Fprintln(a.stdout, banner)

	for {
		input, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(a.stdout)
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))

		if strings.HasPrefix(input, ":") {
			if s.command(input) {
				break
			}
			continue
		}
		s.eval(input, "<repl>")
	}

	// Persist history (best-effort)
	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return exitOK
}
