// Package maincmd implements the infinityc command-line driver: argument
// parsing and dispatch shared by cmd/infinityc, split out so it can be
// exercised by tests without going through os.Args.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/mna/mainer"
)

const binName = "infinityc"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>...]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler for the Infinity notes stack language.

The <command> can be one of:
       tokenize                  Run the lexer and print the resulting
                                 tokens.
       parse                     Run the parser and print the resulting
                                 syntax tree.
       check                     Run every pass through the stack walker
                                 and report diagnostics, without emitting
                                 bytecode.
       compile                   Run the full pipeline and print the
                                 assembler output embedding the compiled
                                 bytecode.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --no-optimize              Skip BlockOptimizer and StreamOptimizer
                                 (compile only).

More information on the Infinity project:
       https://github.com/mna/infinity
`, binName)
)

// envConfig holds settings read from the process environment, overridable
// per-run but never required: a compiler that needs an environment
// variable to function at all would violate spec.md §5's "no I/O inside
// the core" boundary, so these only ever affect driver-level behavior.
type envConfig struct {
	// Verbose enables extra stderr tracing of each pipeline stage's
	// elapsed time, useful when diagnosing a slow compile.
	Verbose bool `env:"INFINITYC_VERBOSE" envDefault:"false"`
}

// Cmd is the infinityc command, bound to mainer's flag parser via the
// `flag` struct tags below.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	NoOptimize bool `flag:"no-optimize"`

	env envConfig

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if err := env.Parse(&c.env); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}
	cmdName := c.args[0]

	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: at least one file must be provided", cmdName)
	}
	if c.flags["no-optimize"] && cmdName != "compile" {
		return fmt.Errorf("%s: invalid flag 'no-optimize'", cmdName)
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds reflects over v's methods to find those matching the
// (context.Context, mainer.Stdio, []string) error shape, keyed by their
// lowercased name — the same dispatch trick the teacher's CLI driver uses
// so that adding a subcommand is just adding a method.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}
