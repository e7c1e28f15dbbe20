package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/infinity/lang/cfg"
	"github.com/mna/infinity/lang/parser"
	"github.com/mna/infinity/lang/resolver"
	"github.com/mna/infinity/lang/stackwalk"
	"github.com/mna/infinity/lang/token"
)

// Check runs every pass through the stack walker and reports diagnostics,
// without emitting bytecode.
func (c *Cmd) Check(ctx context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		if err := checkFile(path); err != nil {
			printError(stdio, err)
			failed = true
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s: ok\n", path)
	}
	if failed {
		return fmt.Errorf("check: one or more files failed")
	}
	return nil
}

func checkFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := parser.ParseSource(path, src)
	if err != nil {
		return err
	}
	file := token.NewFile(path)
	if err := resolver.TypeAnnotate(file, prog); err != nil {
		return err
	}
	if err := resolver.NameAnnotate(file, prog); err != nil {
		return err
	}
	cp, err := cfg.Build(file, prog)
	if err != nil {
		return err
	}
	_, err = stackwalk.Walk(file, cp)
	return err
}
