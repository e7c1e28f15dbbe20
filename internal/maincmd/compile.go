package maincmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mna/mainer"

	"github.com/mna/infinity/lang/blockopt"
	"github.com/mna/infinity/lang/cfg"
	"github.com/mna/infinity/lang/emitter"
	"github.com/mna/infinity/lang/parser"
	"github.com/mna/infinity/lang/resolver"
	"github.com/mna/infinity/lang/serializer"
	"github.com/mna/infinity/lang/stackwalk"
	"github.com/mna/infinity/lang/streamopt"
	"github.com/mna/infinity/lang/token"
)

// Compile runs the full pipeline and prints the assembler output embedding
// the compiled bytecode.
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		if err := c.compileFile(stdio, path); err != nil {
			printError(stdio, err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("compile: one or more files failed")
	}
	return nil
}

func (c *Cmd) compileFile(stdio mainer.Stdio, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	started := time.Now()
	trace := func(stage string) {
		if c.env.Verbose {
			fmt.Fprintf(stdio.Stderr, "%s: %s: %s\n", path, stage, time.Since(started))
		}
	}

	prog, err := parser.ParseSource(path, src)
	if err != nil {
		return err
	}
	trace("parse")

	file := token.NewFile(path)
	if err := resolver.TypeAnnotate(file, prog); err != nil {
		return err
	}
	trace("type-annotate")

	if err := resolver.NameAnnotate(file, prog); err != nil {
		return err
	}
	trace("name-annotate")

	cp, err := cfg.Build(file, prog)
	if err != nil {
		return err
	}
	trace("block-create")

	if _, err := stackwalk.Walk(file, cp); err != nil {
		return err
	}
	trace("stack-walk")

	if !c.NoOptimize {
		blockopt.Optimize(cp)
		trace("block-optimize")
	}

	out, err := serializer.Serialize(file, cp)
	if err != nil {
		return err
	}
	trace("serialize")

	if !c.NoOptimize {
		streamopt.Optimize(out)
		trace("stream-optimize")
	}

	if err := emitter.Emit(stdio.Stdout, out); err != nil {
		return err
	}
	trace("emit")
	return nil
}
