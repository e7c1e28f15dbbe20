package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/infinity/lang/lexer"
	"github.com/mna/infinity/lang/token"
)

// Tokenize runs the lexer over each given file and prints its tokens.
func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		if err := tokenizeFile(stdio, path); err != nil {
			printError(stdio, err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("tokenize: one or more files failed")
	}
	return nil
}

func tokenizeFile(stdio mainer.Stdio, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	file := token.NewFile(path)
	toks, err := lexer.ScanAll(path, src)
	for _, t := range toks {
		pos := file.Position(t.Pos)
		if t.Kind == token.WORD || t.Kind == token.NUMBER {
			fmt.Fprintf(stdio.Stdout, "%s: %s %q\n", pos, t.Kind, t.Text)
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s: %s\n", pos, t.Kind)
	}
	return err
}
