package maincmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/infinity/lang/ast"
	"github.com/mna/infinity/lang/parser"
)

// Parse runs the parser over each given file and prints the resulting
// syntax tree.
func (c *Cmd) Parse(ctx context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		if err := parseFile(stdio.Stdout, path); err != nil {
			printError(stdio, err)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("parse: one or more files failed")
	}
	return nil
}

func parseFile(w io.Writer, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := parser.ParseSource(path, src)
	if err != nil {
		return err
	}
	printProgram(w, prog)
	return nil
}

func printProgram(w io.Writer, prog *ast.Program) {
	for _, td := range prog.Typedefs {
		fmt.Fprintf(w, "typedef %s %s\n", typeExprString(td.Type), td.Name)
	}
	for _, fn := range prog.Funcs {
		printFunc(w, fn)
	}
}

func printFunc(w io.Writer, fn *ast.FuncDecl) {
	fmt.Fprintf(w, "define %s (", fn.QualifiedName())
	for i, a := range fn.Params {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%s %s", typeExprString(a.Type), a.Name)
	}
	fmt.Fprint(w, ") -> ")
	for i, r := range fn.Returns {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprint(w, typeExprString(r))
	}
	fmt.Fprintln(w)
	for _, e := range fn.Externs {
		switch e := e.(type) {
		case *ast.ExternFunc:
			fmt.Fprintf(w, "\textern func %s\n", e.Name)
		case *ast.ExternPtr:
			fmt.Fprintf(w, "\textern ptr %s\n", e.Name)
		}
	}
	for _, stmt := range fn.Body {
		fmt.Fprintf(w, "\t%s\n", stmtString(stmt))
	}
}

func typeExprString(t ast.TypeExpr) string {
	switch t := t.(type) {
	case *ast.BasicTypeExpr:
		return t.Keyword
	case *ast.NamedTypeExpr:
		return t.Name
	case *ast.FuncTypeExpr:
		s := "func "
		for i, r := range t.Returns {
			if i > 0 {
				s += ", "
			}
			s += typeExprString(r)
		}
		s += " ("
		for i, p := range t.Params {
			if i > 0 {
				s += ", "
			}
			s += typeExprString(p)
		}
		return s + ")"
	default:
		return "?"
	}
}

func stmtString(stmt ast.Stmt) string {
	switch s := stmt.(type) {
	case *ast.Label:
		return s.Name + ":"
	case *ast.LoadIntOp:
		return fmt.Sprintf("load %d", s.Value)
	case *ast.LoadNullOp:
		return "load NULL"
	case *ast.LoadBoolOp:
		if s.Value {
			return "load TRUE"
		}
		return "load FALSE"
	case *ast.LoadRefOp:
		return "load " + s.Name
	case *ast.NameOp:
		return fmt.Sprintf("name %d %s", s.Slot, s.Name)
	case *ast.UnaryOp:
		return s.Kind.String()
	case *ast.BinaryOp:
		return s.Kind.String()
	case *ast.StackOp:
		if s.Kind == ast.StackPick {
			return fmt.Sprintf("pick %d", s.N)
		}
		return s.Kind.String()
	case *ast.DerefOp:
		return "deref " + typeExprString(s.Type)
	case *ast.CompareOp:
		return s.Kind.String()
	case *ast.CallOp:
		return "call"
	case *ast.BranchOp:
		return fmt.Sprintf("b%s %s", s.Kind, s.Target)
	case *ast.GotoOp:
		return "goto " + s.Target
	case *ast.ReturnOp:
		return "return"
	default:
		return "?"
	}
}
