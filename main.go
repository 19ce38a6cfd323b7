package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: pl0 file")
		os.Exit(1)
	}

	path := os.Args[1]
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "can't open the source file.")
		os.Exit(-1)
	}

	// The lexer wants a trailing null byte.
	Init(append(source, 0), path)
	parseLogger = func(ln, col int, msg string) {
		fmt.Fprintln(os.Stderr, formatErrorMessage(path, ln, col, msg))
	}

	ast, err := ParseProgram()
	if err != nil {
		os.Exit(-1)
	}

	// Analyzer and emitter errors go to stderr; the process still exits
	// normally, like a caught runtime error.
	if err := BuildSymbolTable(ast); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if err := Run(ast); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
