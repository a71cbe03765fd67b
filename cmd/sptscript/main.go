// Command sptscript runs a script file: parse, compile, execute, report.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/Xarvie/sptscript/internal/bytecode"
	"github.com/Xarvie/sptscript/internal/compiler"
	"github.com/Xarvie/sptscript/internal/config"
	"github.com/Xarvie/sptscript/internal/module"
	"github.com/Xarvie/sptscript/internal/parser"
	"github.com/Xarvie/sptscript/internal/stdlib"
	"github.com/Xarvie/sptscript/internal/vm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sptscript <file.spt>")
		os.Exit(1)
	}
	filename := os.Args[1]

	cfg, err := config.Load("sptscript.yaml")
	if err != nil {
		fatal(err)
	}

	source, err := os.ReadFile(filename)
	if err != nil {
		fatal(err)
	}

	prog, perrs := parser.ParseSource(string(source), filename)
	if len(perrs) > 0 {
		for _, e := range perrs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		os.Exit(1)
	}

	comp := compiler.New()
	chunk, cerrs := comp.CompileModule(prog, "main", string(source))
	if len(cerrs) > 0 {
		for _, e := range cerrs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		os.Exit(1)
	}

	if os.Getenv("SPTSCRIPT_DEBUG") != "" {
		fmt.Fprintln(os.Stderr, bytecode.Disassemble(chunk))
	}

	v := vm.New()
	colorize := isatty.IsTerminal(os.Stderr.Fd())
	v.SetErrorHandler(func(message string, line int) {
		if colorize {
			fmt.Fprintf(os.Stderr, "\x1b[31mruntime error at line %d: %s\x1b[0m\n", line, message)
		} else {
			fmt.Fprintf(os.Stderr, "runtime error at line %d: %s\n", line, message)
		}
	})
	v.SetPrintHandler(func(s string) { fmt.Println(s) })
	stdlib.Register(v)
	module.New(v, cfg)

	if _, err := v.ExecuteChunk(chunk.Root); err != nil {
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "sptscript: %v\n", err)
	os.Exit(1)
}
