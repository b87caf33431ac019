// Package main provides the baikon CLI.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	baikon "github.com/Andrewo9797/baikon"
	"github.com/Andrewo9797/baikon/dsl"
)

var (
	version = "dev"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		runCmd(args)
	case "validate":
		validateCmd(args)
	case "info":
		infoCmd(args)
	case "repl":
		replCmd(args)
	case "init":
		initCmd(args)
	case "version":
		fmt.Printf("baikon %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Baikon - Flow Script Engine

Usage:
  baikon <command> [options]

Commands:
  run       Run a flow script against one input or stdin
  repl      Interactive session with one or more flow scripts
  validate  Parse a flow script and report problems
  info      Show the flows, functions and variables of a script
  init      Write a sample flow script to get started
  version   Print version information
  help      Show this help message

Examples:
  baikon run bot.flow --input "hello"
  baikon repl bot.flow helpers.flow
  baikon validate bot.flow --verbose

Run 'baikon <command> --help' for more information on a command.`)
}

// newEngine builds an engine from the optional --config and --store flags
// shared by run and repl.
func newEngine(configPath, storePath string) (*baikon.Engine, func(), error) {
	cfg := baikon.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = baikon.LoadConfig(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}

	opts := []baikon.Option{baikon.WithConfig(cfg)}
	cleanup := func() {}

	if cfg.StorePath != "" {
		store, err := baikon.NewSQLiteStore(cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		if err := store.Init(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("init store: %w", err)
		}
		opts = append(opts, baikon.WithStore(store))
		cleanup = func() { store.Close() }
	}

	return baikon.New(opts...), cleanup, nil
}

func loadModules(engine *baikon.Engine, files []string) error {
	for _, file := range files {
		if err := engine.LoadModule(file, ""); err != nil {
			return err
		}
	}
	return nil
}

// runCmd executes a flow script non-interactively.
func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	input := fs.String("input", "", "Single input to process (default: read lines from stdin)")
	user := fs.String("user", "", "User ID for the session")
	configPath := fs.String("config", "", "YAML config file")
	storePath := fs.String("store", "", "SQLite database for persistent variables")
	timers := fs.Bool("timers", false, "Start the timer scheduler while processing stdin")

	fs.Usage = func() {
		fmt.Println(`Usage: baikon run <file.flow> [more files...] [options]

Run a flow script. With --input the single input is processed and the
responses printed; otherwise each stdin line is processed in turn.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  baikon run bot.flow --input "hello"
  echo "hello" | baikon run bot.flow
  baikon run bot.flow --timers < conversation.txt`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no flow script specified")
		fs.Usage()
		os.Exit(1)
	}

	engine, cleanup, err := newEngine(*configPath, *storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := loadModules(engine, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	fc := engine.CreateContext(*user, "")

	if *input != "" {
		for _, line := range engine.ProcessInput(ctx, *input, fc) {
			fmt.Println(line)
		}
		return
	}

	if *timers {
		engine.StartScheduler()
		defer engine.StopScheduler()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, resp := range engine.ProcessInput(ctx, line, fc) {
			fmt.Println(resp)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// validateCmd parses a flow script without executing it.
func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show detailed validation results")

	fs.Usage = func() {
		fmt.Println(`Usage: baikon validate <file.flow> [options]

Parse a flow script and report problems without executing it.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no flow script specified")
		fs.Usage()
		os.Exit(1)
	}

	for _, file := range fs.Args() {
		module, err := dsl.NewParser().ParseFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %s: %v\n", file, err)
			os.Exit(1)
		}
		if *verbose {
			printModuleDetails(file, module)
		}
		fmt.Printf("Valid: %s\n", file)
	}
}

// infoCmd shows what a flow script declares.
func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(`Usage: baikon info <file.flow>

Show the flows, functions and variables declared in a flow script.`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no flow script specified")
		fs.Usage()
		os.Exit(1)
	}

	for _, file := range fs.Args() {
		module, err := dsl.NewParser().ParseFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", file, err)
			os.Exit(1)
		}
		printModuleDetails(file, module)
	}
}

func printModuleDetails(file string, module *dsl.Module) {
	fmt.Printf("File: %s\n", file)
	fmt.Printf("Module: %s\n", module.Name)
	if module.Version != "" {
		fmt.Printf("Version: %s\n", module.Version)
	}
	if len(module.Imports) > 0 {
		fmt.Printf("Imports: %s\n", strings.Join(module.Imports, ", "))
	}
	fmt.Println()

	fmt.Printf("Flows (%d):\n", len(module.Flows))
	for _, flow := range module.FlowsInOrder() {
		fmt.Printf("  - %s: %d triggers, %d actions\n",
			flow.Name, len(flow.Triggers), len(flow.Actions))
	}
	fmt.Println()

	fmt.Printf("Functions (%d):\n", len(module.Functions))
	for _, fn := range module.FunctionsInOrder() {
		params := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = p.Name
		}
		fmt.Printf("  - %s(%s): %d actions\n",
			fn.Name, strings.Join(params, ", "), len(fn.Actions))
	}
	fmt.Println()

	fmt.Printf("Variables (%d):\n", len(module.Variables))
	for _, v := range module.VariablesInOrder() {
		marker := ""
		if v.Persistent {
			marker = " (persistent)"
		}
		fmt.Printf("  - %s = %v%s\n", v.Name, v.Value, marker)
	}
}
