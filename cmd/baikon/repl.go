package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	baikon "github.com/Andrewo9797/baikon"
)

// replCmd starts an interactive session against loaded flow scripts.
func replCmd(args []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	user := fs.String("user", "", "User ID for the session")
	configPath := fs.String("config", "", "YAML config file")
	storePath := fs.String("store", "", "SQLite database for persistent variables")
	timers := fs.Bool("timers", false, "Start the timer scheduler")

	fs.Usage = func() {
		fmt.Println(`Usage: baikon repl <file.flow> [more files...] [options]

Start an interactive session. Plain input is matched against the loaded
flow scripts; lines starting with / are REPL commands.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Commands:
  /vars              Show session variables
  /set <name> <val>  Set a session variable
  /flows             List flows per module
  /functions         List functions per module
  /call <fn> [args]  Call a function directly
  /emit <ev> [data]  Emit an event
  /reload            Reload all flow script files
  /save <path>       Save the session snapshot as JSON
  /history           Show the transcript so far
  /help              Show REPL help
  /quit              Exit`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no flow script specified")
		fs.Usage()
		os.Exit(1)
	}
	files := fs.Args()

	engine, cleanup, err := newEngine(*configPath, *storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := loadModules(engine, files); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *timers {
		engine.StartScheduler()
		defer engine.StopScheduler()
	}

	fc := engine.CreateContext(*user, "")
	var history []baikon.HistoryEntry

	fmt.Printf("Loaded %d module(s): %s\n", len(engine.ListModules()),
		strings.Join(engine.ListModules(), ", "))
	fmt.Println("Baikon REPL - Type /help for commands, /quit to exit")
	fmt.Println()

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("baikon> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := replCommand(ctx, engine, fc, files, line, &history); quit {
				return
			}
			continue
		}

		history = append(history, baikon.HistoryEntry{
			Timestamp: time.Now(), Type: "user", Content: line,
		})
		responses := engine.ProcessInput(ctx, line, fc)
		if len(responses) == 0 {
			fmt.Println("(no response)")
			continue
		}
		for _, resp := range responses {
			fmt.Println(resp)
			history = append(history, baikon.HistoryEntry{
				Timestamp: time.Now(), Type: "bot", Content: resp,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// replCommand handles one slash command. It returns true when the REPL
// should exit.
func replCommand(ctx context.Context, engine *baikon.Engine, fc *baikon.Context, files []string, line string, history *[]baikon.HistoryEntry) bool {
	parts := strings.Fields(line)
	cmd := parts[0]

	switch cmd {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true

	case "/help", "/h":
		printReplHelp()

	case "/vars":
		names := make([]string, 0, len(fc.Variables))
		for name := range fc.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s = %s\n", name, baikon.FormatValue(fc.Variables[name]))
		}

	case "/set":
		if len(parts) < 3 {
			fmt.Println("Usage: /set <name> <value>")
			break
		}
		fc.Variables[parts[1]] = strings.Join(parts[2:], " ")
		fmt.Printf("  %s = %s\n", parts[1], baikon.FormatValue(fc.Variables[parts[1]]))

	case "/flows":
		for _, name := range engine.ListModules() {
			info, _ := engine.GetModuleInfo(name)
			fmt.Printf("%s:\n", name)
			for _, flow := range info.Flows {
				fmt.Printf("  %s\n", flow)
			}
		}

	case "/functions":
		for _, name := range engine.ListModules() {
			info, _ := engine.GetModuleInfo(name)
			fmt.Printf("%s:\n", name)
			for _, fn := range info.Functions {
				fmt.Printf("  %s\n", fn)
			}
		}

	case "/call":
		if len(parts) < 2 {
			fmt.Println("Usage: /call <function> [args...]")
			break
		}
		params := strings.Join(parts[2:], ",")
		var out string
		var err error
		for _, name := range engine.ListModules() {
			out, err = engine.CallFunction(ctx, name, parts[1], params, fc)
			if err == nil {
				break
			}
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
		} else if out != "" {
			fmt.Println(out)
		}

	case "/emit":
		if len(parts) < 2 {
			fmt.Println("Usage: /emit <event> [data]")
			break
		}
		if err := engine.Emit(ctx, parts[1], strings.Join(parts[2:], " "), fc); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

	case "/reload":
		for _, file := range files {
			if err := engine.LoadModule(file, ""); err != nil {
				fmt.Printf("Error: %v\n", err)
				return false
			}
		}
		fmt.Printf("Reloaded %d file(s)\n", len(files))

	case "/save":
		if len(parts) < 2 {
			fmt.Println("Usage: /save <path>")
			break
		}
		snap := &baikon.SessionSnapshot{
			Timestamp: time.Now(),
			Variables: fc.Variables,
			History:   *history,
		}
		if mods := engine.ListModules(); len(mods) > 0 {
			snap.Module = mods[0]
		}
		if err := baikon.SaveSessionFile(parts[1], snap); err != nil {
			fmt.Printf("Error: %v\n", err)
		} else {
			fmt.Printf("Saved session to %s\n", parts[1])
		}

	case "/history":
		for _, h := range *history {
			fmt.Printf("  [%s] %s: %s\n", h.Timestamp.Format("15:04:05"), h.Type, h.Content)
		}

	default:
		fmt.Printf("Unknown command: %s. Type /help for available commands.\n", cmd)
	}
	return false
}

func printReplHelp() {
	fmt.Println(`REPL Commands:
  /vars              Show session variables
  /set <name> <val>  Set a session variable
  /flows             List flows per module
  /functions         List functions per module
  /call <fn> [args]  Call a function directly
  /emit <ev> [data]  Emit an event
  /reload            Reload all flow script files
  /save <path>       Save the session snapshot as JSON
  /history           Show the transcript so far
  /help              Show this help
  /quit              Exit

Anything not starting with / is matched against the loaded flow scripts.`)
}
