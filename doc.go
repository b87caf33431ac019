// Package baikon executes flow scripts: a small line-oriented language for
// scripting conversational agents. It provides:
//
//   - A parser for flow-script modules (the dsl subpackage)
//   - Trigger matching over user input with priorities and wildcards
//   - An action interpreter with variables, functions, events and HTTP calls
//   - A middleware pipeline around flow execution
//   - A background scheduler for timer triggers
//   - Optional persistence for variables and sessions via SQLite
//
// # Quick Start
//
// Load a module and feed it input:
//
//	engine := baikon.New()
//	err := engine.LoadModuleSource(`
//	flow greeting:
//	    when user says "hello" -> call greet
//
//	function greet:
//	    say "Hi there!"
//	`, "demo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fc := engine.CreateContext("user-1", "")
//	for _, line := range engine.ProcessInput(ctx, "hello", fc) {
//	    fmt.Println(line)
//	}
//
// Timer triggers fire from a background loop started with
// engine.StartScheduler. Host applications can also inject events with
// engine.Emit and schedule recurring inputs with a CronRunner.
package baikon
