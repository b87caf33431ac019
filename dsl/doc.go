// Package dsl provides the Baikon flow-script parser and module model.
//
// # Script Format
//
// Flow scripts are line-oriented UTF-8 text (typically *.flow files).
// Lines starting with # are comments. A script has a header region
// followed by flow, function and middleware blocks:
//
//	version: 2.0
//	import weather, smalltalk
//
//	var user_name: string = "Guest"
//	var persistent visits: int = 0
//
//	config:
//	    api_timeout: 10
//	    log_level: "info"
//
//	flow assistant:
//	    use logging, rate_limit
//	    when user says "hello" -> call greet
//	    when user says "*weather*" -> call get_weather
//	    when var mood equals "happy" -> call celebrate
//	    when timer 60s -> call remind
//	    when event user_joined -> call welcome
//	    when always if debug equals "on" -> call trace
//
//	function greet:
//	    set visits = visits + 1
//	    say "Hello {user_name}! Visit #{visits}."
//	    if visits equals "1" then say "Nice to meet you!"
//
// A block starts with a non-indented "<keyword> <name>:" line and all
// indented lines belong to its body. Malformed lines inside flow, function
// and middleware blocks fail parsing with a line number; unrecognized
// top-level lines are skipped so scripts written for newer engines still
// load.
//
// # Triggers
//
// Trigger lines take the form
//
//	when <pattern> [if <cond> and <cond> ...] [priority <n>] -> call <function>
//
// where <pattern> is one of: user says "text", var <name> equals "value",
// api <name> returns, timer <duration>, event <name>, or always. Durations
// are digits with an optional s/m/h suffix; bare digits are seconds.
//
// # Actions
//
// Action lines appear in function bodies and directly in flow bodies:
// say, set, call, api, emit, wait, if, loop, get and import. Every action
// may carry a trailing "if" guard with the same condition grammar as
// triggers.
//
// # Usage
//
//	parser := dsl.NewParser()
//	module, err := parser.ParseFile("main.flow")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	text := dsl.Serialize(module) // canonical round-trippable form
package dsl
