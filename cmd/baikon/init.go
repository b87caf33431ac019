package main

import (
	"flag"
	"fmt"
	"os"
)

const sampleScript = `version: 1.0

var persistent visit_count: int = 0
var user_name = "friend"

flow greeting:
    when user says "hello" -> call greet
    when user says "hi*" -> call greet
    when user says "*bye*" -> call farewell

flow counter:
    use logging
    when user says "count" -> call bump

function greet:
    set visit_count = visit_count + 1
    say "Hello {user_name}! This is visit number {visit_count}."

function farewell:
    say "Goodbye {user_name}!"

function bump:
    set visit_count = visit_count + 1
    say "Counted: {visit_count}"
`

// initCmd writes a sample flow script.
func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(`Usage: baikon init [file.flow]

Write a sample flow script to the given path (default: sample.flow).`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path := "sample.flow"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists\n", path)
		os.Exit(1)
	}

	if err := os.WriteFile(path, []byte(sampleScript), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Try: baikon repl " + path)
}
