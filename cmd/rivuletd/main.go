package main

import (
	"fmt"
	"os"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("rivuletd version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Check for subcommand
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "worker":
		runWorker(os.Args[2:])
	case "admin":
		runAdmin(os.Args[2:])
	case "version":
		fmt.Printf("rivuletd version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: rivuletd <command> [options]

Commands:
  worker      Start a controller worker (consumes the event queue)
  admin       Administrative commands (seal, status)
  version     Print version information

Run 'rivuletd <command> --help' for more information on a command.`)
}
