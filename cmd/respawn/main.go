// Command respawn watches files and restarts a command whenever they change.
//
//	respawn [flags] <path>... -- <command> [<argument>...]
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], ioStreams{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}))
}
