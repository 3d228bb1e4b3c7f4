// Command filesync is the client-side CLI front end of spec.md §6.
package main

import (
	"fmt"
	"os"

	"github.com/cshekharsharma/filesync/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "filesync:", err)
		os.Exit(1)
	}
}
