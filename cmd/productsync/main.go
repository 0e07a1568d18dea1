package main

import (
	"fmt"
	"os"

	"github.com/mugisham37/product-management-interview-project/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "productsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
