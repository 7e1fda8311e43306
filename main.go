package main

import (
	"os"

	"github.com/pyrohost/resticapi/src/cmd"
)

func main() {
	os.Exit(cmd.Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}
