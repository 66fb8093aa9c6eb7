package main

import (
	"os"

	"github.com/nonibytes/edgerelay/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
