package main

import (
	"os"

	"relayboard/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
