package main

import "arb-explorer/internal/cli"

func main() {
	cli.Execute()
}
