package main

import "github.com/andrescamacho/takaro-connector/internal/adapters/cli"

func main() {
	cli.Execute()
}
