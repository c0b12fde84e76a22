package main

import "github.com/rustyeddy/atrbot/internal/cli"

func main() {
	cli.Execute()
}
