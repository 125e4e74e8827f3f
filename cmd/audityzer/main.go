package main

import "github.com/zero-day-ai/audityzer/internal/cli"

func main() {
	cli.Execute()
}
