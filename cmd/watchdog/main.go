package main

import "chain-watchdog/internal/cli"

func main() {
	cli.Execute()
}
