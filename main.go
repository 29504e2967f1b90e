package main

import (
	"gmx-trade-agent/internal/cli"
)

func main() {
	cli.Execute()
}
