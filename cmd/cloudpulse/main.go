package main

import (
	"cloudpulse/internal/cli"
)

func main() {
	cli.Execute()
}
