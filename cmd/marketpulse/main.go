package main

import (
	"crypto-market-pulse/internal/cli"
)

func main() {
	cli.Execute()
}
