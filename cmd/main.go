package main

import (
	"os"

	"github.com/rust-community-pl/mqtt-consumer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
