package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cli failed to run", "error", err)
		os.Exit(1)
	}
}

func run() error {
	return Execute()
}