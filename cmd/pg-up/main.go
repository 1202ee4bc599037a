package main

import (
	"fmt"
	"os"

	"github.com/webapk-bot/webapk/internal/run/runpg"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run() error {
	connectionString, ok := os.LookupEnv("WEBAPK_PG_CONNECTION_STRING")
	if !ok {
		return fmt.Errorf("WEBAPK_PG_CONNECTION_STRING is unset")
	}

	if err := runpg.Setup(connectionString); err != nil {
		return err
	}

	return nil
}
