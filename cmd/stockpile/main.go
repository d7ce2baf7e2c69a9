package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/stockpile/internal/cli"
)

func main() {
	// A missing .env is normal; STOCKPILE_* may come from the environment.
	_ = godotenv.Load()

	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
