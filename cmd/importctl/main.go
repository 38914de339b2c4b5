package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/importer/internal/cli"
)

func main() {
	// Values already in the environment win over .env here, unlike the
	// server, so one-off overrides on the command line still apply.
	_ = godotenv.Load()

	err := cli.NewRootCommand().Execute()
	if err != nil && !cli.Reported(err) {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
