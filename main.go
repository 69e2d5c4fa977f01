package main

import (
	"log/slog"
	"os"

	"github.com/voltbridge/ocpp-gateway/cmd"
)

//nolint:golint,gochecknoglobals
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := cmd.NewCommand(version, commit)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Encountered an error.", "error", err.Error())
		os.Exit(1)
	}
}
