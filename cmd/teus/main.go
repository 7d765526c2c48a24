package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/yugasun/teus/internal/app"
	"github.com/yugasun/teus/internal/utils"
)

// Version information is set during build via -ldflags
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// Reconfigured once the log settings are known
	utils.InitLogger("info", "", utils.ConsoleFormat)

	if err := app.Run(version, buildDate); err != nil {
		log.Debug().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
