package main

import (
	"os"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"gtfsrt-tripupdater/internal/logging"
)

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	app := &cli.App{
		Name:  "tripupdater",
		Usage: "aggregate stop estimates and cancellations into GTFS-RT trip updates",
		Commands: []*cli.Command{
			runCommand(),
			replayCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}
