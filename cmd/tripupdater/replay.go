package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kr/pretty"
	"github.com/urfave/cli/v2"

	"gtfsrt-tripupdater/internal/engine"
	"gtfsrt-tripupdater/internal/gtfs"
	"gtfsrt-tripupdater/internal/processor"
	"gtfsrt-tripupdater/internal/transport"
	"gtfsrt-tripupdater/internal/validate"
)

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "replay a JSON lines capture and print the resulting trip updates",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "tz",
				Value: "Europe/Helsinki",
				Usage: "time zone of operating days",
			},
			&cli.StringFlag{
				Name:  "rules",
				Usage: "YAML ingest rules file",
			},
			&cli.BoolFlag{
				Name:  "filter-trains",
				Usage: "drop train routes",
			},
			&cli.DurationFlag{
				Name:  "max-lead",
				Value: 180 * time.Second,
				Usage: "premature departure limit",
			},
			&cli.IntFlag{
				Name:  "missing-estimates",
				Usage: "missing estimates threshold, 0 disables",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one input file", 2)
			}
			in, err := openInput(c.Args().First())
			if err != nil {
				return err
			}
			defer in.Close()

			loc, err := time.LoadLocation(c.String("tz"))
			if err != nil {
				return fmt.Errorf("invalid tz: %w", err)
			}
			ing, err := newIngester(c.String("rules"), c.Bool("filter-trains"))
			if err != nil {
				return err
			}

			printer := &prettyPublisher{w: c.App.Writer}
			proc := processor.New(processor.Config{
				// one worker keeps the output in input order
				Workers:  1,
				Ingester: ing,
				Engine:   engine.New(engine.DefaultTTL, nil),
				Validators: validate.Chain{
					validate.PrematureDeparture{MaxLead: c.Duration("max-lead"), Location: loc},
					validate.MissingEstimates{Threshold: c.Int("missing-estimates")},
				},
				Publisher: printer,
			})
			if err := proc.Run(c.Context, transport.NewFileSource(in)); err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "%d trip updates\n", printer.count)
			return nil
		},
	}
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open replay input: %w", err)
	}
	return f, nil
}

type prettyPublisher struct {
	w     io.Writer
	count int
}

func (p *prettyPublisher) PublishTripUpdate(key string, tu gtfs.TripUpdate) error {
	p.count++
	_, err := pretty.Fprintf(p.w, "%s %# v\n", key, tu)
	return err
}
