package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fibarc/internal/convert"
	"github.com/samcharles93/fibarc/internal/csvmeta"
	"github.com/samcharles93/fibarc/internal/logger"
)

var (
	logLevel  string
	logFormat string

	fillValue       int64
	minMax          bool
	csvPath         string
	timestampArg    string
	timestampLayout string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, text, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.Level(logLevel)
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Text(os.Stderr, level)
	default:
		return logger.Pretty(os.Stderr, level)
	}
}

func conversionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "fill",
			Usage:       "sample value used to pad a truncated data section; omit to fail on truncation",
			Destination: &fillValue,
		},
		&cli.BoolFlag{
			Name:        "minmax",
			Usage:       "record each channel's sample range in the container attributes",
			Destination: &minMax,
		},
		&cli.StringFlag{
			Name:        "csv",
			Usage:       "path to an acquisition-log CSV with Date and Time columns",
			Destination: &csvPath,
		},
		&cli.StringFlag{
			Name:        "timestamp",
			Usage:       "acquisition timestamp (RFC 3339) used as the CSV join key",
			Destination: &timestampArg,
		},
		&cli.StringFlag{
			Name:        "timestamp-layout",
			Usage:       "Go time layout locating the acquisition timestamp in the .dat path, e.g. 2006-01-02_150405",
			Destination: &timestampLayout,
		},
	}
}

// conversionOptions assembles per-file options from the conversion flags.
func conversionOptions(c *cli.Command) (convert.Options, error) {
	var opts convert.Options

	if c.IsSet("fill") {
		if fillValue < -32768 || fillValue > 32767 {
			return opts, fmt.Errorf("fill value %d out of int16 range", fillValue)
		}
		f := int16(fillValue)
		opts.Fill = &f
	}
	opts.MinMax = minMax
	opts.TimestampLayout = timestampLayout

	if timestampArg != "" {
		ts, err := time.Parse(time.RFC3339, timestampArg)
		if err != nil {
			return opts, fmt.Errorf("parse --timestamp: %w", err)
		}
		opts.Timestamp = &ts
	}

	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return opts, err
		}
		defer func() { _ = f.Close() }()
		table, err := csvmeta.Load(f)
		if err != nil {
			return opts, err
		}
		opts.CSV = table
	}
	return opts, nil
}
