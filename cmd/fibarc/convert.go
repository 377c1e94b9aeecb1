package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fibarc/internal/convert"
	"github.com/samcharles93/fibarc/internal/dat"
)

func convertCmd() *cli.Command {
	var (
		output    string
		deleteDat bool
		strict    bool
	)

	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a .dat dump into a DCF container and verify the round trip",
		ArgsUsage: "<dat>",
		Flags: append(append(loggingFlags(), conversionFlags()...),
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output .dcf path (default: next to the input)",
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "verify byte by byte instead of by digest",
				Destination: &strict,
			},
			&cli.BoolFlag{
				Name:        "delete-dat",
				Usage:       "delete the source .dat after a verified conversion",
				Destination: &deleteDat,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one .dat path")
			}
			log := newLogger()
			datPath := cmd.Args().First()

			opts, err := conversionOptions(cmd)
			if err != nil {
				return err
			}

			dst := output
			if dst == "" {
				dst = strings.TrimSuffix(datPath, filepath.Ext(datPath)) + ".dcf"
			}

			res, err := convert.DatToDCF(datPath, dst, opts)
			if err != nil {
				return err
			}
			log.Info("converted", "path", datPath, "container", dst,
				"channels", res.Channels, "truncated", res.Truncated)

			mode := dat.ModeDigest
			if strict {
				mode = dat.ModeStrict
			}
			vr, err := convert.VerifyFile(datPath, dst, mode)
			if err != nil {
				return err
			}
			if !vr.Identical {
				return fmt.Errorf("round trip mismatch: %s", vr.Detail)
			}
			log.Info("round trip verified", "digest", res.SourceDigest)

			if deleteDat {
				if err := os.Remove(datPath); err != nil {
					return fmt.Errorf("remove %s: %w", datPath, err)
				}
				log.Info("removed source", "path", datPath)
			}
			return nil
		},
	}
}
