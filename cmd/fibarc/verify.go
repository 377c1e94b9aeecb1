package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fibarc/internal/convert"
	"github.com/samcharles93/fibarc/internal/dat"
)

func verifyCmd() *cli.Command {
	var (
		strict    bool
		deleteDat bool
		writeDat  bool
		assumeYes bool
	)

	return &cli.Command{
		Name:      "verify",
		Usage:     "Check that a DCF container reproduces its source .dat exactly",
		ArgsUsage: "<dat> <dcf>",
		Flags: append(loggingFlags(),
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "compare byte by byte and report the first diverging region",
				Destination: &strict,
			},
			&cli.BoolFlag{
				Name:        "delete-dat",
				Aliases:     []string{"d"},
				Usage:       "delete the .dat file if the check succeeds",
				Destination: &deleteDat,
			},
			&cli.BoolFlag{
				Name:        "write-dat",
				Usage:       "write the reconstructed bytes to the .dat path instead of checking; the path must not exist",
				Destination: &writeDat,
			},
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "skip the confirmation prompt for --write-dat",
				Destination: &assumeYes,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("expected <dat> <dcf>")
			}
			log := newLogger()
			datPath := cmd.Args().Get(0)
			dcfPath := cmd.Args().Get(1)

			if writeDat {
				if _, err := os.Stat(datPath); err == nil {
					return fmt.Errorf("refusing to overwrite existing file %s", datPath)
				}
				if !assumeYes {
					ok, err := confirm(os.Stdin, os.Stderr,
						fmt.Sprintf("write reconstructed bytes from %s to %s?", dcfPath, datPath))
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("aborted")
					}
				}
				raw, _, err := convert.DCFToBytes(dcfPath)
				if err != nil {
					return err
				}
				if err := os.WriteFile(datPath, raw, 0o644); err != nil {
					return err
				}
				log.Info("wrote reconstructed dump", "path", datPath, "bytes", len(raw))
				return nil
			}

			mode := dat.ModeDigest
			if strict {
				mode = dat.ModeStrict
			}
			vr, err := convert.VerifyFile(datPath, dcfPath, mode)
			if err != nil {
				return err
			}
			if !vr.Identical {
				return fmt.Errorf("mismatch: %s", vr.Detail)
			}
			log.Info("verified", "dat", datPath, "container", dcfPath)

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

// confirm asks a yes/no question on prompt and accepts only an explicit
// "y" or "yes" answer.
func confirm(in io.Reader, prompt io.Writer, question string) (bool, error) {
	fmt.Fprintf(prompt, "%s [y/N] ", question)
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
