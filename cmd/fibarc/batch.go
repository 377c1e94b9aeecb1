package main

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fibarc/internal/catalog"
	"github.com/samcharles93/fibarc/internal/convert"
	"github.com/samcharles93/fibarc/internal/dat"
)

func batchCmd() *cli.Command {
	var (
		jobs       int64
		outputDir  string
		catalogDir string
		recheck    bool
		strict     bool
		deleteDat  bool
	)

	return &cli.Command{
		Name:      "batch",
		Usage:     "Convert and verify every .dat under the given paths",
		ArgsUsage: "<path ...>",
		Flags: append(append(loggingFlags(), conversionFlags()...),
			&cli.Int64Flag{
				Name:        "jobs",
				Aliases:     []string{"j"},
				Usage:       "number of files converted concurrently",
				Value:       1,
				Destination: &jobs,
			},
			&cli.StringFlag{
				Name:        "output-dir",
				Aliases:     []string{"o"},
				Usage:       "directory for the containers (default: next to each source)",
				Destination: &outputDir,
			},
			&cli.StringFlag{
				Name:        "catalog",
				Usage:       "conversion catalog directory; already verified sources are skipped",
				Destination: &catalogDir,
			},
			&cli.BoolFlag{
				Name:        "recheck",
				Usage:       "reconvert even when the catalog records a verified conversion",
				Destination: &recheck,
			},
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "verify byte by byte instead of by digest",
				Destination: &strict,
			},
			&cli.BoolFlag{
				Name:        "delete-dat",
				Usage:       "delete each source after a verified conversion",
				Destination: &deleteDat,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return fmt.Errorf("expected at least one path")
			}
			log := newLogger()
			cfg := LoadConfig()
			applyBatchConfig(cmd, cfg, &jobs, &outputDir, &catalogDir)

			opts, err := conversionOptions(cmd)
			if err != nil {
				return err
			}

			paths, err := collectDats(cmd.Args().Slice())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no .dat files found")
			}

			bo := convert.BatchOptions{
				Options:   opts,
				Jobs:      int(jobs),
				OutputDir: outputDir,
				Recheck:   recheck,
				DeleteDat: deleteDat,
				Log:       log,
			}
			if strict {
				bo.Mode = dat.ModeStrict
			}
			if catalogDir != "" {
				cat, err := catalog.Open(catalogDir)
				if err != nil {
					return err
				}
				defer func() { _ = cat.Close() }()
				bo.Catalog = cat
			}

			items, err := convert.Batch(ctx, paths, bo)
			if err != nil {
				return err
			}

			var converted, skipped, failed int
			for _, it := range items {
				switch {
				case it.Err != nil:
					failed++
					log.Error("conversion failed", "path", it.Source, "error", it.Err)
				case it.Skipped:
					skipped++
				default:
					converted++
				}
			}
			log.Info("batch finished", "converted", converted, "skipped", skipped, "failed", failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d conversions failed", failed, len(items))
			}
			return nil
		},
	}
}

// collectDats expands files and directories into a list of .dat paths.
func collectDats(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".dat") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
