package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fibarc/internal/dat"
)

func metaCmd() *cli.Command {
	return &cli.Command{
		Name:  "meta",
		Usage: "Interrogate and dump .dat metadata",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			metaLsCmd(),
			metaJSONCmd(),
			metaGetCmd(),
			metaFmtCmd(),
		},
	}
}

// readMeta decodes just the header region of a dump.
func readMeta(path string) (*dat.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(io.LimitReader(f, int64(dat.HeaderLength())))
	if err != nil {
		return nil, err
	}
	return dat.DecodeHeader(raw)
}

// displayValue renders a field value the way the JSON dump would.
func displayValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// selectFields filters a record down to the requested keys, in schema order
// when no keys are given.
func selectFields(md *dat.Metadata, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return md.Keys(), nil
	}
	for _, f := range fields {
		if _, ok := md.Fields[f]; !ok {
			return nil, fmt.Errorf("no metadata field %q", f)
		}
	}
	return fields, nil
}

func metaLsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List metadata field names",
		ArgsUsage: "<dat>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one .dat path")
			}
			md, err := readMeta(cmd.Args().First())
			if err != nil {
				return err
			}
			for _, key := range md.Keys() {
				fmt.Println(key)
			}
			return nil
		},
	}
}

func metaJSONCmd() *cli.Command {
	var indent int64

	return &cli.Command{
		Name:      "json",
		Usage:     "Dump metadata as JSON",
		ArgsUsage: "<dat> [field ...]",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "indent",
				Aliases:     []string{"i"},
				Usage:       "number of spaces to indent",
				Destination: &indent,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("expected a .dat path")
			}
			md, err := readMeta(cmd.Args().First())
			if err != nil {
				return err
			}
			keys, err := selectFields(md, cmd.Args().Slice()[1:])
			if err != nil {
				return err
			}

			out := make(map[string]any, len(keys))
			for _, k := range keys {
				out[k] = md.Fields[k]
			}

			var data []byte
			if indent > 0 {
				data, err = json.MarshalIndent(out, "", strings.Repeat(" ", int(indent)))
			} else {
				data, err = json.Marshal(out)
			}
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func metaGetCmd() *cli.Command {
	var dataOnly bool

	return &cli.Command{
		Name:      "get",
		Usage:     "Read metadata values as a TSV of key and value",
		ArgsUsage: "<dat> [field ...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "data-only",
				Aliases:     []string{"d"},
				Usage:       "do not print field names",
				Destination: &dataOnly,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("expected a .dat path")
			}
			md, err := readMeta(cmd.Args().First())
			if err != nil {
				return err
			}
			keys, err := selectFields(md, cmd.Args().Slice()[1:])
			if err != nil {
				return err
			}
			for _, k := range keys {
				if dataOnly {
					fmt.Println(displayValue(md.Fields[k]))
				} else {
					fmt.Printf("%s\t%s\n", k, displayValue(md.Fields[k]))
				}
			}
			return nil
		},
	}
}

func metaFmtCmd() *cli.Command {
	return &cli.Command{
		Name:      "fmt",
		Usage:     "Interpolate metadata values into Go templates, one line each",
		ArgsUsage: "<dat> <template ...>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("expected a .dat path and at least one template, e.g. 'Version is {{.FileVersion}}'")
			}
			md, err := readMeta(cmd.Args().First())
			if err != nil {
				return err
			}
			for _, tpl := range cmd.Args().Slice()[1:] {
				t, err := template.New("fmt").Option("missingkey=error").Parse(tpl)
				if err != nil {
					return fmt.Errorf("parse template %q: %w", tpl, err)
				}
				if err := t.Execute(os.Stdout, md.Fields); err != nil {
					return err
				}
				fmt.Println()
			}
			return nil
		},
	}
}
