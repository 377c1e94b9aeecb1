package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fibarc/internal/catalog"
	"github.com/samcharles93/fibarc/internal/datsrv"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		root        string
		catalogDir  string
		rps         float64
		burst       int64
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a converted archive over HTTP",
		Flags: append(loggingFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "root",
				Usage:       "directory scanned for .dcf containers",
				Value:       ".",
				Destination: &root,
			},
			&cli.StringFlag{
				Name:        "catalog",
				Usage:       "conversion catalog directory to expose at /v1/catalog",
				Destination: &catalogDir,
			},
			&cli.FloatFlag{
				Name:        "rps",
				Usage:       "request rate limit per second (0 disables)",
				Destination: &rps,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "rate limiter burst size",
				Value:       10,
				Destination: &burst,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyServeConfig(cmd, cfg, &addr, &root, &catalogDir, &rps)
			log := newLogger()

			srvCfg := datsrv.Config{
				Root:              root,
				RequestsPerSecond: rps,
				Burst:             int(burst),
				Log:               log,
			}
			if catalogDir != "" {
				cat, err := catalog.Open(catalogDir)
				if err != nil {
					return err
				}
				defer func() { _ = cat.Close() }()
				srvCfg.Catalog = cat
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			datsrv.New(srvCfg).Register(e)

			log.Info("starting server", "address", addr, "root", root)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					applyReadTimeout(srv, readTimeout)
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

// applyReadTimeout bounds both the header and the full-request read, so a
// slow client cannot hold a connection open past the flag value.
func applyReadTimeout(srv *http.Server, d time.Duration) {
	srv.ReadTimeout = d
	srv.ReadHeaderTimeout = d
}
