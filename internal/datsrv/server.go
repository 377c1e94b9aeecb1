// Package datsrv exposes a converted archive over HTTP: container
// discovery, attribute documents, the conversion catalog and Prometheus
// metrics.
package datsrv

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/fibarc/internal/catalog"
	"github.com/samcharles93/fibarc/internal/convert"
	"github.com/samcharles93/fibarc/internal/logger"
)

// Config wires a Server.
type Config struct {
	// Root is the directory scanned for .dcf containers.
	Root string

	// Catalog is optional; when set, /v1/catalog lists recorded
	// conversions.
	Catalog *catalog.Catalog

	// RequestsPerSecond caps the request rate. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	Log logger.Logger
}

type Server struct {
	root    string
	cat     *catalog.Catalog
	log     logger.Logger
	metrics *Metrics
	limiter *rate.Limiter
}

func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		root:    cfg.Root,
		cat:     cfg.Catalog,
		log:     log,
		metrics: NewMetrics(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// Register mounts all routes on the given echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.Use(s.observe)
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/files", s.handleListFiles)
	e.GET("/v1/meta", s.handleMeta)
	e.GET("/v1/catalog", s.handleCatalog)
	e.GET("/metrics", s.handleMetrics)
}

func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.rateLimitedTotal.Inc()
			return c.JSON(http.StatusTooManyRequests, errorBody("rate limit exceeded"))
		}
		start := time.Now()
		err := next(c)
		_, status := echo.ResolveResponseStatus(c.Response(), nil)
		if err != nil {
			status = http.StatusInternalServerError
		}
		s.metrics.recordRequest(c.Request().Method, c.Request().URL.Path, status, time.Since(start))
		return err
	}
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// FileInfo is one row of the /v1/files listing.
type FileInfo struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (s *Server) handleListFiles(c *echo.Context) error {
	var files []FileInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".dcf") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Path:     rel,
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		s.log.Error("scan archive root", "root", s.root, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("cannot scan archive"))
	}
	if files == nil {
		files = []FileInfo{}
	}
	return c.JSON(http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleMeta(c *echo.Context) error {
	rel := c.QueryParam("path")
	if rel == "" {
		return c.JSON(http.StatusBadRequest, errorBody("missing path parameter"))
	}
	path, ok := s.resolve(rel)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorBody("path escapes archive root"))
	}

	md, chans, err := convert.ReadContainer(path)
	s.metrics.recordContainerRead(err)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.JSON(http.StatusNotFound, errorBody("no such container"))
		}
		s.log.Error("read container", "path", path, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("cannot read container"))
	}

	datasets := make([]map[string]any, len(chans))
	for i := range chans {
		datasets[i] = map[string]any{
			"input":        chans[i].Input,
			"name":         chans[i].Name,
			"width":        chans[i].Width,
			"height":       chans[i].Height,
			"sample_width": chans[i].SampleWidth,
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"path":       rel,
		"version":    md.Version,
		"attributes": md.Attrs(),
		"datasets":   datasets,
	})
}

// resolve maps a request-relative container path onto the archive root,
// rejecting traversal outside it.
func (s *Server) resolve(rel string) (string, bool) {
	path := filepath.Join(s.root, filepath.Clean("/"+rel))
	if path != s.root && !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", false
	}
	return path, true
}

func (s *Server) handleCatalog(c *echo.Context) error {
	if s.cat == nil {
		return c.JSON(http.StatusNotFound, errorBody("no catalog configured"))
	}
	entries, err := s.cat.List()
	if err != nil {
		s.log.Error("list catalog", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("cannot list catalog"))
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}
