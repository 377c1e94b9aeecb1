package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samcharles93/fibarc/internal/catalog"
	"github.com/samcharles93/fibarc/internal/dat"
	"github.com/samcharles93/fibarc/internal/logger"
)

// BatchOptions controls a multi-file conversion run.
type BatchOptions struct {
	Options

	// Jobs is the number of files converted concurrently. Values < 1
	// mean serial.
	Jobs int

	// OutputDir receives the containers. Empty means next to each source.
	OutputDir string

	// Catalog, when set, skips sources whose digest is already recorded
	// as verified and records every new conversion.
	Catalog *catalog.Catalog

	// Recheck converts and verifies even when the catalog already has a
	// verified entry.
	Recheck bool

	Mode dat.VerifyMode

	// DeleteDat removes the source file after a verified conversion.
	DeleteDat bool

	Log logger.Logger
}

// BatchItem is the outcome for one source file.
type BatchItem struct {
	Source  string
	Result  *Result
	Err     error
	Skipped bool
	Verify  dat.VerifyResult
}

// Batch converts many dump files with a bounded worker pool. Per-file
// failures land in the returned items; Batch itself only fails on context
// cancellation.
func Batch(ctx context.Context, paths []string, opts BatchOptions) ([]BatchItem, error) {
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(paths) {
		jobs = len(paths)
	}

	items := make([]BatchItem, len(paths))
	work := make(chan int)

	var wg sync.WaitGroup
	var mu sync.Mutex // serialises catalog writes
	for range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				items[idx] = convertOne(paths[idx], opts, log, &mu)
			}
		}()
	}

	var ctxErr error
feed:
	for i := range paths {
		select {
		case work <- i:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		}
	}
	close(work)
	wg.Wait()
	return items, ctxErr
}

func convertOne(src string, opts BatchOptions, log logger.Logger, mu *sync.Mutex) BatchItem {
	item := BatchItem{Source: src}

	digest, err := digestFile(src)
	if err != nil {
		item.Err = err
		return item
	}

	if opts.Catalog != nil && !opts.Recheck {
		mu.Lock()
		entry, err := opts.Catalog.Get(digest)
		mu.Unlock()
		if err == nil && entry.Verified {
			log.Debug("already converted, skipping", "path", src, "container", entry.ContainerPath)
			item.Skipped = true
			return item
		}
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			item.Err = err
			return item
		}
	}

	dst := containerPath(src, opts.OutputDir)
	res, err := DatToDCF(src, dst, opts.Options)
	if err != nil {
		item.Err = err
		return item
	}
	item.Result = res

	item.Verify, err = VerifyFile(src, dst, opts.Mode)
	if err != nil {
		item.Err = err
		return item
	}
	if !item.Verify.Identical {
		log.Warn("round trip mismatch", "path", src, "detail", item.Verify.Detail)
	}

	if opts.Catalog != nil {
		entry := catalog.Entry{
			Digest:        res.SourceDigest,
			SourcePath:    src,
			ContainerPath: dst,
			ConversionID:  res.ConversionID,
			ConvertedAt:   time.Now().UTC(),
			Verified:      item.Verify.Identical,
		}
		mu.Lock()
		err = opts.Catalog.Put(entry)
		mu.Unlock()
		if err != nil {
			item.Err = err
			return item
		}
	}

	if opts.DeleteDat && item.Verify.Identical {
		if err := os.Remove(src); err != nil {
			item.Err = fmt.Errorf("remove %s: %w", src, err)
			return item
		}
		log.Info("converted and removed source", "path", src, "container", dst)
	} else {
		log.Info("converted", "path", src, "container", dst, "identical", item.Verify.Identical)
	}
	return item
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return dat.DigestReader(f)
}

func containerPath(src, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ".dcf"
	if outputDir == "" {
		return filepath.Join(filepath.Dir(src), base)
	}
	return filepath.Join(outputDir, base)
}
