// Package logcompress implements the daily log-rotation compression job
// driven by the scheduler: walk the logging directory, skip today's
// active log file and anything already compressed, zstd-compress
// everything else in place, and remove the original.
//
// Grounded on
// _examples/original_source/src/jobs/maintenance/compress_logs.rs:
// same max-depth walk, same "skip .gz/.zst and today's file" rule, same
// compress-then-remove-original sequencing. The original's `zstd` crate
// (`copy_encode` at level 11) becomes
// github.com/klauspost/compress/zstd — a direct dependency already
// wired for the Geo-IP blob (component C1) — instead of shelling out to
// a zstd binary.
package logcompress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const maxDepth = 4

var excludedExtensions = map[string]bool{
	"gz":  true,
	"zst": true,
}

// CompressOldLogs walks logsDir (bounded to maxDepth) and zstd-compresses
// every file that is not today's active log and not already compressed.
// Per-file failures are logged and do not stop the walk.
func CompressOldLogs(logsDir string, logger *zap.Logger, now time.Time) {
	todaySuffix := now.UTC().Format("2006-01-02")

	err := filepath.WalkDir(logsDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Error("logcompress: error walking logs directory", zap.String("dir", logsDir), zap.Error(walkErr))
			return nil
		}
		if depthOf(logsDir, path) > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, todaySuffix) {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if excludedExtensions[ext] {
			return nil
		}

		start := time.Now()
		if err := compressAndRemove(path); err != nil {
			logger.Error("logcompress: failed to compress log file", zap.String("path", path), zap.Error(err))
			return nil
		}
		logger.Info("logcompress: log file compressed", zap.String("path", path), zap.Duration("duration", time.Since(start)))
		return nil
	})
	if err != nil {
		logger.Error("logcompress: walk failed", zap.String("dir", logsDir), zap.Error(err))
	}
}

func depthOf(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	if rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func compressAndRemove(path string) error {
	compressedPath := path + ".zst"

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer in.Close()

	out, err := os.Create(compressedPath)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	w, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		out.Close()
		return fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := w.Close(); err != nil {
		out.Close()
		return fmt.Errorf("zstd close: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove original: %w", err)
	}
	return nil
}
