// Package backup manages timestamped copies of the vault file: creation,
// newest-first enumeration, restoration, and retention pruning.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

var log = logging.Component("backup")

// suffix layout: <base>.backup.<YYYYMMDD_HHMMSS_mmm>. The timestamp token is
// lexicographically monotonic, so filename order is creation order.
const (
	marker          = ".backup."
	timestampLayout = "20060102_150405"
)

func timestampToken(now time.Time) string {
	return fmt.Sprintf("%s_%03d", now.Format(timestampLayout), now.Nanosecond()/1e6)
}

// searchDir returns where backups for path live and the filename prefix they
// share. An empty backupDir means "beside the original".
func searchDir(path, backupDir string) (dir, prefix string) {
	dir = filepath.Dir(path)
	if backupDir != "" {
		dir = backupDir
	}
	return dir, filepath.Base(path) + marker
}

// Create copies the live vault file to a fresh timestamped backup. A missing
// source is a skip, not an error; a colliding timestamp silently overwrites
// (the contents are a copy of the same source either way).
func Create(path, backupDir string) (created bool, err error) {
	src, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backup: open source: %w: %v", kterrors.ErrFileReadFailed, err)
	}
	defer src.Close()

	dir, prefix := searchDir(path, backupDir)
	if backupDir != "" {
		if err := os.MkdirAll(backupDir, 0o700); err != nil {
			return false, fmt.Errorf("backup: create dir: %w: %v", kterrors.ErrFileWriteError, err)
		}
	}
	dst := filepath.Join(dir, prefix+timestampToken(time.Now()))
	if err := copyFile(src, dst); err != nil {
		return false, fmt.Errorf("backup: %w: %v", kterrors.ErrFileWriteError, err)
	}
	log.Debug().Str("backup", dst).Msg("backup created")
	return true, nil
}

// List enumerates existing backups for path, newest first. A missing search
// directory yields an empty list, never an error.
func List(path, backupDir string) []string {
	dir, prefix := searchDir(path, backupDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), prefix) && len(e.Name()) > len(prefix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	// Descending filename order is descending timestamp order.
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// Restore copies the newest backup over the live file. Installations that
// predate timestamped names kept a single "<base>.backup" file; that name is
// accepted as a restore-only fallback.
func Restore(path, backupDir string) error {
	candidates := List(path, backupDir)
	if len(candidates) == 0 {
		dir, prefix := searchDir(path, backupDir)
		legacy := filepath.Join(dir, strings.TrimSuffix(prefix, "."))
		if _, err := os.Stat(legacy); err == nil {
			candidates = []string{legacy}
		}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("backup: no backup for %s: %w", path, kterrors.ErrFileNotFound)
	}

	src, err := os.Open(candidates[0])
	if err != nil {
		return fmt.Errorf("backup: open %s: %w: %v", candidates[0], kterrors.ErrFileReadFailed, err)
	}
	defer src.Close()
	if err := copyFile(src, path); err != nil {
		return fmt.Errorf("backup: restore: %w: %v", kterrors.ErrFileWriteError, err)
	}
	log.Info().Str("from", candidates[0]).Str("to", path).Msg("restored from backup")
	return nil
}

// Cleanup deletes every backup beyond the maxBackups newest. maxBackups < 1
// disables pruning entirely. Individual delete failures are logged and
// skipped so one stuck file cannot wedge retention.
func Cleanup(path string, maxBackups int, backupDir string) {
	if maxBackups < 1 {
		return
	}
	backups := List(path, backupDir)
	for _, old := range backups[min(maxBackups, len(backups)):] {
		if err := os.Remove(old); err != nil {
			log.Warn().Err(err).Str("backup", old).Msg("could not delete old backup")
		}
	}
}

func copyFile(src *os.File, dstPath string) error {
	// Same temp-then-rename discipline as the codec so a crash mid-copy never
	// leaves a half-written backup in the enumeration.
	dir := filepath.Dir(dstPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dstPath)+".tmp-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fail(err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
