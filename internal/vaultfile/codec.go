package vaultfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

var log = logging.Component("vaultfile")

// Read loads a vault file and strips the legacy header when present.
// legacyHint is advisory only: detection always runs on the file bytes, but a
// hinted-legacy file too short to hold the binary header is treated as
// truncated instead of being reinterpreted as integrated payload.
//
// The permission check and the read use the same file handle, so the path
// cannot be swapped between check and open.
func Read(path string, legacyHint bool) (payload []byte, hdr Header, err error) {
	f, err := secureOpen(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Header{}, fmt.Errorf("vaultfile: %s: %w", path, kterrors.ErrFileNotFound)
		}
		return nil, Header{}, fmt.Errorf("vaultfile: open %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, Header{}, fmt.Errorf("vaultfile: read %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
	}

	if len(raw) < HeaderSize {
		if legacyHint {
			return nil, Header{}, fmt.Errorf("vaultfile: %s: truncated header: %w", path, kterrors.ErrFileReadFailed)
		}
		return raw, Header{Kind: Integrated}, nil
	}

	hdr = SniffHeader(raw)
	if hdr.Kind == Legacy {
		return raw[HeaderSize:], hdr, nil
	}
	// Integrated format: rewind to offset 0, the whole file is payload.
	return raw, hdr, nil
}

// Write persists payload atomically: temp file in the same directory, fsync,
// rename over the destination, owner-only permissions, then a best-effort
// fsync of the directory. The rename is the only visible state transition; on
// any failure the temp file is removed and the previous target is untouched.
// When integrated is false the legacy binary header is prepended.
func Write(path string, payload []byte, integrated bool, iterations uint32) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("vaultfile: temp file: %w: %v", kterrors.ErrFileWriteError, err)
	}
	tmpPath := tmp.Name()
	cleanup := func(cause string, err error) error {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vaultfile: %s: %w: %v", cause, kterrors.ErrFileWriteError, err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		return cleanup("chmod", err)
	}
	if !integrated {
		if _, err := tmp.Write(EncodeHeader(iterations)); err != nil {
			return cleanup("write header", err)
		}
	}
	if _, err := tmp.Write(payload); err != nil {
		return cleanup("write payload", err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup("fsync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vaultfile: close: %w: %v", kterrors.ErrFileWriteError, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vaultfile: rename: %w: %v", kterrors.ErrFileWriteError, err)
	}

	// A failed directory sync weakens crash durability but the rename itself
	// already succeeded; log and continue.
	if err := syncDir(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("directory fsync failed")
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
