// Package platform wraps host integration: clipboard handoff and process
// hardening.
package platform

import (
	"fmt"
	"time"

	"github.com/atotto/clipboard"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
)

var log = logging.Component("platform")

// CopySecret places value on the system clipboard and schedules a clear
// after ttl. The clear only fires if the clipboard still holds value, so a
// later user copy is never clobbered. ttl <= 0 disables the timer.
func CopySecret(value string, ttl time.Duration) error {
	if clipboard.Unsupported {
		return fmt.Errorf("platform: no clipboard on this system: %w", kterrors.ErrValidationFailed)
	}
	if err := clipboard.WriteAll(value); err != nil {
		return fmt.Errorf("platform: clipboard write: %w: %v", kterrors.ErrValidationFailed, err)
	}
	if ttl > 0 {
		go clearAfter(value, ttl)
	}
	return nil
}

func clearAfter(value string, ttl time.Duration) {
	time.Sleep(ttl)
	current, err := clipboard.ReadAll()
	if err != nil || current != value {
		return
	}
	if err := clipboard.WriteAll(""); err != nil {
		log.Warn().Err(err).Msg("clipboard clear failed")
	}
}
