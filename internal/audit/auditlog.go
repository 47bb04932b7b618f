// Package audit keeps an append-only record of security-relevant vault
// events. Entries are hash-chained so truncation or edits in the middle of
// the log are detectable.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
)

var log = logging.Component("audit")

// Action names the event class.
type Action string

const (
	ActionVaultCreated   Action = "vault.created"
	ActionVaultOpened    Action = "vault.opened"
	ActionVaultClosed    Action = "vault.closed"
	ActionVaultSaved     Action = "vault.saved"
	ActionAuthFailed     Action = "auth.failed"
	ActionAuthLocked     Action = "auth.locked"
	ActionUserAdded      Action = "user.added"
	ActionUserRemoved    Action = "user.removed"
	ActionPasswordChange Action = "user.password_changed"
	ActionPasswordReset  Action = "user.password_reset"
	ActionBackupRestored Action = "backup.restored"
)

// Entry is one audit record. Hash covers every other field plus the
// previous entry's hash.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Actor    string    `json:"actor"`
	Action   Action    `json:"action"`
	Detail   string    `json:"detail,omitempty"`
	PrevHash string    `json:"prev_hash"`
	Hash     string    `json:"hash"`
}

// Log appends hash-chained entries to a JSON-lines file. Safe for
// concurrent use.
type Log struct {
	mu       sync.Mutex
	path     string
	seq      uint64
	lastHash string
}

// Open attaches to the log at path, replaying existing entries to recover
// the chain tail. A missing file starts a fresh chain.
func Open(path string) (*Log, error) {
	l := &Log{path: path}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: corrupt entry in %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
		}
		l.seq = e.Seq
		l.lastHash = e.Hash
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: read %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
	}
	return l, nil
}

// Append records an event. Failures are returned but callers generally log
// and continue; auditing never blocks the operation it describes.
func (l *Log) Append(actor string, action Action, detail string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		Seq:      l.seq + 1,
		Time:     time.Now().UTC(),
		Actor:    actor,
		Action:   action,
		Detail:   detail,
		PrevHash: l.lastHash,
	}
	e.Hash = chainHash(e)

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode: %w: %v", kterrors.ErrValidationFailed, err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w: %v", l.path, kterrors.ErrFileWriteError, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append %s: %w: %v", l.path, kterrors.ErrFileWriteError, err)
	}
	l.seq = e.Seq
	l.lastHash = e.Hash
	return nil
}

// Record is Append with the error demoted to a warning, for call sites
// inside operations that must not fail on audit trouble.
func (l *Log) Record(actor string, action Action, detail string) {
	if err := l.Append(actor, action, detail); err != nil {
		log.Warn().Err(err).Str("action", string(action)).Msg("audit append failed")
	}
}

// Verify walks the whole file and checks the hash chain. It returns the
// number of valid entries, stopping at the first break.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("audit: open %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
	}
	defer f.Close()

	var (
		count    int
		prevHash string
		prevSeq  uint64
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return count, fmt.Errorf("audit: entry %d unreadable: %w", count+1, kterrors.ErrValidationFailed)
		}
		if e.Seq != prevSeq+1 || e.PrevHash != prevHash || chainHash(e) != e.Hash {
			return count, fmt.Errorf("audit: chain broken at entry %d: %w", e.Seq, kterrors.ErrValidationFailed)
		}
		count++
		prevHash = e.Hash
		prevSeq = e.Seq
	}
	if err := sc.Err(); err != nil {
		return count, fmt.Errorf("audit: read %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
	}
	return count, nil
}

func chainHash(e Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s",
		e.Seq, e.Time.Format(time.RFC3339Nano), e.Actor, e.Action, e.Detail, e.PrevHash)
	return hex.EncodeToString(h.Sum(nil))
}
