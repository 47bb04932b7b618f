// Package hwkey abstracts a hardware challenge-response token. The vault
// mixes the token's response into key derivation, so a slot enrolled with a
// key cannot be opened with the password alone.
package hwkey

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"errors"
	"fmt"
	"time"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

// Responder is one challenge-response device. Respond blocks until the
// device answers, the user declines, or ctx expires.
type Responder interface {
	// Present reports whether the device is currently attached.
	Present() bool
	// Respond computes the device's answer to a challenge.
	Respond(ctx context.Context, challenge []byte) ([]byte, error)
}

// Status is the coarse progress of an in-flight challenge, for UIs that
// show a "touch your key" prompt.
type Status int

const (
	StatusIdle Status = iota
	StatusWaitingForDevice
	StatusComputing
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusWaitingForDevice:
		return "waiting-for-device"
	case StatusComputing:
		return "computing"
	case StatusDone:
		return "done"
	default:
		return "idle"
	}
}

type outcome struct {
	response []byte
	err      error
}

// Pending is one in-flight challenge. The operation runs on its own
// goroutine; consume Progress for UI updates and Wait or Poll for the
// result. Exactly one of Wait/Poll-to-done should be used.
type Pending struct {
	progress chan Status
	done     chan outcome
	cancel   context.CancelFunc

	result *outcome
}

// Begin starts a challenge against r. It never blocks; device absence is
// reported through the result like any other failure.
func Begin(ctx context.Context, r Responder, challenge []byte) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		progress: make(chan Status, 4),
		done:     make(chan outcome, 1),
		cancel:   cancel,
	}
	go func() {
		defer cancel()
		defer close(p.progress)
		if !r.Present() {
			p.done <- outcome{err: fmt.Errorf("hwkey: %w", kterrors.ErrHardwareKeyNotPresent)}
			return
		}
		p.progress <- StatusWaitingForDevice
		resp, err := r.Respond(ctx, challenge)
		switch {
		case err == nil:
			p.progress <- StatusDone
			p.done <- outcome{response: resp}
		case ctx.Err() != nil:
			p.done <- outcome{err: fmt.Errorf("hwkey: challenge timed out: %w", kterrors.ErrHardwareKeyError)}
		case errors.Is(err, kterrors.ErrHardwareKeyNotPresent):
			// Detached between the Present check and the response.
			p.done <- outcome{err: err}
		default:
			p.done <- outcome{err: fmt.Errorf("hwkey: %w: %v", kterrors.ErrHardwareKeyError, err)}
		}
	}()
	return p
}

// Progress streams status transitions until the operation settles.
func (p *Pending) Progress() <-chan Status { return p.progress }

// Poll returns the result if the operation has settled. done is false while
// the device is still working.
func (p *Pending) Poll() (response []byte, done bool, err error) {
	if p.result == nil {
		select {
		case out := <-p.done:
			p.result = &out
		default:
			return nil, false, nil
		}
	}
	return p.result.response, true, p.result.err
}

// Wait blocks until the operation settles or ctx expires.
func (p *Pending) Wait(ctx context.Context) ([]byte, error) {
	if p.result != nil {
		return p.result.response, p.result.err
	}
	select {
	case out := <-p.done:
		p.result = &out
		return out.response, out.err
	case <-ctx.Done():
		p.cancel()
		return nil, fmt.Errorf("hwkey: wait cancelled: %w", kterrors.ErrHardwareKeyError)
	}
}

// Cancel aborts the in-flight challenge.
func (p *Pending) Cancel() { p.cancel() }

// SoftwareResponder answers challenges with HMAC-SHA1 over a stored secret,
// the same scheme YubiKey challenge-response slots implement. It stands in
// for real hardware in tests and on machines without a token.
type SoftwareResponder struct {
	secret  []byte
	present bool
	delay   time.Duration
}

func NewSoftwareResponder(secret []byte) *SoftwareResponder {
	return &SoftwareResponder{secret: append([]byte(nil), secret...), present: true}
}

// SetPresent simulates attaching or detaching the device.
func (r *SoftwareResponder) SetPresent(present bool) { r.present = present }

// SetDelay simulates the touch wait before the device answers.
func (r *SoftwareResponder) SetDelay(d time.Duration) { r.delay = d }

func (r *SoftwareResponder) Present() bool { return r.present }

func (r *SoftwareResponder) Respond(ctx context.Context, challenge []byte) ([]byte, error) {
	if !r.present {
		return nil, fmt.Errorf("hwkey: %w", kterrors.ErrHardwareKeyNotPresent)
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	mac := hmac.New(sha1.New, r.secret)
	mac.Write(challenge)
	return mac.Sum(nil), nil
}
