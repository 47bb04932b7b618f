// Package server is the local HTTP daemon: a single authenticated session
// over a loopback socket, with bearer tokens minted per login.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/tjdeveng/KeepTower-sub010/internal/auth"
	"github.com/tjdeveng/KeepTower-sub010/internal/config"
	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
)

var log = logging.Component("server")

// Server owns one Authenticator and exposes it over HTTP. It is meant for
// loopback use only; there is no TLS because the transport never leaves the
// machine.
type Server struct {
	cfg    *config.Config
	authn  *auth.Authenticator
	issuer *auth.TokenIssuer
	http   *http.Server

	// mu serializes vault access. The stores behind Authenticator.Vault are
	// not safe for concurrent mutation, and net/http runs each request on
	// its own goroutine.
	mu sync.Mutex

	limiter *ipLimiter
}

func New(cfg *config.Config, authn *auth.Authenticator) (*Server, error) {
	issuer, err := auth.NewTokenIssuer(cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		authn:   authn,
		issuer:  issuer,
		limiter: newIPLimiter(1, 5),
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.cfg.ListenAddr).Msg("daemon listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the session.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.authn.Close()
	return s.http.Shutdown(ctx)
}
