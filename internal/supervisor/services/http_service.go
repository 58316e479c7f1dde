// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tomtom215/crashguard/internal/logging"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService binds addr and serves the status API under supervision.
//
// The listener is opened inside Serve, so a bind failure is returned to
// suture and retried with its backoff. On cancellation Shutdown runs with a
// fresh context bounded by the shutdown timeout.
//
//	srv := &http.Server{Handler: router}
//	tree.AddAPIService(services.NewHTTPServerService(cfg.Server.Addr, srv, 10*time.Second))
type HTTPServerService struct {
	addr            string
	server          HTTPServer
	shutdownTimeout time.Duration
	bound           atomic.Pointer[string]
}

// NewHTTPServerService creates the service. A non-positive shutdownTimeout
// defaults to 10s.
func NewHTTPServerService(addr string, server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{addr: addr, server: server, shutdownTimeout: shutdownTimeout}
}

// Addr returns the address of the current listener, or "" when not bound.
// With a ":0" addr this is where the kernel-chosen port shows up.
func (h *HTTPServerService) Addr() string {
	if p := h.bound.Load(); p != nil {
		return *p
	}
	return ""
}

// Serve implements suture.Service. http.ErrServerClosed is not an error.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http server listen on %s: %w", h.addr, err)
	}
	addr := ln.Addr().String()
	h.bound.Store(&addr)
	defer h.bound.Store(nil)

	logging.Info().Str("addr", addr).Msg("HTTP status server listening")

	done := make(chan error, 1)
	go func() {
		err := h.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	<-done
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
func (h *HTTPServerService) String() string {
	return "http-server"
}
