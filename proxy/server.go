// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server binds the TCP listener and serves the proxy endpoints plus
// every plugin-contributed route.
type Server struct {
	addr       string
	handler    *Handler
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	// Addr is the TCP listen address (e.g., "127.0.0.1:8766").
	Addr string

	Handler *Handler
	Logger  *slog.Logger
}

// NewServer assembles the mux: core endpoints first, then plugin
// routes verbatim.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /cli", config.Handler.HandleCLI)
	mux.HandleFunc("GET /health", config.Handler.HandleHealth)
	mux.HandleFunc("GET /auth/status", config.Handler.HandleAuthStatus)

	for _, p := range config.Handler.registry.All() {
		for _, route := range p.Routes() {
			mux.Handle(route.Pattern, route.Handler)
		}
	}

	return &Server{
		addr:    config.Addr,
		handler: config.Handler,
		httpServer: &http.Server{
			Handler:     mux,
			ReadTimeout: 30 * time.Second,
			// No write timeout: git fetch responses stream for as
			// long as the pack transfer takes.
		},
		logger: logger,
	}, nil
}

// Start binds the listener and begins serving in the background.
// Returns an error if the port cannot be bound.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.Info("proxy server started", "addr", listener.Addr().String())

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address (useful when the port was 0).
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down proxy server")
	return s.httpServer.Shutdown(ctx)
}
