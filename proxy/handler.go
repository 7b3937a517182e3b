// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/keyward/keyward/audit"
	"github.com/keyward/keyward/lib/masking"
	"github.com/keyward/keyward/plugin"
)

// Request bodies are CLI argument vectors; 64KB is generous.
const maxRequestBodySize = 64 * 1024

// Handler dispatches proxy requests. Immutable after construction.
type Handler struct {
	registry *plugin.Registry
	executor *Executor
	policy   Policy
	masker   *masking.Masker
	audit    *audit.Store // nil when persistence is disabled
	timeout  time.Duration
	logger   *slog.Logger
}

// HandlerConfig holds the collaborators for a new Handler.
type HandlerConfig struct {
	Registry *plugin.Registry
	Executor *Executor
	Policy   Policy
	Masker   *masking.Masker

	// Audit is the optional persistent audit store.
	Audit *audit.Store

	// HTTPTimeout bounds each health probe in /auth/status.
	HTTPTimeout time.Duration

	Logger *slog.Logger
}

// NewHandler creates a request handler.
func NewHandler(config HandlerConfig) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := config.Policy
	if policy == nil {
		policy = AllowAllPolicy{}
	}
	timeout := config.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Handler{
		registry: config.Registry,
		executor: config.Executor,
		policy:   policy,
		masker:   config.Masker,
		audit:    config.Audit,
		timeout:  timeout,
		logger:   logger,
	}
}

// HandleHealth answers liveness checks. No credential is touched.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, map[string]string{"status": "ok"})
}

// HandleCLI is the POST /cli dispatch pipeline: resolve plugin, check
// policy, select credential, consult custom commands, execute.
func (h *Handler) HandleCLI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req Request
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, KindBadRequest, "request body too large")
			return
		}
		WriteError(w, http.StatusBadRequest, KindBadRequest, "invalid request body: "+h.masker.Replace(err.Error()))
		return
	}
	if req.Tool == "" {
		WriteError(w, http.StatusBadRequest, KindBadRequest, "missing 'tool' field")
		return
	}
	if req.Resource == "" {
		WriteError(w, http.StatusBadRequest, KindBadRequest, "missing 'resource' field")
		return
	}

	p, ok := h.registry.ByTool(req.Tool)
	if !ok {
		WriteError(w, http.StatusBadRequest, KindUnknownTool, "no plugin handles tool: "+req.Tool)
		return
	}

	command := ""
	if len(req.Args) > 0 {
		command = req.Args[0]
	}

	if !h.policy.Evaluate(req.Tool, command, req.Resource) {
		WriteError(w, http.StatusForbidden, KindNoCredential, "policy denied")
		return
	}

	credential, ok := p.Select(req.Resource)
	if !ok {
		h.recordCLI(r, req, -1, http.StatusForbidden, start)
		WriteError(w, http.StatusForbidden, KindNoCredential,
			"no credential for "+req.Tool+" on "+req.Resource)
		return
	}

	// Custom command interception, with fallthrough on decline.
	if command != "" {
		if handler, exists := p.Commands()[command]; exists {
			outcome, err := handler(r.Context(), req.Args[1:], req.Resource, credential)
			if err != nil {
				h.logger.Warn("custom command failed",
					"tool", req.Tool,
					"command", command,
					"resource", req.Resource,
					"error", h.masker.Replace(err.Error()),
				)
				h.recordCLI(r, req, -1, http.StatusBadGateway, start)
				WriteError(w, http.StatusBadGateway, KindUpstreamUnavailable,
					h.masker.Replace(err.Error()))
				return
			}
			if !outcome.IsDeclined() {
				result := outcome.Result()
				h.finishCLI(w, r, req, result, start, true)
				return
			}
		}
	}

	result := h.executor.Run(r.Context(), req.Tool, req.Args, credential.Env, req.Input)
	h.finishCLI(w, r, req, result, start, false)
}

// finishCLI masks the result, writes it, and audits the dispatch.
func (h *Handler) finishCLI(w http.ResponseWriter, r *http.Request, req Request, result plugin.Result, start time.Time, intercepted bool) {
	result.Stdout = h.masker.Replace(result.Stdout)
	result.Stderr = h.masker.Replace(result.Stderr)

	h.logger.Info("cli dispatch",
		"tool", req.Tool,
		"resource", req.Resource,
		"argv0", argv0(req.Args),
		"argc", len(req.Args),
		"exit_code", result.ExitCode,
		"intercepted", intercepted,
		"duration", time.Since(start),
	)
	h.recordCLI(r, req, result.ExitCode, http.StatusOK, start)

	writeJSON(w, h.logger, result)
}

func (h *Handler) recordCLI(r *http.Request, req Request, exitCode, status int, start time.Time) {
	if h.audit == nil {
		return
	}
	h.audit.Record(r.Context(), audit.Entry{
		Time:       start,
		Kind:       "cli",
		Tool:       req.Tool,
		Resource:   req.Resource,
		Argv0:      argv0(req.Args),
		Argc:       len(req.Args),
		ExitCode:   exitCode,
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// argv0 returns the leading argument, the only argv value that ever
// reaches a log or audit record.
func argv0(args []string) string {
	if len(args) == 0 {
		return ""
	}
	// Flags never lead a well-formed invocation, but guard anyway:
	// a flag value could embed user text.
	if strings.HasPrefix(args[0], "-") {
		return "(flag)"
	}
	return args[0]
}
