// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/keyward/keyward/plugin"
)

// apiVersion pins the GitHub REST API version header.
const apiVersion = "2022-11-28"

// commandError is a command-level failure: the upstream answered, but
// the operation cannot proceed (bad arguments, GraphQL errors, object
// not found). It surfaces to the caller as exit code 1 on stderr, not
// as an HTTP error.
type commandError struct {
	message string
}

func (e *commandError) Error() string { return e.message }

func commandErrorf(format string, args ...any) *commandError {
	return &commandError{message: fmt.Sprintf(format, args...)}
}

// errResult wraps a message as a failed command result.
func errResult(message string) plugin.Result {
	return plugin.Result{ExitCode: 1, Stdout: "", Stderr: message}
}

// finish converts a command's (result, error) into the router
// contract: command-level errors become exit-1 results (masked),
// transport errors propagate for the router to map to
// UPSTREAM_UNAVAILABLE.
func (p *Plugin) finish(result plugin.Result, err error) (plugin.Outcome, error) {
	if err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			return plugin.Completed(errResult(p.masker.Replace(cmdErr.message))), nil
		}
		return plugin.Outcome{}, err
	}
	return plugin.Completed(result), nil
}

// graphql posts a query to the GraphQL endpoint and decodes the data
// object into out. GraphQL-level errors return a commandError;
// transport failures return a plain error.
func (p *Plugin) graphql(ctx context.Context, token, query string, variables map[string]any, extraHeaders map[string]string, out any) error {
	requestBody := map[string]any{"query": query}
	if len(variables) > 0 {
		requestBody["variables"] = variables
	}
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("encoding graphql request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.graphqlURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building graphql request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "keyward")
	for name, value := range extraHeaders {
		req.Header.Set(name, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding graphql response (status %d): %w", resp.StatusCode, err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, len(envelope.Errors))
		for i, graphqlError := range envelope.Errors {
			messages[i] = graphqlError.Message
		}
		return commandErrorf("GraphQL error: %s", strings.Join(messages, "; "))
	}
	if resp.StatusCode != http.StatusOK {
		return commandErrorf("GraphQL endpoint returned status %d", resp.StatusCode)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding graphql data: %w", err)
		}
	}
	return nil
}

// rest performs a REST call and decodes the JSON response into out
// (which may be nil). Non-2xx responses become commandErrors carrying
// the upstream message.
func (p *Plugin) rest(ctx context.Context, token, method, url string, requestBody map[string]any, out any) error {
	var bodyReader *bytes.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "keyward")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("rest request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiError struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&apiError)
		if apiError.Message == "" {
			apiError.Message = "request failed"
		}
		return commandErrorf("GitHub API error (status %d): %s", resp.StatusCode, apiError.Message)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
