// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keyward/keyward/plugin"
)

// graphqlUpstream answers POST /graphql with canned responses in
// order and records the requests.
type graphqlUpstream struct {
	responses []string
	requests  []map[string]any
}

func (g *graphqlUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request map[string]any
		json.NewDecoder(r.Body).Decode(&request)
		g.requests = append(g.requests, map[string]any{
			"body":    request,
			"auth":    r.Header.Get("Authorization"),
			"headers": r.Header.Clone(),
		})
		response := `{"data": {}}`
		if len(g.responses) > 0 {
			response = g.responses[0]
			g.responses = g.responses[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}
}

func newCommandPlugin(t *testing.T, upstream http.Handler) *Plugin {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)
	return newTestPlugin(t, server.URL, entry(t, "tok_acme", "*"))
}

func testCredential() plugin.Credential {
	return plugin.Credential{
		Env:    map[string]string{"GH_TOKEN": "tok_acme"},
		Secret: "tok_acme",
	}
}

func runCommand(t *testing.T, fn plugin.CommandFunc, args ...string) plugin.Outcome {
	t.Helper()
	outcome, err := fn(context.Background(), args, "acme/widgets", testCredential())
	if err != nil {
		t.Fatalf("command error: %v", err)
	}
	return outcome
}

// --- discussion ---

func TestDiscussionList(t *testing.T) {
	upstream := &graphqlUpstream{responses: []string{`{"data": {"repository": {"discussions": {"nodes": [
		{"number": 7, "title": "Roadmap", "author": {"login": "alice"}, "createdAt": "2026-01-01",
		 "category": {"name": "General"}, "comments": {"totalCount": 3}},
		{"number": 5, "title": "Orphaned", "author": null, "category": null, "comments": {"totalCount": 0}}
	]}}}}`}}
	p := newCommandPlugin(t, upstream.handler())

	outcome := runCommand(t, p.discussionCommand, "list")
	if outcome.IsDeclined() {
		t.Fatal("discussion never declines")
	}
	result := outcome.Result()
	if result.ExitCode != 0 {
		t.Fatalf("exit = %d, stderr = %q", result.ExitCode, result.Stderr)
	}
	if !strings.Contains(result.Stdout, "#7\tRoadmap\talice\tGeneral\t3 comments") {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if !strings.Contains(result.Stdout, "#5\tOrphaned\tghost\t\t0 comments") {
		t.Errorf("stdout missing ghost-author line: %q", result.Stdout)
	}
	if auth := upstream.requests[0]["auth"].(string); auth != "bearer tok_acme" {
		t.Errorf("Authorization = %q, want bearer token", auth)
	}
}

func TestDiscussionCreate(t *testing.T) {
	upstream := &graphqlUpstream{responses: []string{
		`{"data": {"repository": {"id": "R_1"}}}`,
		`{"data": {"repository": {"discussionCategories": {"nodes": [
			{"id": "C_1", "name": "General", "slug": "general"}]}}}}`,
		`{"data": {"createDiscussion": {"discussion": {"number": 9, "url": "https://example.com/d/9"}}}}`,
	}}
	p := newCommandPlugin(t, upstream.handler())

	outcome := runCommand(t, p.discussionCommand,
		"create", "--title", "T", "--body", "B", "--category", "general")
	result := outcome.Result()
	if result.ExitCode != 0 {
		t.Fatalf("exit = %d, stderr = %q", result.ExitCode, result.Stderr)
	}
	if result.Stdout != "https://example.com/d/9" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if result.Stderr != "Created discussion #9" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if len(upstream.requests) != 3 {
		t.Errorf("made %d GraphQL calls, want 3", len(upstream.requests))
	}
}

func TestDiscussionCreate_MissingFlags(t *testing.T) {
	p := newCommandPlugin(t, http.NotFoundHandler())
	outcome := runCommand(t, p.discussionCommand, "create", "--title", "T")
	result := outcome.Result()
	if result.ExitCode != 1 || !strings.Contains(result.Stderr, "--body is required") {
		t.Errorf("result = %+v", result)
	}
}

func TestDiscussionView_NotFound(t *testing.T) {
	upstream := &graphqlUpstream{responses: []string{`{"data": {"repository": {"discussion": null}}}`}}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.discussionCommand, "view", "99").Result()
	if result.ExitCode != 1 || !strings.Contains(result.Stderr, "Discussion #99 not found") {
		t.Errorf("result = %+v", result)
	}
}

func TestDiscussion_GraphQLErrorBecomesExitOne(t *testing.T) {
	upstream := &graphqlUpstream{responses: []string{
		`{"errors": [{"message": "Something went wrong"}]}`,
	}}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.discussionCommand, "list").Result()
	if result.ExitCode != 1 {
		t.Fatalf("exit = %d, want 1", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "Something went wrong") {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestDiscussion_UnknownSubcommand(t *testing.T) {
	p := newCommandPlugin(t, http.NotFoundHandler())
	result := runCommand(t, p.discussionCommand, "frobnicate").Result()
	if result.ExitCode != 1 || !strings.Contains(result.Stderr, "Unknown discussion subcommand") {
		t.Errorf("result = %+v", result)
	}
}

func TestDiscussion_TransportErrorPropagates(t *testing.T) {
	p := newTestPlugin(t, "http://127.0.0.1:1", entry(t, "tok_acme", "*"))
	_, err := p.discussionCommand(context.Background(), []string{"list"}, "acme/widgets", testCredential())
	if err == nil {
		t.Fatal("expected a transport error")
	}
}

// --- issue / pr partial edits ---

// restUpstream serves GET and PATCH for an issue and its comments.
type restUpstream struct {
	body        string
	patches     []map[string]any
	patchedPath string
}

func (u *restUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"body": u.body})
		case http.MethodPatch:
			var patch map[string]any
			json.NewDecoder(r.Body).Decode(&patch)
			u.patches = append(u.patches, patch)
			u.patchedPath = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{})
		default:
			http.NotFound(w, r)
		}
	}
}

func TestIssueEdit_PartialReplace(t *testing.T) {
	upstream := &restUpstream{body: "alpha beta gamma"}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.issueCommand, "edit", "12", "--old", "beta", "--new", "BETA").Result()
	if result.ExitCode != 0 {
		t.Fatalf("exit = %d, stderr = %q", result.ExitCode, result.Stderr)
	}
	if result.Stderr != "Updated issue #12" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if len(upstream.patches) != 1 || upstream.patches[0]["body"] != "alpha BETA gamma" {
		t.Errorf("patches = %v", upstream.patches)
	}
	if upstream.patchedPath != "/repos/acme/widgets/issues/12" {
		t.Errorf("patched path = %q", upstream.patchedPath)
	}
}

func TestIssueEdit_OldNotFound(t *testing.T) {
	upstream := &restUpstream{body: "alpha"}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.issueCommand, "edit", "12", "--old", "zeta", "--new", "x").Result()
	if result.ExitCode != 1 || !strings.Contains(result.Stderr, "old string not found") {
		t.Errorf("result = %+v", result)
	}
	if len(upstream.patches) != 0 {
		t.Error("PATCH sent despite failed replace")
	}
}

func TestIssueEdit_AmbiguousWithoutReplaceAll(t *testing.T) {
	upstream := &restUpstream{body: "dup dup"}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.issueCommand, "edit", "12", "--old", "dup", "--new", "x").Result()
	if result.ExitCode != 1 || !strings.Contains(result.Stderr, "--replace-all") {
		t.Errorf("result = %+v", result)
	}

	result = runCommand(t, p.issueCommand, "edit", "12", "--old", "dup", "--new", "x", "--replace-all").Result()
	if result.ExitCode != 0 {
		t.Fatalf("replace-all failed: %+v", result)
	}
	if upstream.patches[0]["body"] != "x x" {
		t.Errorf("patched body = %v", upstream.patches[0]["body"])
	}
}

func TestIssueEdit_DeclinesWithoutOldNew(t *testing.T) {
	p := newCommandPlugin(t, http.NotFoundHandler())

	for _, args := range [][]string{
		{"view", "12"},
		{"edit", "12", "--title", "T"},
		{"edit", "12", "--old", "x"},
		{"comment", "list"},
		{},
	} {
		outcome, err := p.issueCommand(context.Background(), args, "acme/widgets", testCredential())
		if err != nil {
			t.Fatalf("issueCommand(%v): %v", args, err)
		}
		if !outcome.IsDeclined() {
			t.Errorf("issueCommand(%v) did not decline", args)
		}
	}
}

func TestIssueCommentEdit(t *testing.T) {
	upstream := &restUpstream{body: "old comment"}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.issueCommand, "comment", "edit", "5551", "--old", "old", "--new", "new").Result()
	if result.ExitCode != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Stderr != "Updated comment 5551" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if upstream.patchedPath != "/repos/acme/widgets/issues/comments/5551" {
		t.Errorf("patched path = %q", upstream.patchedPath)
	}
}

func TestPREdit_WithTitle(t *testing.T) {
	upstream := &restUpstream{body: "pr body text"}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.prCommand, "edit", "3", "--old", "body", "--new", "BODY", "--title", "New title").Result()
	if result.ExitCode != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Stderr != "Updated PR #3" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	patch := upstream.patches[0]
	if patch["body"] != "pr BODY text" || patch["title"] != "New title" {
		t.Errorf("patch = %v", patch)
	}
	if upstream.patchedPath != "/repos/acme/widgets/pulls/3" {
		t.Errorf("patched path = %q, want the pulls endpoint for title edits", upstream.patchedPath)
	}
}

func TestPREdit_Declines(t *testing.T) {
	p := newCommandPlugin(t, http.NotFoundHandler())
	outcome, err := p.prCommand(context.Background(), []string{"checkout", "3"}, "acme/widgets", testCredential())
	if err != nil || !outcome.IsDeclined() {
		t.Errorf("pr checkout should decline (outcome=%v, err=%v)", outcome, err)
	}
}

// --- sub-issue ---

func TestSubIssueList(t *testing.T) {
	upstream := &graphqlUpstream{responses: []string{
		`{"data": {"repository": {"issue": {"subIssues": {"nodes": [
			{"number": 11, "title": "Child A", "state": "OPEN"},
			{"number": 12, "title": "Child B", "state": "CLOSED"}
		]}}}}}`,
	}}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.subIssueCommand, "list", "10").Result()
	if result.ExitCode != 0 {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Stdout, "#11\tChild A\tOPEN") || !strings.Contains(result.Stdout, "#12\tChild B\tCLOSED") {
		t.Errorf("stdout = %q", result.Stdout)
	}
	// The sub-issues preview header must be present.
	headers := upstream.requests[0]["headers"].(http.Header)
	if headers.Get("GraphQL-Features") != "sub_issues" {
		t.Errorf("GraphQL-Features = %q", headers.Get("GraphQL-Features"))
	}
}

func TestSubIssueAdd(t *testing.T) {
	upstream := &graphqlUpstream{responses: []string{
		`{"data": {"repository": {"issue": {"id": "I_parent"}}}}`,
		`{"data": {"repository": {"issue": {"id": "I_child"}}}}`,
		`{"data": {"addSubIssue": {"issue": {"number": 10}}}}`,
	}}
	p := newCommandPlugin(t, upstream.handler())

	result := runCommand(t, p.subIssueCommand, "add", "10", "11").Result()
	if result.ExitCode != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Stderr != "Added #11 to #10" {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestSubIssueReorder_RequiresAnchor(t *testing.T) {
	p := newCommandPlugin(t, http.NotFoundHandler())
	result := runCommand(t, p.subIssueCommand, "reorder", "10", "11").Result()
	if result.ExitCode != 1 || !strings.Contains(result.Stderr, "--before or --after required") {
		t.Errorf("result = %+v", result)
	}
}

func TestSubIssue_BadNumber(t *testing.T) {
	p := newCommandPlugin(t, http.NotFoundHandler())
	result := runCommand(t, p.subIssueCommand, "list", "abc").Result()
	if result.ExitCode != 1 || !strings.Contains(result.Stderr, "invalid number") {
		t.Errorf("result = %+v", result)
	}
}

// --- partialReplace ---

func TestPartialReplace(t *testing.T) {
	got, err := partialReplace("a b a", "b", "x", false)
	if err != nil || got != "a x a" {
		t.Errorf("partialReplace = %q, %v", got, err)
	}
	if _, err := partialReplace("a a", "a", "x", false); err == nil {
		t.Error("expected ambiguity error")
	}
	got, err = partialReplace("a a", "a", "x", true)
	if err != nil || got != "x x" {
		t.Errorf("replace-all = %q, %v", got, err)
	}
	if _, err := partialReplace("abc", "z", "x", false); err == nil {
		t.Error("expected not-found error")
	}
}
