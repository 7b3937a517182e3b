// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"strconv"

	"github.com/keyward/keyward/plugin"
)

// issueCommand intercepts the partial-body-edit forms of "gh issue"
// that the real CLI cannot express:
//
//	issue edit <number> --old "..." --new "..." [--replace-all]
//	issue comment edit <comment-id> --old "..." --new "..." [--replace-all]
//
// Everything else declines to the gh subprocess.
func (p *Plugin) issueCommand(ctx context.Context, args []string, resource string, credential plugin.Credential) (plugin.Outcome, error) {
	if len(args) == 0 {
		return plugin.Declined(), nil
	}
	subcmd, rest := args[0], args[1:]

	switch {
	case subcmd == "edit" && hasOldAndNew(rest):
		return p.finish(p.editIssueBody(ctx, credential.Secret, resource, rest, false))
	case subcmd == "comment" && len(rest) > 0 && rest[0] == "edit" && hasOldAndNew(rest[1:]):
		return p.finish(p.editCommentBody(ctx, credential.Secret, resource, rest[1:]))
	}
	return plugin.Declined(), nil
}

// editIssueBody applies a find-and-replace edit to an issue or pull
// request body. asPR switches the object noun in messages; both use
// the issues REST endpoints (pulls are issues to the REST body API,
// except that pr edit may also set the title via the pulls endpoint).
func (p *Plugin) editIssueBody(ctx context.Context, token, resource string, args []string, asPR bool) (plugin.Result, error) {
	owner, repo, err := splitResource(resource)
	if err != nil {
		return plugin.Result{}, err
	}
	edit, err := parseBodyEditArgs(args, asPR)
	if err != nil {
		return plugin.Result{}, err
	}
	noun := "issue"
	if asPR {
		noun = "PR"
	}
	if len(edit.positional) == 0 {
		return plugin.Result{}, commandErrorf("%s number required", noun)
	}
	number, err := strconv.Atoi(edit.positional[0])
	if err != nil {
		return plugin.Result{}, commandErrorf("Invalid %s number: %s", noun, edit.positional[0])
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d", p.apiBaseURL, owner, repo, number)

	var issue struct {
		Body string `json:"body"`
	}
	if err := p.rest(ctx, token, "GET", url, nil, &issue); err != nil {
		return plugin.Result{}, err
	}
	updated, err := partialReplace(issue.Body, edit.old, edit.new, edit.replaceAll)
	if err != nil {
		return plugin.Result{}, err
	}

	patch := map[string]any{"body": updated}
	patchURL := url
	if asPR && edit.title != "" {
		// Title changes go through the pulls endpoint; body edits are
		// fine on either.
		patchURL = fmt.Sprintf("%s/repos/%s/%s/pulls/%d", p.apiBaseURL, owner, repo, number)
		patch["title"] = edit.title
	}
	if err := p.rest(ctx, token, "PATCH", patchURL, patch, nil); err != nil {
		return plugin.Result{}, err
	}

	return plugin.Result{
		ExitCode: 0,
		Stderr:   fmt.Sprintf("Updated %s #%d", noun, number),
	}, nil
}

// editCommentBody applies a find-and-replace edit to an issue or PR
// comment (both live under /issues/comments).
func (p *Plugin) editCommentBody(ctx context.Context, token, resource string, args []string) (plugin.Result, error) {
	owner, repo, err := splitResource(resource)
	if err != nil {
		return plugin.Result{}, err
	}
	edit, err := parseBodyEditArgs(args, false)
	if err != nil {
		return plugin.Result{}, err
	}
	if len(edit.positional) == 0 {
		return plugin.Result{}, commandErrorf("comment ID required")
	}
	commentID := edit.positional[0]

	url := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%s", p.apiBaseURL, owner, repo, commentID)

	var comment struct {
		Body string `json:"body"`
	}
	if err := p.rest(ctx, token, "GET", url, nil, &comment); err != nil {
		return plugin.Result{}, err
	}
	updated, err := partialReplace(comment.Body, edit.old, edit.new, edit.replaceAll)
	if err != nil {
		return plugin.Result{}, err
	}
	if err := p.rest(ctx, token, "PATCH", url, map[string]any{"body": updated}, nil); err != nil {
		return plugin.Result{}, err
	}

	return plugin.Result{
		ExitCode: 0,
		Stderr:   "Updated comment " + commentID,
	}, nil
}
