// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"

	"github.com/keyward/keyward/plugin"
)

// prCommand intercepts the partial-body-edit forms of "gh pr":
//
//	pr edit <number> --old "..." --new "..." [--replace-all] [--title "..."]
//	pr comment edit <comment-id> --old "..." --new "..." [--replace-all]
//
// Everything else declines to the gh subprocess.
func (p *Plugin) prCommand(ctx context.Context, args []string, resource string, credential plugin.Credential) (plugin.Outcome, error) {
	if len(args) == 0 {
		return plugin.Declined(), nil
	}
	subcmd, rest := args[0], args[1:]

	switch {
	case subcmd == "edit" && hasOldAndNew(rest):
		return p.finish(p.editIssueBody(ctx, credential.Secret, resource, rest, true))
	case subcmd == "comment" && len(rest) > 0 && rest[0] == "edit" && hasOldAndNew(rest[1:]):
		return p.finish(p.editCommentBody(ctx, credential.Secret, resource, rest[1:]))
	}
	return plugin.Declined(), nil
}
