// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/keyward/keyward/plugin"
)

// subIssuesFeatureHeader opts into the sub-issues GraphQL preview.
var subIssuesFeatureHeader = map[string]string{"GraphQL-Features": "sub_issues"}

// subIssueCommand implements "gh sub-issue ...". The gh CLI has no
// native sub-issue support; every subcommand is handled here and
// nothing declines.
func (p *Plugin) subIssueCommand(ctx context.Context, args []string, resource string, credential plugin.Credential) (plugin.Outcome, error) {
	if len(args) == 0 {
		return plugin.Completed(errResult("sub-issue subcommand required")), nil
	}
	owner, repo, err := splitResource(resource)
	if err != nil {
		return p.finish(plugin.Result{}, err)
	}
	token := credential.Secret
	subcmd, rest := args[0], args[1:]

	switch subcmd {
	case "list":
		number, err := requireNumber(rest, "issue number required")
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.listSubIssues(ctx, token, owner, repo, number))
	case "parent":
		number, err := requireNumber(rest, "issue number required")
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.subIssueParent(ctx, token, owner, repo, number))
	case "add", "remove":
		parent, child, err := requireNumberPair(rest)
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.linkSubIssue(ctx, token, owner, repo, parent, child, subcmd == "add"))
	case "reorder":
		parent, child, err := requireNumberPair(rest)
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		before, after, err := parseReorderArgs(rest[2:])
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.reorderSubIssue(ctx, token, owner, repo, parent, child, before, after))
	default:
		return plugin.Completed(errResult("Unknown sub-issue subcommand: " + subcmd)), nil
	}
}

// requireNumberPair parses args[0] and args[1] as issue numbers.
func requireNumberPair(args []string) (int, int, error) {
	if len(args) < 2 {
		return 0, 0, commandErrorf("parent and child issue numbers required")
	}
	parent, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, commandErrorf("invalid number: %s", args[0])
	}
	child, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, commandErrorf("invalid number: %s", args[1])
	}
	return parent, child, nil
}

// parseReorderArgs parses --before / --after issue numbers; exactly
// one must be present.
func parseReorderArgs(args []string) (before, after int, err error) {
	beforeValue, hasBefore := flagValue(args, "--before")
	afterValue, hasAfter := flagValue(args, "--after")
	if !hasBefore && !hasAfter {
		return 0, 0, commandErrorf("--before or --after required")
	}
	if hasBefore && hasAfter {
		return 0, 0, commandErrorf("--before and --after are mutually exclusive")
	}
	if hasBefore {
		if before, err = strconv.Atoi(beforeValue); err != nil {
			return 0, 0, commandErrorf("invalid number: %s", beforeValue)
		}
	}
	if hasAfter {
		if after, err = strconv.Atoi(afterValue); err != nil {
			return 0, 0, commandErrorf("invalid number: %s", afterValue)
		}
	}
	return before, after, nil
}

// issueNodeID resolves an issue number to its GraphQL node ID.
func (p *Plugin) issueNodeID(ctx context.Context, token, owner, repo string, number int) (string, error) {
	var data struct {
		Repository struct {
			Issue *struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!, $number: Int!) {
		repository(owner: $owner, name: $repo) {
			issue(number: $number) { id }
		}
	}`
	variables := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := p.graphql(ctx, token, query, variables, subIssuesFeatureHeader, &data); err != nil {
		return "", err
	}
	if data.Repository.Issue == nil {
		return "", commandErrorf("Issue #%d not found in %s/%s", number, owner, repo)
	}
	return data.Repository.Issue.ID, nil
}

func (p *Plugin) listSubIssues(ctx context.Context, token, owner, repo string, number int) (plugin.Result, error) {
	var data struct {
		Repository struct {
			Issue *struct {
				SubIssues struct {
					Nodes []struct {
						Number int    `json:"number"`
						Title  string `json:"title"`
						State  string `json:"state"`
					} `json:"nodes"`
				} `json:"subIssues"`
			} `json:"issue"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!, $number: Int!) {
		repository(owner: $owner, name: $repo) {
			issue(number: $number) {
				subIssues(first: 100) {
					nodes { number title state }
				}
			}
		}
	}`
	variables := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := p.graphql(ctx, token, query, variables, subIssuesFeatureHeader, &data); err != nil {
		return plugin.Result{}, err
	}
	if data.Repository.Issue == nil {
		return plugin.Result{}, commandErrorf("Issue #%d not found in %s/%s", number, owner, repo)
	}

	var lines []string
	for _, sub := range data.Repository.Issue.SubIssues.Nodes {
		lines = append(lines, fmt.Sprintf("#%d\t%s\t%s", sub.Number, sub.Title, sub.State))
	}
	return plugin.Result{ExitCode: 0, Stdout: strings.Join(lines, "\n")}, nil
}

func (p *Plugin) subIssueParent(ctx context.Context, token, owner, repo string, number int) (plugin.Result, error) {
	var data struct {
		Repository struct {
			Issue *struct {
				Parent *struct {
					Number int    `json:"number"`
					Title  string `json:"title"`
				} `json:"parent"`
			} `json:"issue"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!, $number: Int!) {
		repository(owner: $owner, name: $repo) {
			issue(number: $number) {
				parent { number title }
			}
		}
	}`
	variables := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := p.graphql(ctx, token, query, variables, subIssuesFeatureHeader, &data); err != nil {
		return plugin.Result{}, err
	}
	if data.Repository.Issue == nil {
		return plugin.Result{}, commandErrorf("Issue #%d not found in %s/%s", number, owner, repo)
	}
	parent := data.Repository.Issue.Parent
	if parent == nil {
		return plugin.Result{ExitCode: 0, Stdout: fmt.Sprintf("Issue #%d has no parent", number)}, nil
	}
	return plugin.Result{ExitCode: 0, Stdout: fmt.Sprintf("#%d\t%s", parent.Number, parent.Title)}, nil
}

func (p *Plugin) linkSubIssue(ctx context.Context, token, owner, repo string, parent, child int, add bool) (plugin.Result, error) {
	parentID, err := p.issueNodeID(ctx, token, owner, repo, parent)
	if err != nil {
		return plugin.Result{}, err
	}
	childID, err := p.issueNodeID(ctx, token, owner, repo, child)
	if err != nil {
		return plugin.Result{}, err
	}

	mutationName := "addSubIssue"
	verb := "Added"
	preposition := "to"
	if !add {
		mutationName = "removeSubIssue"
		verb = "Removed"
		preposition = "from"
	}
	mutation := fmt.Sprintf(`mutation($issueId: ID!, $subIssueId: ID!) {
		%s(input: {issueId: $issueId, subIssueId: $subIssueId}) {
			issue { number }
		}
	}`, mutationName)
	variables := map[string]any{"issueId": parentID, "subIssueId": childID}
	if err := p.graphql(ctx, token, mutation, variables, subIssuesFeatureHeader, nil); err != nil {
		return plugin.Result{}, err
	}
	return plugin.Result{
		ExitCode: 0,
		Stderr:   fmt.Sprintf("%s #%d %s #%d", verb, child, preposition, parent),
	}, nil
}

func (p *Plugin) reorderSubIssue(ctx context.Context, token, owner, repo string, parent, child, before, after int) (plugin.Result, error) {
	parentID, err := p.issueNodeID(ctx, token, owner, repo, parent)
	if err != nil {
		return plugin.Result{}, err
	}
	childID, err := p.issueNodeID(ctx, token, owner, repo, child)
	if err != nil {
		return plugin.Result{}, err
	}

	variables := map[string]any{"issueId": parentID, "subIssueId": childID}
	anchor := before
	anchorKey := "beforeId"
	if after != 0 {
		anchor = after
		anchorKey = "afterId"
	}
	anchorID, err := p.issueNodeID(ctx, token, owner, repo, anchor)
	if err != nil {
		return plugin.Result{}, err
	}
	variables[anchorKey] = anchorID

	mutation := fmt.Sprintf(`mutation($issueId: ID!, $subIssueId: ID!, $%[1]s: ID!) {
		reprioritizeSubIssue(input: {issueId: $issueId, subIssueId: $subIssueId, %[1]s: $%[1]s}) {
			issue { number }
		}
	}`, anchorKey)
	if err := p.graphql(ctx, token, mutation, variables, subIssuesFeatureHeader, nil); err != nil {
		return plugin.Result{}, err
	}
	return plugin.Result{
		ExitCode: 0,
		Stderr:   fmt.Sprintf("Reordered #%d under #%d", child, parent),
	}, nil
}
