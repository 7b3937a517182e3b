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

// discussionCommand implements "gh discussion ...". The gh CLI has no
// native discussion support, so every subcommand is handled here via
// the GraphQL API and nothing declines to a subprocess.
func (p *Plugin) discussionCommand(ctx context.Context, args []string, resource string, credential plugin.Credential) (plugin.Outcome, error) {
	if len(args) == 0 {
		return plugin.Completed(errResult("discussion subcommand required")), nil
	}
	owner, repo, err := splitResource(resource)
	if err != nil {
		return p.finish(plugin.Result{}, err)
	}
	token := credential.Secret
	subcmd, rest := args[0], args[1:]

	switch subcmd {
	case "list":
		return p.finish(p.listDiscussions(ctx, token, owner, repo))
	case "view":
		number, err := requireNumber(rest, "discussion number required")
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.viewDiscussion(ctx, token, owner, repo, number))
	case "create":
		title, body, category, err := parseCreateArgs(rest)
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.createDiscussion(ctx, token, owner, repo, title, body, category))
	case "edit":
		number, err := requireNumber(rest, "discussion number required")
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		title, body, err := parseDiscussionEditArgs(rest[1:])
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.updateDiscussion(ctx, token, owner, repo, number, title, body))
	case "close":
		return p.finishMutateByNumber(ctx, token, owner, repo, rest, "closeDiscussion", "Closed")
	case "reopen":
		return p.finishMutateByNumber(ctx, token, owner, repo, rest, "reopenDiscussion", "Reopened")
	case "delete":
		number, err := requireNumber(rest, "discussion number required")
		if err != nil {
			return p.finish(plugin.Result{}, err)
		}
		return p.finish(p.deleteDiscussion(ctx, token, owner, repo, number))
	case "comment":
		return p.finish(p.handleDiscussionComment(ctx, token, owner, repo, rest))
	case "answer":
		if len(rest) == 0 {
			return plugin.Completed(errResult("comment_id required")), nil
		}
		return p.finish(p.markAnswer(ctx, token, rest[0], true))
	case "unanswer":
		if len(rest) == 0 {
			return plugin.Completed(errResult("comment_id required")), nil
		}
		return p.finish(p.markAnswer(ctx, token, rest[0], false))
	case "poll":
		return p.finish(p.handlePoll(ctx, token, rest))
	default:
		return plugin.Completed(errResult("Unknown discussion subcommand: " + subcmd)), nil
	}
}

// requireNumber parses args[0] as a decimal integer.
func requireNumber(args []string, missing string) (int, error) {
	if len(args) == 0 {
		return 0, commandErrorf("%s", missing)
	}
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, commandErrorf("invalid number: %s", args[0])
	}
	return number, nil
}

// --- GraphQL lookups ---

func (p *Plugin) repositoryID(ctx context.Context, token, owner, repo string) (string, error) {
	var data struct {
		Repository struct {
			ID string `json:"id"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!) {
		repository(owner: $owner, name: $repo) { id }
	}`
	if err := p.graphql(ctx, token, query, map[string]any{"owner": owner, "repo": repo}, nil, &data); err != nil {
		return "", err
	}
	if data.Repository.ID == "" {
		return "", commandErrorf("repository %s/%s not found", owner, repo)
	}
	return data.Repository.ID, nil
}

func (p *Plugin) discussionNodeID(ctx context.Context, token, owner, repo string, number int) (string, error) {
	var data struct {
		Repository struct {
			Discussion *struct {
				ID string `json:"id"`
			} `json:"discussion"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!, $number: Int!) {
		repository(owner: $owner, name: $repo) {
			discussion(number: $number) { id }
		}
	}`
	variables := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := p.graphql(ctx, token, query, variables, nil, &data); err != nil {
		return "", err
	}
	if data.Repository.Discussion == nil {
		return "", commandErrorf("Discussion #%d not found", number)
	}
	return data.Repository.Discussion.ID, nil
}

func (p *Plugin) discussionCategoryID(ctx context.Context, token, owner, repo, category string) (string, error) {
	var data struct {
		Repository struct {
			DiscussionCategories struct {
				Nodes []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
					Slug string `json:"slug"`
				} `json:"nodes"`
			} `json:"discussionCategories"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!) {
		repository(owner: $owner, name: $repo) {
			discussionCategories(first: 100) {
				nodes { id name slug }
			}
		}
	}`
	if err := p.graphql(ctx, token, query, map[string]any{"owner": owner, "repo": repo}, nil, &data); err != nil {
		return "", err
	}
	var available []string
	for _, node := range data.Repository.DiscussionCategories.Nodes {
		if strings.EqualFold(node.Name, category) || strings.EqualFold(node.Slug, category) {
			return node.ID, nil
		}
		available = append(available, node.Name)
	}
	return "", commandErrorf("Category %q not found. Available: %s", category, strings.Join(available, ", "))
}

// --- Operations ---

type discussionRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

func (p *Plugin) listDiscussions(ctx context.Context, token, owner, repo string) (plugin.Result, error) {
	var data struct {
		Repository struct {
			Discussions struct {
				Nodes []struct {
					Number int    `json:"number"`
					Title  string `json:"title"`
					Author *struct {
						Login string `json:"login"`
					} `json:"author"`
					Category *struct {
						Name string `json:"name"`
					} `json:"category"`
					Comments struct {
						TotalCount int `json:"totalCount"`
					} `json:"comments"`
				} `json:"nodes"`
			} `json:"discussions"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!) {
		repository(owner: $owner, name: $repo) {
			discussions(first: 30, orderBy: {field: CREATED_AT, direction: DESC}) {
				nodes {
					number
					title
					author { login }
					createdAt
					category { name }
					comments { totalCount }
				}
			}
		}
	}`
	if err := p.graphql(ctx, token, query, map[string]any{"owner": owner, "repo": repo}, nil, &data); err != nil {
		return plugin.Result{}, err
	}

	var lines []string
	for _, discussion := range data.Repository.Discussions.Nodes {
		author := "ghost"
		if discussion.Author != nil {
			author = discussion.Author.Login
		}
		category := ""
		if discussion.Category != nil {
			category = discussion.Category.Name
		}
		lines = append(lines, fmt.Sprintf("#%d\t%s\t%s\t%s\t%d comments",
			discussion.Number, discussion.Title, author, category, discussion.Comments.TotalCount))
	}
	return plugin.Result{ExitCode: 0, Stdout: strings.Join(lines, "\n")}, nil
}

func (p *Plugin) viewDiscussion(ctx context.Context, token, owner, repo string, number int) (plugin.Result, error) {
	var data struct {
		Repository struct {
			Discussion *struct {
				Number int    `json:"number"`
				Title  string `json:"title"`
				Body   string `json:"body"`
				Author *struct {
					Login string `json:"login"`
				} `json:"author"`
				CreatedAt string `json:"createdAt"`
				Category  *struct {
					Name string `json:"name"`
				} `json:"category"`
				URL      string `json:"url"`
				Comments struct {
					Nodes []struct {
						ID     string `json:"id"`
						Author *struct {
							Login string `json:"login"`
						} `json:"author"`
						Body      string `json:"body"`
						CreatedAt string `json:"createdAt"`
					} `json:"nodes"`
				} `json:"comments"`
			} `json:"discussion"`
		} `json:"repository"`
	}
	query := `query($owner: String!, $repo: String!, $number: Int!) {
		repository(owner: $owner, name: $repo) {
			discussion(number: $number) {
				number
				title
				body
				author { login }
				createdAt
				category { name }
				url
				comments(first: 50) {
					nodes {
						id
						author { login }
						body
						createdAt
					}
				}
			}
		}
	}`
	variables := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := p.graphql(ctx, token, query, variables, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	discussion := data.Repository.Discussion
	if discussion == nil {
		return plugin.Result{}, commandErrorf("Discussion #%d not found", number)
	}

	author := "ghost"
	if discussion.Author != nil {
		author = discussion.Author.Login
	}
	category := ""
	if discussion.Category != nil {
		category = discussion.Category.Name
	}
	body := discussion.Body
	if body == "" {
		body = "(empty)"
	}
	lines := []string{
		"title:\t" + discussion.Title,
		fmt.Sprintf("number:\t%d", discussion.Number),
		"author:\t" + author,
		"category:\t" + category,
		"url:\t" + discussion.URL,
		"created:\t" + discussion.CreatedAt,
		"",
		"--- BODY ---",
		body,
		"",
		"--- COMMENTS ---",
	}
	for _, comment := range discussion.Comments.Nodes {
		commentAuthor := "ghost"
		if comment.Author != nil {
			commentAuthor = comment.Author.Login
		}
		lines = append(lines, fmt.Sprintf("\n[%s] %s at %s:", comment.ID, commentAuthor, comment.CreatedAt))
		lines = append(lines, comment.Body)
	}
	return plugin.Result{ExitCode: 0, Stdout: strings.Join(lines, "\n")}, nil
}

func (p *Plugin) createDiscussion(ctx context.Context, token, owner, repo, title, body, category string) (plugin.Result, error) {
	repositoryID, err := p.repositoryID(ctx, token, owner, repo)
	if err != nil {
		return plugin.Result{}, err
	}
	categoryID, err := p.discussionCategoryID(ctx, token, owner, repo, category)
	if err != nil {
		return plugin.Result{}, err
	}

	var data struct {
		CreateDiscussion struct {
			Discussion discussionRef `json:"discussion"`
		} `json:"createDiscussion"`
	}
	mutation := `mutation($repositoryId: ID!, $categoryId: ID!, $title: String!, $body: String!) {
		createDiscussion(input: {repositoryId: $repositoryId, categoryId: $categoryId, title: $title, body: $body}) {
			discussion { number url }
		}
	}`
	variables := map[string]any{
		"repositoryId": repositoryID,
		"categoryId":   categoryID,
		"title":        title,
		"body":         body,
	}
	if err := p.graphql(ctx, token, mutation, variables, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	created := data.CreateDiscussion.Discussion
	return plugin.Result{
		ExitCode: 0,
		Stdout:   created.URL,
		Stderr:   fmt.Sprintf("Created discussion #%d", created.Number),
	}, nil
}

func (p *Plugin) updateDiscussion(ctx context.Context, token, owner, repo string, number int, title, body string) (plugin.Result, error) {
	discussionID, err := p.discussionNodeID(ctx, token, owner, repo, number)
	if err != nil {
		return plugin.Result{}, err
	}

	var data struct {
		UpdateDiscussion struct {
			Discussion discussionRef `json:"discussion"`
		} `json:"updateDiscussion"`
	}
	mutation := `mutation($discussionId: ID!, $title: String, $body: String) {
		updateDiscussion(input: {discussionId: $discussionId, title: $title, body: $body}) {
			discussion { number url }
		}
	}`
	variables := map[string]any{"discussionId": discussionID}
	if title != "" {
		variables["title"] = title
	}
	if body != "" {
		variables["body"] = body
	}
	if err := p.graphql(ctx, token, mutation, variables, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	updated := data.UpdateDiscussion.Discussion
	return plugin.Result{
		ExitCode: 0,
		Stdout:   updated.URL,
		Stderr:   fmt.Sprintf("Updated discussion #%d", updated.Number),
	}, nil
}

// finishMutateByNumber handles the close/reopen pair, which differ
// only in mutation name and past-tense verb.
func (p *Plugin) finishMutateByNumber(ctx context.Context, token, owner, repo string, args []string, mutationName, verb string) (plugin.Outcome, error) {
	number, err := requireNumber(args, "discussion number required")
	if err != nil {
		return p.finish(plugin.Result{}, err)
	}
	discussionID, err := p.discussionNodeID(ctx, token, owner, repo, number)
	if err != nil {
		return p.finish(plugin.Result{}, err)
	}

	var data map[string]struct {
		Discussion discussionRef `json:"discussion"`
	}
	mutation := fmt.Sprintf(`mutation($discussionId: ID!) {
		%s(input: {discussionId: $discussionId}) {
			discussion { number url }
		}
	}`, mutationName)
	if err := p.graphql(ctx, token, mutation, map[string]any{"discussionId": discussionID}, nil, &data); err != nil {
		return p.finish(plugin.Result{}, err)
	}
	mutated := data[mutationName].Discussion
	return p.finish(plugin.Result{
		ExitCode: 0,
		Stdout:   mutated.URL,
		Stderr:   fmt.Sprintf("%s discussion #%d", verb, mutated.Number),
	}, nil)
}

func (p *Plugin) deleteDiscussion(ctx context.Context, token, owner, repo string, number int) (plugin.Result, error) {
	discussionID, err := p.discussionNodeID(ctx, token, owner, repo, number)
	if err != nil {
		return plugin.Result{}, err
	}

	var data struct {
		DeleteDiscussion struct {
			Discussion discussionRef `json:"discussion"`
		} `json:"deleteDiscussion"`
	}
	mutation := `mutation($discussionId: ID!) {
		deleteDiscussion(input: {id: $discussionId}) {
			discussion { number }
		}
	}`
	if err := p.graphql(ctx, token, mutation, map[string]any{"discussionId": discussionID}, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	return plugin.Result{
		ExitCode: 0,
		Stderr:   fmt.Sprintf("Deleted discussion #%d", data.DeleteDiscussion.Discussion.Number),
	}, nil
}

// handleDiscussionComment dispatches "discussion comment ...":
// add (comment <number> --body), edit, and delete.
func (p *Plugin) handleDiscussionComment(ctx context.Context, token, owner, repo string, args []string) (plugin.Result, error) {
	if len(args) == 0 {
		return plugin.Result{}, commandErrorf("discussion number or 'edit'/'delete' required")
	}

	switch args[0] {
	case "delete":
		if len(args) < 2 {
			return plugin.Result{}, commandErrorf("comment_id required")
		}
		return p.deleteComment(ctx, token, args[1])
	case "edit":
		if len(args) < 2 {
			return plugin.Result{}, commandErrorf("comment_id required")
		}
		body, err := parseCommentBody(args[2:])
		if err != nil {
			return plugin.Result{}, err
		}
		return p.updateComment(ctx, token, args[1], body)
	}

	number, err := strconv.Atoi(args[0])
	if err != nil {
		return plugin.Result{}, commandErrorf("invalid number: %s", args[0])
	}
	body, replyTo, err := parseAddCommentArgs(args[1:])
	if err != nil {
		return plugin.Result{}, err
	}
	return p.addComment(ctx, token, owner, repo, number, body, replyTo)
}

type commentRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (p *Plugin) addComment(ctx context.Context, token, owner, repo string, number int, body, replyTo string) (plugin.Result, error) {
	discussionID, err := p.discussionNodeID(ctx, token, owner, repo, number)
	if err != nil {
		return plugin.Result{}, err
	}

	var data struct {
		AddDiscussionComment struct {
			Comment commentRef `json:"comment"`
		} `json:"addDiscussionComment"`
	}
	mutation := `mutation($discussionId: ID!, $body: String!, $replyToId: ID) {
		addDiscussionComment(input: {discussionId: $discussionId, body: $body, replyToId: $replyToId}) {
			comment { id url }
		}
	}`
	variables := map[string]any{"discussionId": discussionID, "body": body}
	if replyTo != "" {
		variables["replyToId"] = replyTo
	}
	if err := p.graphql(ctx, token, mutation, variables, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	comment := data.AddDiscussionComment.Comment
	return plugin.Result{
		ExitCode: 0,
		Stdout:   comment.URL,
		Stderr:   "Added comment " + comment.ID,
	}, nil
}

func (p *Plugin) updateComment(ctx context.Context, token, commentID, body string) (plugin.Result, error) {
	var data struct {
		UpdateDiscussionComment struct {
			Comment commentRef `json:"comment"`
		} `json:"updateDiscussionComment"`
	}
	mutation := `mutation($commentId: ID!, $body: String!) {
		updateDiscussionComment(input: {commentId: $commentId, body: $body}) {
			comment { id url }
		}
	}`
	if err := p.graphql(ctx, token, mutation, map[string]any{"commentId": commentID, "body": body}, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	comment := data.UpdateDiscussionComment.Comment
	return plugin.Result{
		ExitCode: 0,
		Stdout:   comment.URL,
		Stderr:   "Updated comment " + comment.ID,
	}, nil
}

func (p *Plugin) deleteComment(ctx context.Context, token, commentID string) (plugin.Result, error) {
	var data struct {
		DeleteDiscussionComment struct {
			Comment commentRef `json:"comment"`
		} `json:"deleteDiscussionComment"`
	}
	mutation := `mutation($commentId: ID!) {
		deleteDiscussionComment(input: {id: $commentId}) {
			comment { id }
		}
	}`
	if err := p.graphql(ctx, token, mutation, map[string]any{"commentId": commentID}, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	return plugin.Result{
		ExitCode: 0,
		Stderr:   "Deleted comment " + data.DeleteDiscussionComment.Comment.ID,
	}, nil
}

func (p *Plugin) markAnswer(ctx context.Context, token, commentID string, answered bool) (plugin.Result, error) {
	mutationName := "markDiscussionCommentAsAnswer"
	verb := "Marked as answer"
	if !answered {
		mutationName = "unmarkDiscussionCommentAsAnswer"
		verb = "Unmarked answer"
	}

	var data map[string]struct {
		Discussion discussionRef `json:"discussion"`
	}
	mutation := fmt.Sprintf(`mutation($commentId: ID!) {
		%s(input: {id: $commentId}) {
			discussion { number url }
		}
	}`, mutationName)
	if err := p.graphql(ctx, token, mutation, map[string]any{"commentId": commentID}, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	discussion := data[mutationName].Discussion
	return plugin.Result{
		ExitCode: 0,
		Stdout:   discussion.URL,
		Stderr:   fmt.Sprintf("%s in discussion #%d", verb, discussion.Number),
	}, nil
}

func (p *Plugin) handlePoll(ctx context.Context, token string, args []string) (plugin.Result, error) {
	if len(args) == 0 {
		return plugin.Result{}, commandErrorf("poll subcommand required (vote)")
	}
	if args[0] != "vote" {
		return plugin.Result{}, commandErrorf("Unknown poll subcommand: %s", args[0])
	}
	if len(args) < 2 {
		return plugin.Result{}, commandErrorf("option_id required")
	}

	var data struct {
		AddDiscussionPollVote struct {
			PollOption struct {
				Option         string `json:"option"`
				TotalVoteCount int    `json:"totalVoteCount"`
			} `json:"pollOption"`
		} `json:"addDiscussionPollVote"`
	}
	mutation := `mutation($optionId: ID!) {
		addDiscussionPollVote(input: {pollOptionId: $optionId}) {
			pollOption { id option totalVoteCount }
		}
	}`
	if err := p.graphql(ctx, token, mutation, map[string]any{"optionId": args[1]}, nil, &data); err != nil {
		return plugin.Result{}, err
	}
	option := data.AddDiscussionPollVote.PollOption
	return plugin.Result{
		ExitCode: 0,
		Stdout:   fmt.Sprintf("Voted for: %s (total: %d)", option.Option, option.TotalVoteCount),
	}, nil
}
