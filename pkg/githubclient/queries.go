// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package githubclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/abcxyz/ghpipe/pkg/model"
)

const pageSize = 100

type issueNode struct {
	Number    githubv4.Int
	Title     githubv4.String
	Body      githubv4.String
	URL       githubv4.String
	State     githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	ClosedAt  *githubv4.DateTime
	Author    *struct{ Login githubv4.String }
	Assignees struct {
		Nodes []struct{ Login githubv4.String }
	} `graphql:"assignees(first: 10)"`
	Labels struct {
		Nodes []struct{ Name githubv4.String }
	} `graphql:"labels(first: 10)"`
}

func (n issueNode) toTrackedItem(repository string, kind model.Kind) model.TrackedItem {
	item := model.TrackedItem{
		Repository: repository,
		Number:     int(n.Number),
		Kind:       kind,
		Title:      string(n.Title),
		Body:       string(n.Body),
		URL:        string(n.URL),
		State:      string(n.State),
		CreatedAt:  n.CreatedAt.Time,
		UpdatedAt:  n.UpdatedAt.Time,
	}
	if n.ClosedAt != nil {
		t := n.ClosedAt.Time
		item.ClosedAt = &t
	}
	if n.Author != nil {
		item.Author = model.NormalizeAuthor(string(n.Author.Login))
	} else {
		item.Author = model.NormalizeAuthor("")
	}
	for _, a := range n.Assignees.Nodes {
		item.Assignees = append(item.Assignees, string(a.Login))
	}
	item.Assignees = model.CapStrings(item.Assignees, model.AssigneeCap)
	for _, l := range n.Labels.Nodes {
		item.Labels = append(item.Labels, string(l.Name))
	}
	item.Labels = model.CapStrings(item.Labels, model.LabelCap)
	return item
}

type prNode struct {
	issueNode
	MergedAt       *githubv4.DateTime
	IsDraft        githubv4.Boolean
	Mergeable      githubv4.String
	ReviewDecision githubv4.String
}

func (n prNode) toTrackedItem(repository string) model.TrackedItem {
	item := n.issueNode.toTrackedItem(repository, model.KindPR)
	if n.MergedAt != nil {
		t := n.MergedAt.Time
		item.MergedAt = &t
	}
	item.IsDraft = bool(n.IsDraft)
	item.Mergeable = string(n.Mergeable)
	item.ReviewDecision = string(n.ReviewDecision)
	return item
}

// FetchOpenIssues pages through every open issue in repository (format
// "owner/name"), applying filterBy.since when since is non-zero.
func (c *Client) FetchOpenIssues(ctx context.Context, repository string, since time.Time) (map[int]model.TrackedItem, error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}

	items := map[int]model.TrackedItem{}
	cursor := (*githubv4.String)(nil)
	for {
		nodes, hasNext, endCursor, err := c.queryIssuePage(ctx, owner, name, cursor, since)
		if err != nil {
			return nil, fmt.Errorf("failed to query issues for %s: %w", repository, err)
		}
		for _, n := range nodes {
			items[int(n.Number)] = n.toTrackedItem(repository, model.KindIssue)
		}
		if !hasNext {
			break
		}
		cursor = &endCursor
	}
	return items, nil
}

// queryIssuePage issues a single page of the open-issues query. since-
// filtering requires a distinct query shape because the GraphQL `filterBy`
// argument is an input object that GitHub rejects when passed an empty
// `{}` literal, so the since-less case omits the argument entirely rather
// than passing a zero-valued filter.
func (c *Client) queryIssuePage(ctx context.Context, owner, name string, cursor *githubv4.String, since time.Time) ([]issueNode, bool, githubv4.String, error) {
	if since.IsZero() {
		var q struct {
			Repository struct {
				Issues struct {
					Nodes    []issueNode
					PageInfo struct {
						HasNextPage githubv4.Boolean
						EndCursor   githubv4.String
					}
				} `graphql:"issues(first: $pageSize, after: $cursor, states: OPEN)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		err := withRetry(ctx, func(ctx context.Context) error {
			return c.v4.Query(ctx, &q, map[string]interface{}{ //nolint:wrapcheck
				"owner":    githubv4.String(owner),
				"name":     githubv4.String(name),
				"pageSize": githubv4.Int(pageSize),
				"cursor":   cursor,
			})
		})
		return q.Repository.Issues.Nodes, bool(q.Repository.Issues.PageInfo.HasNextPage), q.Repository.Issues.PageInfo.EndCursor, err
	}

	var q struct {
		Repository struct {
			Issues struct {
				Nodes    []issueNode
				PageInfo struct {
					HasNextPage githubv4.Boolean
					EndCursor   githubv4.String
				}
			} `graphql:"issues(first: $pageSize, after: $cursor, states: OPEN, filterBy: {since: $since})"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	err := withRetry(ctx, func(ctx context.Context) error {
		return c.v4.Query(ctx, &q, map[string]interface{}{ //nolint:wrapcheck
			"owner":    githubv4.String(owner),
			"name":     githubv4.String(name),
			"pageSize": githubv4.Int(pageSize),
			"cursor":   cursor,
			"since":    githubv4.DateTime{Time: since},
		})
	})
	return q.Repository.Issues.Nodes, bool(q.Repository.Issues.PageInfo.HasNextPage), q.Repository.Issues.PageInfo.EndCursor, err
}

// FetchOpenPullRequests pages through every open pull request in
// repository. The GraphQL schema has no native since-filter for pull
// requests, so this always returns the full open set; freshness filtering
// happens downstream in the orchestrator.
func (c *Client) FetchOpenPullRequests(ctx context.Context, repository string) (map[int]model.TrackedItem, error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}

	type query struct {
		Repository struct {
			PullRequests struct {
				Nodes    []prNode
				PageInfo struct {
					HasNextPage githubv4.Boolean
					EndCursor   githubv4.String
				}
			} `graphql:"pullRequests(first: $pageSize, after: $cursor, states: OPEN)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	items := map[int]model.TrackedItem{}
	cursor := (*githubv4.String)(nil)
	for {
		var q query
		vars := map[string]interface{}{
			"owner":    githubv4.String(owner),
			"name":     githubv4.String(name),
			"pageSize": githubv4.Int(pageSize),
			"cursor":   cursor,
		}
		if err := withRetry(ctx, func(ctx context.Context) error { return c.v4.Query(ctx, &q, vars) }); err != nil { //nolint:wrapcheck
			return nil, fmt.Errorf("failed to query pull requests for %s: %w", repository, err)
		}
		for _, n := range q.Repository.PullRequests.Nodes {
			items[int(n.Number)] = n.toTrackedItem(repository)
		}
		if !bool(q.Repository.PullRequests.PageInfo.HasNextPage) {
			break
		}
		ec := q.Repository.PullRequests.PageInfo.EndCursor
		cursor = &ec
	}
	return items, nil
}

type reactionNode struct {
	Content githubv4.String
	User    struct{ Login githubv4.String }
}

type commentNode struct {
	ID                githubv4.String
	DatabaseID        githubv4.Int
	URL               githubv4.String
	Author            *struct{ Login githubv4.String }
	AuthorAssociation githubv4.String
	Body              githubv4.String
	BodyText          githubv4.String
	CreatedAt         githubv4.DateTime
	UpdatedAt         githubv4.DateTime
	PublishedAt       githubv4.DateTime
	LastEditedAt      *githubv4.DateTime
	IsMinimized       githubv4.Boolean
	MinimizedReason   githubv4.String
	Reactions         struct {
		TotalCount githubv4.Int
		Nodes      []reactionNode
	} `graphql:"reactions(first: 100)"`
}

func (n commentNode) toComment() model.Comment {
	c := model.Comment{
		ID:                string(n.ID),
		DatabaseID:        int64(n.DatabaseID),
		URL:               string(n.URL),
		AuthorAssociation: string(n.AuthorAssociation),
		Body:              string(n.Body),
		BodyText:          string(n.BodyText),
		CreatedAt:         n.CreatedAt.Time,
		UpdatedAt:         n.UpdatedAt.Time,
		PublishedAt:       n.PublishedAt.Time,
		IsMinimized:       bool(n.IsMinimized),
		MinimizedReason:   string(n.MinimizedReason),
	}
	if n.Author != nil {
		c.Author = model.NormalizeAuthor(string(n.Author.Login))
	} else {
		c.Author = model.NormalizeAuthor("")
	}
	if n.LastEditedAt != nil {
		t := n.LastEditedAt.Time
		c.LastEditedAt = &t
	}
	c.Reactions.TotalCount = int(n.Reactions.TotalCount)
	for _, r := range n.Reactions.Nodes {
		c.Reactions.Items = append(c.Reactions.Items, model.Reaction{
			Content: string(r.Content),
			User:    string(r.User.Login),
		})
	}
	return c
}

// FetchRepoComments issues a single batched query returning the first 100
// open items of the given kind in repository, each with its first 100
// comments ordered newest-first by updated_at. Comments with
// updated_at <= since are dropped client-side; the poller does not
// paginate past the first 100 comments of a single item.
func (c *Client) FetchRepoComments(ctx context.Context, repository string, kind model.Kind, since time.Time) (map[int][]model.Comment, error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}

	var nodesByNumber map[int][]commentNode
	switch kind {
	case model.KindIssue:
		type query struct {
			Repository struct {
				Issues struct {
					Nodes []struct {
						Number   githubv4.Int
						Comments struct {
							Nodes []commentNode
						} `graphql:"comments(first: 100, orderBy: {field: UPDATED_AT, direction: DESC})"`
					}
				} `graphql:"issues(first: 100, states: OPEN)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		var q query
		vars := map[string]interface{}{
			"owner": githubv4.String(owner),
			"name":  githubv4.String(name),
		}
		if err := withRetry(ctx, func(ctx context.Context) error { return c.v4.Query(ctx, &q, vars) }); err != nil { //nolint:wrapcheck
			return nil, fmt.Errorf("failed to query issue comments for %s: %w", repository, err)
		}
		nodesByNumber = map[int][]commentNode{}
		for _, n := range q.Repository.Issues.Nodes {
			nodesByNumber[int(n.Number)] = n.Comments.Nodes
		}
	case model.KindPR:
		type query struct {
			Repository struct {
				PullRequests struct {
					Nodes []struct {
						Number   githubv4.Int
						Comments struct {
							Nodes []commentNode
						} `graphql:"comments(first: 100, orderBy: {field: UPDATED_AT, direction: DESC})"`
					}
				} `graphql:"pullRequests(first: 100, states: OPEN)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}
		var q query
		vars := map[string]interface{}{
			"owner": githubv4.String(owner),
			"name":  githubv4.String(name),
		}
		if err := withRetry(ctx, func(ctx context.Context) error { return c.v4.Query(ctx, &q, vars) }); err != nil { //nolint:wrapcheck
			return nil, fmt.Errorf("failed to query pr comments for %s: %w", repository, err)
		}
		nodesByNumber = map[int][]commentNode{}
		for _, n := range q.Repository.PullRequests.Nodes {
			nodesByNumber[int(n.Number)] = n.Comments.Nodes
		}
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}

	out := map[int][]model.Comment{}
	for number, nodes := range nodesByNumber {
		var kept []model.Comment
		for _, n := range nodes {
			if !since.IsZero() && !n.UpdatedAt.Time.After(since) {
				continue
			}
			kept = append(kept, n.toComment())
		}
		if len(kept) > 0 {
			out[number] = kept
		}
	}
	return out, nil
}

func splitRepository(repository string) (owner, name string, err error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository slug %q, want \"owner/name\"", repository)
	}
	return parts[0], parts[1], nil
}
