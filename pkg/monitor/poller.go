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

package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/ghpipe/pkg/model"
)

// GitHubSource is the subset of the GitHub client the Item/Comment Pollers
// depend on. Abstracted so the orchestrator can be tested against a fake
// without a live GraphQL/REST transport.
type GitHubSource interface {
	FetchOpenIssues(ctx context.Context, repository string, since time.Time) (map[int]model.TrackedItem, error)
	FetchOpenPullRequests(ctx context.Context, repository string) (map[int]model.TrackedItem, error)
	FetchRepoComments(ctx context.Context, repository string, kind model.Kind, since time.Time) (map[int][]model.Comment, error)
	IsPullRequest(ctx context.Context, owner, repo string, number int) (bool, error)
}

// ItemPoller fetches the open-item set for a repository, normalized to a
// common TrackedItem shape regardless of kind. A failure fetching one kind
// aborts that kind's scan for the repo and is logged, but does not
// propagate: the other kind (and other repos) still proceed.
type ItemPoller struct {
	Source GitHubSource
}

// FetchOpenItems returns the open issues and/or pull requests for
// repository. since is applied to the issues query only (filterBy.since);
// pull requests have no native since-filter and always return the full
// open set.
func (p *ItemPoller) FetchOpenItems(ctx context.Context, repository string, since time.Time, kinds []model.Kind) map[model.Kind]map[int]model.TrackedItem {
	logger := logging.FromContext(ctx)
	out := map[model.Kind]map[int]model.TrackedItem{}
	for _, kind := range kinds {
		switch kind {
		case model.KindIssue:
			items, err := p.Source.FetchOpenIssues(ctx, repository, since)
			if err != nil {
				logger.ErrorContext(ctx, "failed to fetch open issues", "repository", repository, "error", err)
				continue
			}
			out[model.KindIssue] = items
		case model.KindPR:
			items, err := p.Source.FetchOpenPullRequests(ctx, repository)
			if err != nil {
				logger.ErrorContext(ctx, "failed to fetch open pull requests", "repository", repository, "error", err)
				continue
			}
			out[model.KindPR] = items
		}
	}
	return out
}

// CommentPoller fetches new/updated comments for the active items of a
// repository and kind, filtered against the per-item watermark.
type CommentPoller struct {
	Source GitHubSource
}

// FetchRepoComments returns the comments for repository/kind updated after
// since (the repo-wide earliest watermark across its active items of that
// kind). Per-item filtering against the individual item's watermark
// happens in the orchestrator, since the poller has no per-item context.
func (p *CommentPoller) FetchRepoComments(ctx context.Context, repository string, kind model.Kind, since time.Time) (map[int][]model.Comment, error) {
	comments, err := p.Source.FetchRepoComments(ctx, repository, kind, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repo comments for %s: %w", repository, err)
	}
	return comments, nil
}
