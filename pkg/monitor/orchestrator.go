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
	"os"
	"time"

	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/ghpipe/pkg/model"
)

func statDir(dir string) (os.FileInfo, error) {
	return os.Stat(dir)
}

// EventPublisher is the subset of Publisher the Orchestrator depends on,
// abstracted for testing.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, envelope map[string]any) error
}

// Orchestrator executes one cycle per tick: discovery, active scan,
// update/closed emission, and comment emission, across every configured
// repository. Cycles never overlap; see Run.
type Orchestrator struct {
	Store         *Store
	ItemPoller    *ItemPoller
	CommentPoller *CommentPoller
	Classifier    *Classifier
	Publisher     EventPublisher

	Repositories []string

	DryRun     bool
	ActiveOnly bool

	MonitorIssues        bool
	MonitorPRs           bool
	MonitorIssueComments bool
	MonitorPRComments    bool
}

func (o *Orchestrator) enabledKinds() []model.Kind {
	var kinds []model.Kind
	if o.MonitorIssues {
		kinds = append(kinds, model.KindIssue)
	}
	if o.MonitorPRs {
		kinds = append(kinds, model.KindPR)
	}
	return kinds
}

func (o *Orchestrator) repoFilterSet() map[string]bool {
	set := map[string]bool{}
	for _, r := range o.Repositories {
		set[r] = true
	}
	return set
}

// Run executes the interval loop: one cycle per tick, either once
// (interval == 0) or at a fixed cadence. Cycles never overlap: if a cycle
// exceeds the interval, the next cycle starts immediately and a warning is
// logged. ctx cancellation (e.g. on signal interrupt) aborts the loop
// after the in-flight cycle returns.
func (o *Orchestrator) Run(ctx context.Context, updatedSince time.Time, interval time.Duration) error {
	logger := logging.FromContext(ctx)

	for {
		start := time.Now()
		if err := o.RunCycle(ctx, time.Now().UTC(), updatedSince); err != nil {
			return err
		}
		if interval <= 0 {
			return nil
		}

		elapsed := time.Since(start)
		wait := interval - elapsed
		if wait <= 0 {
			logger.WarnContext(ctx, "cycle exceeded interval, starting next cycle immediately", "elapsed", elapsed, "interval", interval)
			wait = 0
		}

		select {
		case <-ctx.Done():
			return nil //nolint:nilerr // graceful shutdown on cancellation
		case <-time.After(wait):
		}
	}
}

// RunCycle performs a single monitoring cycle: discovery, active scan,
// update/closed, and comments, in that order. All timestamps written
// during the cycle use cycleStart. Per-repo failures are logged and do
// not abort the rest of the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context, cycleStart time.Time, updatedSince time.Time) error {
	logger := logging.FromContext(ctx)
	kinds := o.enabledKinds()

	o.discover(ctx, cycleStart, updatedSince, kinds)
	o.updateAndClose(ctx, cycleStart, kinds)
	o.emitComments(ctx, cycleStart, kinds)

	logger.InfoContext(ctx, "monitoring cycle complete", "cycle_start", cycleStart)
	return nil
}

func (o *Orchestrator) discover(ctx context.Context, cycleStart, updatedSince time.Time, kinds []model.Kind) {
	logger := logging.FromContext(ctx)

	for _, repo := range o.Repositories {
		byKind := o.ItemPoller.FetchOpenItems(ctx, repo, updatedSince, kinds)
		for kind, items := range byKind {
			for number, item := range items {
				dir, err := o.Store.ItemDir(repo, number)
				if err != nil {
					logger.ErrorContext(ctx, "invalid repository slug", "repository", repo, "error", err)
					continue
				}
				if _, statErr := statDir(dir); statErr == nil {
					continue // already tracked, not a new discovery
				}

				if o.DryRun {
					logger.InfoContext(ctx, "dry-run: would emit new event", "repository", repo, "number", number, "kind", kind)
					continue
				}

				envelope, err := model.BuildItemEvent(item)
				if err != nil {
					logger.ErrorContext(ctx, "failed to build event envelope", "repository", repo, "number", number, "error", err)
					continue
				}
				if err := o.Publisher.Publish(ctx, model.Subject(kind, model.ActionNew), envelope); err != nil {
					logger.ErrorContext(ctx, "failed to publish new event", "repository", repo, "number", number, "error", err)
					continue
				}

				if _, _, err := o.Store.EnsureItemDir(repo, number); err != nil {
					logger.ErrorContext(ctx, "failed to create item directory", "repository", repo, "number", number, "error", err)
					continue
				}
				if _, ok, err := o.Store.ReadKind(repo, number); err != nil {
					logger.ErrorContext(ctx, "failed to read cached kind", "repository", repo, "number", number, "error", err)
				} else if !ok {
					if err := o.Store.WriteKind(repo, number, kind); err != nil {
						logger.ErrorContext(ctx, "failed to persist kind", "repository", repo, "number", number, "error", err)
					}
				}
				if err := o.Store.WriteWatermark(repo, number, WatermarkItem, cycleStart); err != nil {
					logger.ErrorContext(ctx, "failed to write watermark", "repository", repo, "number", number, "error", err)
				}
			}
		}
	}
}

func (o *Orchestrator) updateAndClose(ctx context.Context, cycleStart time.Time, kinds []model.Kind) {
	logger := logging.FromContext(ctx)
	repoFilter := o.repoFilterSet()

	items, err := o.Store.ListItems(o.ActiveOnly, repoFilter)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list items", "error", err)
		return
	}

	// Fetch the current open set once per repo, reused across all of that
	// repo's active items.
	openByRepo := map[string]map[model.Kind]map[int]model.TrackedItem{}
	for _, repo := range o.Repositories {
		openByRepo[repo] = o.ItemPoller.FetchOpenItems(ctx, repo, time.Time{}, kinds)
	}

	for _, ref := range items {
		if o.DryRun {
			continue
		}

		kind, err := o.Classifier.Classify(ctx, ref.Repository, ref.Number)
		if err != nil {
			logger.ErrorContext(ctx, "failed to classify item", "repository", ref.Repository, "number", ref.Number, "error", err)
			continue
		}

		// A kind absent from the map was not fetched this cycle (disabled,
		// or its fetch failed), so the item can't be judged open or closed.
		open, fetched := openByRepo[ref.Repository][kind]
		if !fetched {
			continue
		}
		item, present := open[ref.Number]

		if present {
			lastChecked, hasWatermark, err := o.Store.ReadWatermark(ref.Repository, ref.Number, WatermarkItem)
			if err != nil {
				logger.ErrorContext(ctx, "failed to read watermark", "repository", ref.Repository, "number", ref.Number, "error", err)
				continue
			}
			publishFailed := false
			if !hasWatermark || item.UpdatedAt.After(lastChecked) {
				envelope, err := model.BuildItemEvent(item)
				if err != nil {
					logger.ErrorContext(ctx, "failed to build event envelope", "repository", ref.Repository, "number", ref.Number, "error", err)
				} else if err := o.Publisher.Publish(ctx, model.Subject(kind, model.ActionUpdated), envelope); err != nil {
					logger.ErrorContext(ctx, "failed to publish updated event", "repository", ref.Repository, "number", ref.Number, "error", err)
					publishFailed = true
				}
			}
			// The watermark write is not gated on the update check, but a
			// failed publish leaves the watermark where it was.
			if publishFailed {
				continue
			}
			if err := o.Store.WriteWatermark(ref.Repository, ref.Number, WatermarkItem, cycleStart); err != nil {
				logger.ErrorContext(ctx, "failed to write watermark", "repository", ref.Repository, "number", ref.Number, "error", err)
			}
			continue
		}

		// Not present in the open set: the item has closed.
		closedItem := model.TrackedItem{Repository: ref.Repository, Number: ref.Number, Kind: kind, State: "CLOSED"}
		envelope, err := model.BuildItemEvent(closedItem)
		if err != nil {
			logger.ErrorContext(ctx, "failed to build closed event envelope", "repository", ref.Repository, "number", ref.Number, "error", err)
			continue
		}
		if err := o.Publisher.Publish(ctx, model.Subject(kind, model.ActionClosed), envelope); err != nil {
			logger.ErrorContext(ctx, "failed to publish closed event", "repository", ref.Repository, "number", ref.Number, "error", err)
		}
	}
}

func (o *Orchestrator) emitComments(ctx context.Context, cycleStart time.Time, kinds []model.Kind) {
	logger := logging.FromContext(ctx)
	repoFilter := o.repoFilterSet()

	for _, kind := range kinds {
		commentsEnabled := (kind == model.KindIssue && o.MonitorIssueComments) || (kind == model.KindPR && o.MonitorPRComments)
		if !commentsEnabled {
			continue
		}

		wmKind := WatermarkIssueComments
		if kind == model.KindPR {
			wmKind = WatermarkPRComments
		}

		for _, repo := range o.Repositories {
			since, _, err := o.Store.RepoEarliestCommentWatermark(repo, kind)
			if err != nil {
				logger.ErrorContext(ctx, "failed to compute comment watermark window", "repository", repo, "error", err)
				continue
			}

			commentsByNumber, err := o.CommentPoller.FetchRepoComments(ctx, repo, kind, since)
			if err != nil {
				logger.ErrorContext(ctx, "failed to fetch repo comments", "repository", repo, "error", err)
				continue
			}

			items, err := o.Store.ListItems(o.ActiveOnly, map[string]bool{repo: repoFilterOrTrue(repoFilter, repo)})
			if err != nil {
				logger.ErrorContext(ctx, "failed to list items for comments", "repository", repo, "error", err)
				continue
			}

			for _, ref := range items {
				itemKind, ok, err := o.Store.ReadKind(ref.Repository, ref.Number)
				if err != nil || !ok || itemKind != kind {
					continue
				}

				itemWatermark, hasWatermark, err := o.Store.ReadWatermark(ref.Repository, ref.Number, wmKind)
				if err != nil {
					logger.ErrorContext(ctx, "failed to read comment watermark", "repository", ref.Repository, "number", ref.Number, "error", err)
					continue
				}

				if !o.DryRun {
					publishFailed := false
					for _, c := range commentsByNumber[ref.Number] {
						if hasWatermark && !c.UpdatedAt.After(itemWatermark) {
							continue
						}
						envelope, err := model.BuildCommentEvent(ref.Repository, ref.Number, kind, c)
						if err != nil {
							logger.ErrorContext(ctx, "failed to build comment event envelope", "repository", ref.Repository, "number", ref.Number, "error", err)
							continue
						}
						if err := o.Publisher.Publish(ctx, model.Subject(kind, model.ActionCommentNew), envelope); err != nil {
							logger.ErrorContext(ctx, "failed to publish comment event", "repository", ref.Repository, "number", ref.Number, "error", err)
							publishFailed = true
						}
					}
					if publishFailed {
						continue
					}
					if err := o.Store.WriteWatermark(ref.Repository, ref.Number, wmKind, cycleStart); err != nil {
						logger.ErrorContext(ctx, "failed to write comment watermark", "repository", ref.Repository, "number", ref.Number, "error", err)
					}
				}
			}
		}
	}
}

func repoFilterOrTrue(filter map[string]bool, repo string) bool {
	if len(filter) == 0 {
		return true
	}
	return filter[repo]
}
