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

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/ghpipe/pkg/analytics"
	"github.com/abcxyz/ghpipe/pkg/githubclient"
	"github.com/abcxyz/ghpipe/pkg/model"
	"github.com/abcxyz/ghpipe/pkg/monitor"
	"github.com/abcxyz/ghpipe/pkg/version"
)

var _ cli.Command = (*MonitorCommand)(nil)

// MonitorCommand runs the polling/publishing side of the pipeline: it
// discovers tracked items, detects updates and closures, and emits events
// onto the durable stream.
type MonitorCommand struct {
	cli.BaseCommand

	cfg       *monitor.Config
	githubCfg *githubclient.Config
	storeBase string

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option
}

func (c *MonitorCommand) Desc() string {
	return `Start the Monitor polling loop`
}

func (c *MonitorCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options] <base-path>
  Poll GitHub for tracked issues/pull requests and their comments, and
  publish change events onto the durable stream. The positional base-path
  is the root of the filesystem-backed item tree.
`
}

func (c *MonitorCommand) Flags() *cli.FlagSet {
	c.cfg = &monitor.Config{}
	c.githubCfg = &githubclient.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	c.cfg.ToFlags(set)
	c.githubCfg.ToFlags(set)
	return set
}

func (c *MonitorCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	parsed := f.Args()
	if len(parsed) != 1 {
		return fmt.Errorf("expected exactly one argument: <base-path>")
	}
	c.storeBase = parsed[0]

	logger := logging.FromContext(ctx)
	logger.InfoContext(ctx, "monitor starting", "name", version.Name, "commit", version.Commit, "version", version.Version)

	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.githubCfg.Validate(ctx); err != nil {
		return fmt.Errorf("invalid github configuration: %w", err)
	}

	if c.cfg.LockBucket != "" {
		lock, err := monitor.NewSingleInstanceLock(ctx, c.cfg.LockBucket, c.cfg.LockObject, 5*time.Minute)
		if err != nil {
			return fmt.Errorf("failed to create single-instance lock: %w", err)
		}
		if err := lock.Acquire(ctx); err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.ErrorContext(ctx, "failed to release single-instance lock", "error", err)
			}
		}()
	}

	source, err := githubclient.New(ctx, c.githubCfg)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}

	var mirror monitor.Mirror
	if c.cfg.PubSubProjectID != "" {
		m, err := analytics.NewPubSubMirror(ctx, c.cfg.PubSubProjectID, c.cfg.PubSubTopicID)
		if err != nil {
			return fmt.Errorf("failed to create analytics mirror: %w", err)
		}
		defer func() {
			if err := m.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close analytics mirror", "error", err)
			}
		}()
		mirror = m
	}

	publisher, nc, err := monitor.NewPublisher(ctx, c.cfg.NATSServer, mirror)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer nc.Close()

	if err := publisher.EnsureStream(ctx); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	store := monitor.NewStore(c.storeBase)

	repositories := c.cfg.Repositories
	if len(repositories) == 0 {
		repositories, err = store.TrackedRepositories()
		if err != nil {
			return fmt.Errorf("failed to discover tracked repositories: %w", err)
		}
		logger.InfoContext(ctx, "no repositories configured, using existing directories", "repositories", repositories)
	}

	orchestrator := &monitor.Orchestrator{
		Store:                store,
		ItemPoller:           &monitor.ItemPoller{Source: source},
		CommentPoller:        &monitor.CommentPoller{Source: source},
		Classifier:           &monitor.Classifier{Store: store, Source: source},
		Publisher:            publisher,
		Repositories:         repositories,
		DryRun:               c.cfg.DryRun,
		ActiveOnly:           c.cfg.ActiveOnly,
		MonitorIssues:        c.cfg.MonitorIssues,
		MonitorPRs:           c.cfg.MonitorPRs,
		MonitorIssueComments: c.cfg.MonitorIssueComments,
		MonitorPRComments:    c.cfg.MonitorPRComments,
	}

	var updatedSince time.Time
	if c.cfg.UpdatedSince != "" {
		updatedSince, err = time.Parse(time.RFC3339, c.cfg.UpdatedSince)
		if err != nil {
			return fmt.Errorf("failed to parse --updated-since: %w", err)
		}
	}

	var interval time.Duration
	if c.cfg.Interval != "" {
		interval, err = model.ParseDuration(c.cfg.Interval)
		if err != nil {
			return fmt.Errorf("failed to parse --interval: %w", err)
		}
	}

	if err := orchestrator.Run(ctx, updatedSince, interval); err != nil {
		return fmt.Errorf("monitor run failed: %w", err)
	}
	return nil
}
