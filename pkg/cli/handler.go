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
	"regexp"

	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/ghpipe/pkg/archive"
	"github.com/abcxyz/ghpipe/pkg/handler"
	"github.com/abcxyz/ghpipe/pkg/monitor"
	"github.com/abcxyz/ghpipe/pkg/version"
)

var _ cli.Command = (*HandlerCommand)(nil)

// HandlerCommand runs the consumer side of the pipeline: it durably
// consumes published events, resolves a prompt template for each, and
// drives the LLM CLI against the event's item directory.
type HandlerCommand struct {
	cli.BaseCommand

	cfg       *handler.Config
	storeBase string

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option
}

func (c *HandlerCommand) Desc() string {
	return `Start the Handler consumer loop`
}

func (c *HandlerCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options] <base-path>
  Durably consume published pipeline events, resolve a prompt template for
  each, and invoke the LLM CLI against the event's item directory. The
  positional base-path is the root of the filesystem-backed item tree.
`
}

func (c *HandlerCommand) Flags() *cli.FlagSet {
	c.cfg = &handler.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	c.cfg.ToFlags(set)
	return set
}

func (c *HandlerCommand) Run(ctx context.Context, args []string) error {
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
	logger.InfoContext(ctx, "handler starting", "name", version.Name, "commit", version.Commit, "version", version.Version)

	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var repoFilter, skipUsers *regexp.Regexp
	var err error
	if c.cfg.Repositories != "" {
		repoFilter, err = regexp.Compile(c.cfg.Repositories)
		if err != nil {
			return fmt.Errorf("failed to compile --repositories: %w", err)
		}
	}
	if c.cfg.SkipUsers != "" {
		skipUsers, err = regexp.Compile(c.cfg.SkipUsers)
		if err != nil {
			return fmt.Errorf("failed to compile --skip-users: %w", err)
		}
	}

	var confirmer handler.Confirmer = handler.NewTerminalConfirmer()
	if c.cfg.AutoConfirm {
		confirmer = handler.AutoConfirmer{}
	}

	invoker := &handler.Invoker{ClaudeVerbose: c.cfg.ClaudeVerbose}
	if c.cfg.TranscriptBucket != "" {
		store, err := archive.NewObjectStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to create transcript archive store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close transcript archive store", "error", err)
			}
		}()
		invoker.Archiver = store
		invoker.TranscriptBucket = c.cfg.TranscriptBucket
	}

	dispatcher := &handler.Dispatcher{
		Store:            monitor.NewStore(c.storeBase),
		Templates:        handler.NewTemplateResolver(c.cfg.TemplatesDir),
		Invoker:          invoker,
		Confirmer:        confirmer,
		RepositoryFilter: repoFilter,
		SkipUsers:        skipUsers,
	}

	consumer, nc, err := handler.NewConsumer(ctx, c.cfg.NATSServer, c.cfg.Stream, c.cfg.Consumer, c.cfg.RecreateConsumer, c.cfg.BatchSize, c.cfg.FetchTimeout, dispatcher)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	defer nc.Close()

	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("handler run failed: %w", err)
	}
	return nil
}
