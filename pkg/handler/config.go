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

package handler

import (
	"fmt"
	"regexp"
	"time"

	"github.com/abcxyz/pkg/cli"

	"github.com/abcxyz/ghpipe/pkg/monitor"
)

// Config defines the set of flags/environment variables that parameterize
// the Handler.
type Config struct {
	TemplatesDir string
	NATSServer   string
	Stream       string
	Consumer     string
	BatchSize    int
	FetchTimeout time.Duration

	SkipUsers    string
	Repositories string

	RecreateConsumer bool
	ClaudeVerbose    bool
	AutoConfirm      bool

	// TranscriptBucket optionally archives every LLM invocation transcript
	// to Cloud Storage, e.g. "gs://my-bucket/transcripts".
	TranscriptBucket string
}

// Validate does sanity checking on the configuration.
func (cfg *Config) Validate() error {
	if cfg.TemplatesDir == "" {
		return fmt.Errorf("--templates-dir is required")
	}
	if cfg.NATSServer == "" {
		return fmt.Errorf("--nats-server is required")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("--batch-size must be a positive integer")
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("--fetch-timeout must be positive")
	}
	if cfg.SkipUsers != "" {
		if _, err := regexp.Compile(cfg.SkipUsers); err != nil {
			return fmt.Errorf("--skip-users is not a valid regexp: %w", err)
		}
	}
	if cfg.Repositories != "" {
		if _, err := regexp.Compile(cfg.Repositories); err != nil {
			return fmt.Errorf("--repositories is not a valid regexp: %w", err)
		}
	}
	return nil
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("HANDLER OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:   "templates-dir",
		Target: &cfg.TemplatesDir,
		EnvVar: "TEMPLATES_DIR",
		Usage:  `Root of the per-event prompt template hierarchy.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "nats-server",
		Target: &cfg.NATSServer,
		EnvVar: "NATS_SERVER",
		Usage:  `The NATS server URL to consume events from.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "stream",
		Target:  &cfg.Stream,
		EnvVar:  "STREAM",
		Default: monitor.StreamName,
		Usage:   `The JetStream stream name to consume from.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "consumer",
		Target:  &cfg.Consumer,
		EnvVar:  "CONSUMER",
		Default: "github-event-handler",
		Usage:   `The durable pull consumer name.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "batch-size",
		Target:  &cfg.BatchSize,
		EnvVar:  "BATCH_SIZE",
		Default: 10,
		Usage:   `Number of messages to fetch per batch.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "fetch-timeout",
		Target:  &cfg.FetchTimeout,
		EnvVar:  "FETCH_TIMEOUT",
		Default: 5 * time.Second,
		Usage:   `Timeout for each fetch call against the durable consumer.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "skip-users",
		Target: &cfg.SkipUsers,
		EnvVar: "SKIP_USERS",
		Usage:  `Regexp matched against an event's author; matches are acked without processing.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "repositories",
		Target: &cfg.Repositories,
		EnvVar: "REPOSITORIES",
		Usage:  `Regexp matched against an event's repository; misses are acked without processing.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:   "recreate-consumer",
		Target: &cfg.RecreateConsumer,
		EnvVar: "RECREATE_CONSUMER",
		Usage:  `Delete and recreate the durable consumer on start-up.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:   "claude-verbose",
		Target: &cfg.ClaudeVerbose,
		EnvVar: "CLAUDE_VERBOSE",
		Usage:  `Bypass JSON-lines parsing and connect the LLM child's stdio directly to this process, for debugging.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:   "auto-confirm",
		Target: &cfg.AutoConfirm,
		EnvVar: "AUTO_CONFIRM",
		Usage:  `Skip the interactive per-event confirmation prompt.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "transcript-bucket",
		Target: &cfg.TranscriptBucket,
		EnvVar: "TRANSCRIPT_BUCKET",
		Usage:  `Optional gs://bucket/prefix to archive LLM invocation transcripts to.`,
	})

	return set
}
