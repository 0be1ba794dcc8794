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
	"fmt"
	"time"

	"github.com/abcxyz/pkg/cli"

	"github.com/abcxyz/ghpipe/pkg/model"
)

// Config defines the set of flags/environment variables that parameterize
// the Monitor.
type Config struct {
	Repositories []string
	NATSServer   string

	DryRun       bool
	UpdatedSince string

	MonitorIssues        bool
	MonitorPRs           bool
	MonitorIssueComments bool
	MonitorPRComments    bool
	ActiveOnly           bool

	Interval string

	// LockBucket/LockObject opt into the single-instance GCS lock guard.
	// Both empty means the guard is skipped entirely, matching the
	// original source which has no equivalent safeguard.
	LockBucket string
	LockObject string

	// PubSubProjectID/PubSubTopicID opt into the best-effort analytics
	// mirror. Both empty means no mirror is configured.
	PubSubProjectID string
	PubSubTopicID   string
}

// Validate does sanity checking on the configuration. An empty repository
// list is valid: the monitor falls back to the repositories that already
// have directories beneath the base path.
func (cfg *Config) Validate() error {
	if cfg.NATSServer == "" {
		return fmt.Errorf("--nats-server is required")
	}
	if cfg.UpdatedSince != "" {
		if _, err := time.Parse(time.RFC3339, cfg.UpdatedSince); err != nil {
			return fmt.Errorf("--updated-since must be an ISO-8601 timestamp: %w", err)
		}
	}
	if cfg.Interval != "" {
		if _, err := model.ParseDuration(cfg.Interval); err != nil {
			return fmt.Errorf("--interval invalid: %w", err)
		}
	}
	if (cfg.LockBucket == "") != (cfg.LockObject == "") {
		return fmt.Errorf("--lock-bucket and --lock-object must be set together")
	}
	if (cfg.PubSubProjectID == "") != (cfg.PubSubTopicID == "") {
		return fmt.Errorf("--pubsub-project-id and --pubsub-topic must be set together")
	}
	return nil
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("MONITOR OPTIONS")

	f.StringSliceVar(&cli.StringSliceVar{
		Name:   "repositories",
		Target: &cfg.Repositories,
		EnvVar: "REPOSITORIES",
		Usage:  `Comma-separated list of "owner/name" repositories to track. If not provided, the existing directories beneath the base path are used.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "nats-server",
		Target: &cfg.NATSServer,
		EnvVar: "NATS_SERVER",
		Usage:  `The NATS server URL to publish events to.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:   "dry-run",
		Target: &cfg.DryRun,
		EnvVar: "DRY_RUN",
		Usage:  `Run without publishing or writing markers; newly discovered items are logged.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "updated-since",
		Target: &cfg.UpdatedSince,
		EnvVar: "UPDATED_SINCE",
		Usage:  `Only discover items updated since this ISO-8601 timestamp.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:    "monitor-issues",
		Target:  &cfg.MonitorIssues,
		EnvVar:  "MONITOR_ISSUES",
		Default: true,
		Usage:   `Monitor issues.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:    "monitor-prs",
		Target:  &cfg.MonitorPRs,
		EnvVar:  "MONITOR_PRS",
		Default: true,
		Usage:   `Monitor pull requests.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:    "monitor-issue-comments",
		Target:  &cfg.MonitorIssueComments,
		EnvVar:  "MONITOR_ISSUE_COMMENTS",
		Default: true,
		Usage:   `Monitor issue comments.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:    "monitor-pr-comments",
		Target:  &cfg.MonitorPRComments,
		EnvVar:  "MONITOR_PR_COMMENTS",
		Default: true,
		Usage:   `Monitor pull request comments.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:    "active-only",
		Target:  &cfg.ActiveOnly,
		EnvVar:  "ACTIVE_ONLY",
		Default: true,
		Usage:   `Restrict the active scan, update/closed, and comment steps to items with a .active marker. Pass -active-only=false to process every tracked item.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "interval",
		Target: &cfg.Interval,
		EnvVar: "INTERVAL",
		Usage:  `Run continuously at this interval (e.g. "5m", "1h30m"). Omit to run one cycle and exit.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "lock-bucket",
		Target: &cfg.LockBucket,
		EnvVar: "LOCK_BUCKET",
		Usage:  `GCS bucket backing the single-Monitor-instance lock. Omit to skip the guard entirely.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "lock-object",
		Target: &cfg.LockObject,
		EnvVar: "LOCK_OBJECT",
		Usage:  `GCS object name backing the single-Monitor-instance lock.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "pubsub-project-id",
		Target: &cfg.PubSubProjectID,
		EnvVar: "PUBSUB_PROJECT_ID",
		Usage:  `Google Cloud project ID for the optional analytics mirror topic.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "pubsub-topic",
		Target: &cfg.PubSubTopicID,
		EnvVar: "PUBSUB_TOPIC",
		Usage:  `Pub/Sub topic ID to mirror published events onto. Omit to disable the mirror.`,
	})

	return set
}
