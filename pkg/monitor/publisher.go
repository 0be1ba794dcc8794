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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/abcxyz/pkg/logging"
)

// The stream is auto-created on first use with this configuration; an
// existing stream of the same name is used as-is and not reconciled.
const (
	StreamName     = "GITHUB_EVENTS"
	streamSubjects = "github.>"
	streamMaxAge   = 7 * 24 * time.Hour
	streamMaxMsgs  = 10_000
	streamMaxBytes = 100 * 1024 * 1024
)

// Mirror is a best-effort fan-out sink for a copy of every published
// event, independent of the durable stream (e.g. an analytics pipeline).
// Mirror failures are logged and never block or fail the primary publish.
type Mirror interface {
	Send(ctx context.Context, data []byte) error
}

// Publisher ensures the stream exists and publishes event envelopes onto
// it, optionally mirroring a copy to an analytics sink.
type Publisher struct {
	js     jetstream.JetStream
	mirror Mirror
}

// NewPublisher connects to the given NATS server URL and returns a
// Publisher. EnsureStream must be called once before Publish.
func NewPublisher(ctx context.Context, natsServerURL string, mirror Mirror) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(natsServerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats server %s: %w", natsServerURL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	return &Publisher{js: js, mirror: mirror}, nc, nil
}

// EnsureStream idempotently creates GITHUB_EVENTS with the configured
// retention policy. When a stream with that name already exists, it is
// used as-is; its configuration is not reconciled.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", StreamName, err)
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{streamSubjects},
		Retention: jetstream.LimitsPolicy,
		Discard:   jetstream.DiscardOld,
		MaxAge:    streamMaxAge,
		MaxMsgs:   streamMaxMsgs,
		MaxBytes:  streamMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}
	return nil
}

// Publish serializes envelope to JSON and publishes it on subject.
// Publish failures are returned to the caller, which must not advance any
// watermark for the event that failed to publish.
func (p *Publisher) Publish(ctx context.Context, subject string, envelope map[string]any) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope for %s: %w", subject, err)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event on %s: %w", subject, err)
	}

	if p.mirror != nil {
		if err := p.mirror.Send(ctx, data); err != nil {
			logging.FromContext(ctx).ErrorContext(ctx, "failed to mirror event to analytics sink", "subject", subject, "error", err)
		}
	}
	return nil
}
