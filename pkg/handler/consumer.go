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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/abcxyz/pkg/logging"
)

// consumerFilterSubject is the subject filter bound to the durable pull
// consumer. The stream's own subject filter (github.>) is used here rather
// than the single-token wildcard github.*, which would match none of the
// multi-token event subjects actually published (e.g. github.issue.new,
// github.pr.comment.new).
const consumerFilterSubject = "github.>"

const fetchBackoff = 1 * time.Second

// Consumer drives the durable pull subscription: fetch a batch, dispatch
// each message in arrival order, ack/nak/term according to the
// Dispatcher's verdict, repeat.
type Consumer struct {
	js         jetstream.JetStream
	consumer   jetstream.Consumer
	dispatcher *Dispatcher

	batchSize    int
	fetchTimeout time.Duration
}

// NewConsumer connects to natsServerURL and binds (creating if necessary)
// a durable pull consumer named name on stream. When recreate is set, an
// existing consumer of that name is deleted and recreated first.
func NewConsumer(ctx context.Context, natsServerURL, stream, name string, recreate bool, batchSize int, fetchTimeout time.Duration, dispatcher *Dispatcher) (*Consumer, *nats.Conn, error) {
	nc, err := nats.Connect(natsServerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats server %s: %w", natsServerURL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	strm, err := js.Stream(ctx, stream)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to look up stream %s: %w", stream, err)
	}

	if recreate {
		if err := strm.DeleteConsumer(ctx, name); err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to delete durable consumer %s: %w", name, err)
		}
	}

	cons, err := strm.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: consumerFilterSubject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create durable consumer %s: %w", name, err)
	}

	return &Consumer{
		js:           js,
		consumer:     cons,
		dispatcher:   dispatcher,
		batchSize:    batchSize,
		fetchTimeout: fetchTimeout,
	}, nc, nil
}

// Run fetches and dispatches batches until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	aborted := false
	c.dispatcher.OnAbort(func() { aborted = true })

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if aborted {
			return nil
		}

		msgs, err := c.consumer.Fetch(c.batchSize, jetstream.FetchMaxWait(c.fetchTimeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logging.FromContext(ctx).ErrorContext(ctx, "fetch failed", "error", err)
			time.Sleep(fetchBackoff)
			continue
		}

		for msg := range msgs.Messages() {
			c.dispatchOne(ctx, msg)
			if aborted {
				break
			}
		}
		if err := msgs.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			logging.FromContext(ctx).ErrorContext(ctx, "error draining fetch batch", "error", err)
		}
	}
}

func (c *Consumer) dispatchOne(ctx context.Context, msg jetstream.Msg) {
	logger := logging.FromContext(ctx)
	action := c.dispatcher.Handle(ctx, msg.Subject(), msg.Data())

	var err error
	switch action {
	case ActionAck:
		err = msg.Ack()
	case ActionNak:
		err = msg.Nak()
	case ActionTerm:
		err = msg.Term()
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve message", "subject", msg.Subject(), "action", action.String(), "error", err)
	}
}
