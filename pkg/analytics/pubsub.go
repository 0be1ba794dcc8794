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

// Package analytics mirrors published pipeline events onto a Cloud Pub/Sub
// topic for downstream analytics consumption, independent of the durable
// JetStream stream's own delivery guarantees.
package analytics

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubMirror implements [monitor.Mirror] for Google Cloud Pub/Sub. A
// mirror send failure is surfaced to the caller, which logs it and never
// allows it to affect the primary stream publish.
type PubSubMirror struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubMirror creates a mirror publishing onto topicID in projectID.
func NewPubSubMirror(ctx context.Context, projectID, topicID string) (*PubSubMirror, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubSubMirror{client: client, topic: client.Topic(topicID)}, nil
}

// Send publishes data to the mirror topic and waits for the publish result.
func (m *PubSubMirror) Send(ctx context.Context, data []byte) error {
	result := m.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish analytics mirror message: %w", err)
	}
	return nil
}

// Close releases the underlying Pub/Sub client and topic.
func (m *PubSubMirror) Close() error {
	m.topic.Stop()
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
