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

// Package archive writes Handler LLM invocation transcripts to Cloud
// Storage, one best-effort upload per event.
package archive

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
)

// gcsURIPattern matches a gs://bucket/object URI.
var gcsURIPattern = regexp.MustCompile(`^gs://([^/]+)/(.+)$`)

// ObjectStore writes objects to Google Cloud Storage.
type ObjectStore struct {
	client *storage.Client
}

// NewObjectStore creates a new Cloud Storage client.
func NewObjectStore(ctx context.Context) (*ObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud storage client: %w", err)
	}
	return &ObjectStore{client: client}, nil
}

// WriteObject writes the contents of r to the gs://bucket/object URI
// named by objectURI.
func (s *ObjectStore) WriteObject(ctx context.Context, r io.Reader, objectURI string) error {
	bucket, object, err := parseGCSURI(objectURI)
	if err != nil {
		return err
	}

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to copy transcript to %s: %w", objectURI, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close gcs object %s: %w", objectURI, err)
	}
	return nil
}

// Close releases the underlying Cloud Storage client.
func (s *ObjectStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close cloud storage client: %w", err)
	}
	return nil
}

// parseGCSURI splits a gs://bucket/object URI into its bucket and object
// components.
func parseGCSURI(uri string) (bucket, object string, err error) {
	m := gcsURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", "", fmt.Errorf("invalid gcs uri %q, want gs://bucket/object", uri)
	}
	return m[1], strings.TrimPrefix(m[2], "/"), nil
}
