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
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-gcslock"
)

// SingleInstanceLock guards against two Monitor instances running
// concurrently over the same base tree, which is unsupported. It is
// opt-in: a Monitor started without --lock-bucket skips this check
// entirely.
type SingleInstanceLock struct {
	lock gcslock.Lockable
	ttl  time.Duration
}

// NewSingleInstanceLock returns a lock backed by an object in the given
// GCS bucket.
func NewSingleInstanceLock(ctx context.Context, bucket, object string, ttl time.Duration) (*SingleInstanceLock, error) {
	l, err := gcslock.New(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs lock: %w", err)
	}
	return &SingleInstanceLock{lock: l, ttl: ttl}, nil
}

// Acquire acquires the lock or returns an error if another Monitor
// instance currently holds it.
func (l *SingleInstanceLock) Acquire(ctx context.Context) error {
	if err := l.lock.Acquire(ctx, l.ttl); err != nil {
		var held *gcslock.LockHeldError
		if errors.As(err, &held) {
			return fmt.Errorf("another monitor instance holds the lock: %w", err)
		}
		return fmt.Errorf("failed to acquire monitor lock: %w", err)
	}
	return nil
}

// Release releases the lock.
func (l *SingleInstanceLock) Release(ctx context.Context) error {
	if err := l.lock.Close(ctx); err != nil {
		return fmt.Errorf("failed to release monitor lock: %w", err)
	}
	return nil
}
