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

package githubclient

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

var (
	retryMinWaitDuration        = 1 * time.Second
	retryMaxAttempts     uint64 = 4
)

// withRetry retries a transient GraphQL/REST call with Fibonacci backoff.
func withRetry(ctx context.Context, f func(ctx context.Context) error) error {
	backoff := retry.NewFibonacci(retryMinWaitDuration)
	backoff = retry.WithMaxRetries(retryMaxAttempts, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error { //nolint:wrapcheck
		if err := f(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
