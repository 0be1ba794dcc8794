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
	"fmt"

	"github.com/abcxyz/ghpipe/pkg/model"
)

// Classifier resolves an item's kind, preferring the cached .type marker
// and falling back to a remote PR-view probe when absent. The probe's
// result is cached so it is never issued twice for the same item.
type Classifier struct {
	Store  *Store
	Source GitHubSource
}

// Classify returns the kind for (repository, number), probing and caching
// it if not already known.
func (c *Classifier) Classify(ctx context.Context, repository string, number int) (model.Kind, error) {
	if kind, ok, err := c.Store.ReadKind(repository, number); err != nil {
		return "", err
	} else if ok {
		return kind, nil
	}

	owner, name, err := splitRepository(repository)
	if err != nil {
		return "", err
	}

	isPR, err := c.Source.IsPullRequest(ctx, owner, name, number)
	if err != nil {
		return "", fmt.Errorf("failed to classify %s#%d: %w", repository, number, err)
	}

	kind := model.KindIssue
	if isPR {
		kind = model.KindPR
	}
	if err := c.Store.WriteKind(repository, number, kind); err != nil {
		return "", err
	}
	return kind, nil
}
