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
	"os"
	"path/filepath"
	"strings"
)

// TemplateResolver resolves a per-event prompt template by a three-level
// repository hierarchy: <root>/<owner>/<name>/<event>.md, then
// <root>/<owner>/.default/<event>.md, then <root>/.default/<event>.md.
type TemplateResolver struct {
	Root string
}

// NewTemplateResolver returns a resolver rooted at root.
func NewTemplateResolver(root string) *TemplateResolver {
	return &TemplateResolver{Root: root}
}

// Resolve returns the absolute path of the first matching, non-empty
// template for (repository, event). An empty (whitespace-only) file at any
// level is a skip sentinel: resolution stops immediately and ok is false,
// exactly as if no template existed at all — higher levels of the
// hierarchy are never consulted once a skip sentinel is found.
func (r *TemplateResolver) Resolve(repository, event string) (path string, ok bool, err error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return "", false, err
	}

	candidates := []string{
		filepath.Join(r.Root, owner, name, event+".md"),
		filepath.Join(r.Root, owner, ".default", event+".md"),
		filepath.Join(r.Root, ".default", event+".md"),
	}

	for _, candidate := range candidates {
		data, readErr := os.ReadFile(candidate)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			return "", false, fmt.Errorf("failed to read template %s: %w", candidate, readErr)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", false, nil
		}
		abs, absErr := filepath.Abs(candidate)
		if absErr != nil {
			return "", false, fmt.Errorf("failed to resolve absolute path for %s: %w", candidate, absErr)
		}
		return abs, true, nil
	}
	return "", false, nil
}

func splitRepository(repository string) (owner, name string, err error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository slug %q, want \"owner/name\"", repository)
	}
	return parts[0], parts[1], nil
}
