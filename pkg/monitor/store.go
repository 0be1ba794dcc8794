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

// Package monitor implements the Monitor side of the pipeline: polling
// GitHub for tracked items and their comments, persisting watermarks to
// the filesystem, and publishing change events to the durable stream.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abcxyz/ghpipe/pkg/model"
)

const (
	markerActive                = ".active"
	markerType                  = ".type"
	markerLastChecked           = ".last_checked"
	markerLastIssueCommentCheck = ".last_issue_comment_check"
	markerLastPRCommentCheck    = ".last_pr_comment_check"
)

// ItemRef identifies a tracked item by repository slug and number.
type ItemRef struct {
	Repository string
	Number     int
}

// Store is the filesystem-backed state store: it locates the root tree,
// enumerates active items, and reads/writes watermark and classification
// marker files. All operations are best-effort; a missing file is never
// an error, it simply means "never checked".
type Store struct {
	Base string
}

// NewStore returns a Store rooted at base.
func NewStore(base string) *Store {
	return &Store{Base: base}
}

// ItemDir returns the directory path for (repository, number), creating
// no files or directories.
func (s *Store) ItemDir(repository string, number int) (string, error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Base, owner, name, strconv.Itoa(number)), nil
}

// EnsureItemDir creates the item directory if it does not already exist,
// returning whether it was newly created.
func (s *Store) EnsureItemDir(repository string, number int) (dir string, created bool, err error) {
	dir, err = s.ItemDir(repository, number)
	if err != nil {
		return "", false, err
	}
	if _, statErr := os.Stat(dir); statErr == nil {
		return dir, false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create item directory %s: %w", dir, err)
	}
	return dir, true, nil
}

// ListItems walks exactly two directory levels beneath each owner
// directory (<base>/<owner>/<name>/<number>/), returning every item found.
// When activeOnly is set, only items with a .active marker are returned.
// When repoFilter is non-nil, only repositories present in it are walked.
func (s *Store) ListItems(activeOnly bool, repoFilter map[string]bool) ([]ItemRef, error) {
	var refs []ItemRef

	owners, err := os.ReadDir(s.Base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list base directory %s: %w", s.Base, err)
	}

	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		ownerPath := filepath.Join(s.Base, owner.Name())
		names, err := os.ReadDir(ownerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to list owner directory %s: %w", ownerPath, err)
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			repository := owner.Name() + "/" + name.Name()
			if repoFilter != nil && !repoFilter[repository] {
				continue
			}
			namePath := filepath.Join(ownerPath, name.Name())
			numbers, err := os.ReadDir(namePath)
			if err != nil {
				return nil, fmt.Errorf("failed to list repository directory %s: %w", namePath, err)
			}
			for _, numDir := range numbers {
				if !numDir.IsDir() {
					continue
				}
				number, err := strconv.Atoi(numDir.Name())
				if err != nil {
					continue // not a numeric item directory; ignore
				}
				if activeOnly {
					if _, err := os.Stat(filepath.Join(namePath, numDir.Name(), markerActive)); err != nil {
						continue
					}
				}
				refs = append(refs, ItemRef{Repository: repository, Number: number})
			}
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Repository != refs[j].Repository {
			return refs[i].Repository < refs[j].Repository
		}
		return refs[i].Number < refs[j].Number
	})
	return refs, nil
}

// TrackedRepositories returns every "owner/name" repository that already
// has a directory beneath the base tree, in sorted order. This is the
// fallback tracked set when no explicit repository list is configured.
func (s *Store) TrackedRepositories() ([]string, error) {
	var repos []string

	owners, err := os.ReadDir(s.Base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list base directory %s: %w", s.Base, err)
	}

	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		ownerPath := filepath.Join(s.Base, owner.Name())
		names, err := os.ReadDir(ownerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to list owner directory %s: %w", ownerPath, err)
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			repos = append(repos, owner.Name()+"/"+name.Name())
		}
	}

	sort.Strings(repos)
	return repos, nil
}

// HasActive reports whether the item's .active marker is present.
func (s *Store) HasActive(repository string, number int) (bool, error) {
	dir, err := s.ItemDir(repository, number)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, markerActive))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat .active for %s#%d: %w", repository, number, err)
}

// RemoveActive removes the item's .active marker. Absence of the marker
// is reported via the bool return, not an error.
func (s *Store) RemoveActive(repository string, number int) (removed bool, err error) {
	dir, err := s.ItemDir(repository, number)
	if err != nil {
		return false, err
	}
	path := filepath.Join(dir, markerActive)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove .active for %s#%d: %w", repository, number, err)
	}
	return true, nil
}

// ReadKind reads the .type marker, returning ("", false, nil) when absent.
func (s *Store) ReadKind(repository string, number int) (model.Kind, bool, error) {
	dir, err := s.ItemDir(repository, number)
	if err != nil {
		return "", false, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, markerType))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read .type for %s#%d: %w", repository, number, err)
	}
	return model.Kind(strings.TrimSpace(string(raw))), true, nil
}

// WriteKind persists the classification in .type. Per the classification
// idempotence property, callers must check ReadKind first: this method
// always (over)writes.
func (s *Store) WriteKind(repository string, number int, kind model.Kind) error {
	dir, _, err := s.EnsureItemDir(repository, number)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, markerType), []byte(kind), 0o644); err != nil {
		return fmt.Errorf("failed to write .type for %s#%d: %w", repository, number, err)
	}
	return nil
}

func watermarkFile(kind watermarkKind) string {
	switch kind {
	case WatermarkItem:
		return markerLastChecked
	case WatermarkIssueComments:
		return markerLastIssueCommentCheck
	case WatermarkPRComments:
		return markerLastPRCommentCheck
	default:
		return markerLastChecked
	}
}

// watermarkKind selects which of the three named watermarks to read/write.
type watermarkKind int

const (
	WatermarkItem watermarkKind = iota
	WatermarkIssueComments
	WatermarkPRComments
)

// ReadWatermark reads the given watermark. A missing file means "never
// checked" and is reported via the bool return, not an error.
func (s *Store) ReadWatermark(repository string, number int, kind watermarkKind) (time.Time, bool, error) {
	dir, err := s.ItemDir(repository, number)
	if err != nil {
		return time.Time{}, false, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, watermarkFile(kind)))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read watermark for %s#%d: %w", repository, number, err)
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse watermark for %s#%d: %w", repository, number, err)
	}
	return t, true, nil
}

// WriteWatermark writes t as the entire content of the named watermark
// file, creating the item directory if necessary.
func (s *Store) WriteWatermark(repository string, number int, kind watermarkKind, t time.Time) error {
	dir, _, err := s.EnsureItemDir(repository, number)
	if err != nil {
		return err
	}
	content := t.UTC().Format(time.RFC3339)
	if err := os.WriteFile(filepath.Join(dir, watermarkFile(kind)), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write watermark for %s#%d: %w", repository, number, err)
	}
	return nil
}

// RepoEarliestCommentWatermark returns the minimum comment watermark
// across every item of kind in repository, used to size the comment-poll
// query window. A false return means the window is unbounded: either no
// item of that kind has a comment watermark, or at least one has never been
// checked.
func (s *Store) RepoEarliestCommentWatermark(repository string, kind model.Kind) (time.Time, bool, error) {
	items, err := s.ListItems(false, map[string]bool{repository: true})
	if err != nil {
		return time.Time{}, false, err
	}

	wmKind := WatermarkIssueComments
	if kind == model.KindPR {
		wmKind = WatermarkPRComments
	}

	var earliest time.Time
	found := false
	for _, item := range items {
		itemKind, ok, err := s.ReadKind(item.Repository, item.Number)
		if err != nil {
			return time.Time{}, false, err
		}
		if !ok || itemKind != kind {
			continue
		}
		t, ok, err := s.ReadWatermark(item.Repository, item.Number, wmKind)
		if err != nil {
			return time.Time{}, false, err
		}
		if !ok {
			// Any item never checked forces a full (unbounded) window.
			return time.Time{}, false, nil
		}
		if !found || t.Before(earliest) {
			earliest = t
			found = true
		}
	}
	return earliest, found, nil
}

func splitRepository(repository string) (owner, name string, err error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository slug %q, want \"owner/name\"", repository)
	}
	return parts[0], parts[1], nil
}
