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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/ghpipe/pkg/model"
)

func TestStore_WatermarkRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	if _, ok, err := store.ReadWatermark("acme/widget", 7, WatermarkItem); err != nil || ok {
		t.Fatalf("ReadWatermark on fresh store = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.WriteWatermark("acme/widget", 7, WatermarkItem, t1); err != nil {
		t.Fatalf("WriteWatermark: %v", err)
	}

	got, ok, err := store.ReadWatermark("acme/widget", 7, WatermarkItem)
	if err != nil || !ok {
		t.Fatalf("ReadWatermark after write = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if !got.Equal(t1) {
		t.Errorf("ReadWatermark = %v, want %v", got, t1)
	}

	// Watermark monotonicity: a later write must not regress the stored value.
	t2 := t1.Add(time.Hour)
	if err := store.WriteWatermark("acme/widget", 7, WatermarkItem, t2); err != nil {
		t.Fatalf("WriteWatermark: %v", err)
	}
	got2, _, err := store.ReadWatermark("acme/widget", 7, WatermarkItem)
	if err != nil {
		t.Fatalf("ReadWatermark: %v", err)
	}
	if !got2.After(got) {
		t.Errorf("watermark did not advance: got %v, want after %v", got2, got)
	}
}

func TestStore_KindIdempotence(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	if _, ok, err := store.ReadKind("acme/widget", 7); err != nil || ok {
		t.Fatalf("ReadKind on fresh store = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := store.WriteKind("acme/widget", 7, model.KindIssue); err != nil {
		t.Fatalf("WriteKind: %v", err)
	}

	kind, ok, err := store.ReadKind("acme/widget", 7)
	if err != nil || !ok || kind != model.KindIssue {
		t.Fatalf("ReadKind = (%v, %v, %v), want (issue, true, nil)", kind, ok, err)
	}
}

func TestStore_ListItems(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	mustMkdir := func(p string) {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	mustMkdir(filepath.Join(base, "acme", "widget", "7"))
	mustMkdir(filepath.Join(base, "acme", "widget", "8"))
	mustMkdir(filepath.Join(base, "acme", "other", "1"))

	if err := os.WriteFile(filepath.Join(base, "acme", "widget", "7", ".active"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(base)

	all, err := store.ListItems(false, nil)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	want := []ItemRef{
		{Repository: "acme/other", Number: 1},
		{Repository: "acme/widget", Number: 7},
		{Repository: "acme/widget", Number: 8},
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("ListItems(false, nil) mismatch (-want +got):\n%s", diff)
	}

	active, err := store.ListItems(true, nil)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	wantActive := []ItemRef{{Repository: "acme/widget", Number: 7}}
	if diff := cmp.Diff(wantActive, active); diff != "" {
		t.Errorf("ListItems(true, nil) mismatch (-want +got):\n%s", diff)
	}

	filtered, err := store.ListItems(false, map[string]bool{"acme/widget": true})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	wantFiltered := []ItemRef{
		{Repository: "acme/widget", Number: 7},
		{Repository: "acme/widget", Number: 8},
	}
	if diff := cmp.Diff(wantFiltered, filtered); diff != "" {
		t.Errorf("ListItems(false, filter) mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_TrackedRepositories(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "missing"))
	repos, err := store.TrackedRepositories()
	if err != nil {
		t.Fatalf("TrackedRepositories on missing base: %v", err)
	}
	if len(repos) != 0 {
		t.Errorf("TrackedRepositories on missing base = %v, want empty", repos)
	}

	base := t.TempDir()
	mustMkdir := func(p string) {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	mustMkdir(filepath.Join(base, "acme", "widget", "7"))
	mustMkdir(filepath.Join(base, "acme", "other"))
	mustMkdir(filepath.Join(base, "zeta", "gadget", "3"))
	if err := os.WriteFile(filepath.Join(base, "stray-file"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	store = NewStore(base)
	repos, err = store.TrackedRepositories()
	if err != nil {
		t.Fatalf("TrackedRepositories: %v", err)
	}
	want := []string{"acme/other", "acme/widget", "zeta/gadget"}
	if diff := cmp.Diff(want, repos); diff != "" {
		t.Errorf("TrackedRepositories mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_RemoveActive(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	if _, _, err := store.EnsureItemDir("acme/widget", 7); err != nil {
		t.Fatal(err)
	}

	removed, err := store.RemoveActive("acme/widget", 7)
	if err != nil {
		t.Fatalf("RemoveActive on absent marker: %v", err)
	}
	if removed {
		t.Error("RemoveActive on absent marker reported removed=true")
	}

	dir, err := store.ItemDir("acme/widget", 7)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".active"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err = store.RemoveActive("acme/widget", 7)
	if err != nil || !removed {
		t.Fatalf("RemoveActive = (%v, %v), want (true, nil)", removed, err)
	}
}

func TestStore_RepoEarliestCommentWatermark(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	if err := store.WriteKind("acme/widget", 7, model.KindIssue); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteKind("acme/widget", 8, model.KindIssue); err != nil {
		t.Fatal(err)
	}

	t7 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t8 := t7.Add(time.Hour)
	if err := store.WriteWatermark("acme/widget", 7, WatermarkIssueComments, t7); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteWatermark("acme/widget", 8, WatermarkIssueComments, t8); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.RepoEarliestCommentWatermark("acme/widget", model.KindIssue)
	if err != nil || !ok {
		t.Fatalf("RepoEarliestCommentWatermark = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if !got.Equal(t7) {
		t.Errorf("RepoEarliestCommentWatermark = %v, want %v", got, t7)
	}
}
