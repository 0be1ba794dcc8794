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
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/abcxyz/ghpipe/pkg/monitor"
)

func newTestDispatcher(t *testing.T, root string) *Dispatcher {
	t.Helper()
	return &Dispatcher{
		Store:     monitor.NewStore(t.TempDir()),
		Templates: NewTemplateResolver(root),
		Confirmer: AutoConfirmer{},
	}
}

func marshal(t *testing.T, v map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return data
}

func TestDispatcher_Handle_DecodeFailureNaks(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	got := d.Handle(context.Background(), "github.issue.new", []byte("not json"))
	if got != ActionNak {
		t.Errorf("Handle(malformed json) = %v, want %v", got, ActionNak)
	}
}

func TestDispatcher_Handle_MissingFieldTerms(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	data := marshal(t, map[string]any{"repository": "acme/widget"}) // number missing
	got := d.Handle(context.Background(), "github.issue.new", data)
	if got != ActionTerm {
		t.Errorf("Handle(missing number) = %v, want %v", got, ActionTerm)
	}
}

func TestDispatcher_Handle_RepositoryFilterMiss(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	d.RepositoryFilter = regexp.MustCompile("^other/")

	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "1"})
	got := d.Handle(context.Background(), "github.issue.new", data)
	if got != ActionAck {
		t.Errorf("Handle(repository filter miss) = %v, want %v", got, ActionAck)
	}
}

func TestDispatcher_Handle_SkipUserMatch(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	d.SkipUsers = regexp.MustCompile("^bot-")

	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "1", "author": "bot-deploy"})
	got := d.Handle(context.Background(), "github.issue.new", data)
	if got != ActionAck {
		t.Errorf("Handle(skip user match) = %v, want %v", got, ActionAck)
	}
}

func TestDispatcher_Handle_NewEventCreatesItemDirectory(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "42"})

	got := d.Handle(context.Background(), "github.issue.new", data)
	if got != ActionAck {
		t.Fatalf("Handle(new event) = %v, want %v", got, ActionAck)
	}

	dir, err := d.Store.ItemDir("acme/widget", 42)
	if err != nil {
		t.Fatalf("ItemDir: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("item directory not created: %v", err)
	}
}

func TestDispatcher_Handle_ClosedEventRemovesActiveMarker(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	dir, _, err := d.Store.EnsureItemDir("acme/widget", 42)
	if err != nil {
		t.Fatalf("EnsureItemDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".active"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile .active: %v", err)
	}

	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "42"})
	got := d.Handle(context.Background(), "github.issue.closed", data)
	if got != ActionAck {
		t.Fatalf("Handle(closed event) = %v, want %v", got, ActionAck)
	}

	has, err := d.Store.HasActive("acme/widget", 42)
	if err != nil {
		t.Fatalf("HasActive: %v", err)
	}
	if has {
		t.Error(".active marker still present after closed event")
	}
}

func TestDispatcher_Handle_ClosedEventMissingActiveMarkerIsNotAnError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	if _, _, err := d.Store.EnsureItemDir("acme/widget", 42); err != nil {
		t.Fatalf("EnsureItemDir: %v", err)
	}

	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "42"})
	got := d.Handle(context.Background(), "github.issue.closed", data)
	if got != ActionAck {
		t.Errorf("Handle(closed, no active marker) = %v, want %v", got, ActionAck)
	}
}

func TestDispatcher_Handle_NoTemplateAcksWithoutInvocation(t *testing.T) {
	t.Parallel()

	// Templates root is empty: no template will ever resolve.
	d := newTestDispatcher(t, t.TempDir())
	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "42"})

	got := d.Handle(context.Background(), "github.issue.new", data)
	if got != ActionAck {
		t.Errorf("Handle(no template) = %v, want %v", got, ActionAck)
	}
}

func TestDispatcher_Handle_UnknownSubjectAcks(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "42"})

	got := d.Handle(context.Background(), "github.discussion.new", data)
	if got != ActionAck {
		t.Errorf("Handle(unknown subject) = %v, want %v", got, ActionAck)
	}
}

func TestDispatcher_Handle_LegacyProcessSubjectRoutesToIssueUpdated(t *testing.T) {
	t.Parallel()

	templatesRoot := t.TempDir()
	writeTemplate(t, templatesRoot, ".default/github.issue.updated.md", "do the thing")

	d := newTestDispatcher(t, templatesRoot)

	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "42"})
	got := d.Handle(context.Background(), legacyProcessSubject, data)
	if got != ActionAck {
		t.Errorf("Handle(legacy process subject) = %v, want %v", got, ActionAck)
	}
}

func TestDispatcher_Handle_AbortInvokesCallback(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, t.TempDir())
	d.Confirmer = abortConfirmer{}

	aborted := false
	d.OnAbort(func() { aborted = true })

	data := marshal(t, map[string]any{"repository": "acme/widget", "number": "42"})
	got := d.Handle(context.Background(), "github.issue.new", data)
	if got != ActionNak {
		t.Errorf("Handle(abort) = %v, want %v", got, ActionNak)
	}
	if !aborted {
		t.Error("OnAbort callback was not invoked")
	}
}

type abortConfirmer struct{}

func (abortConfirmer) Confirm(string, string, int) (bool, bool) { return false, true }
