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
	"bytes"
	"os"
	"testing"
)

func TestAutoConfirmer_AlwaysProceeds(t *testing.T) {
	t.Parallel()

	proceed, abort := AutoConfirmer{}.Confirm("github.issue.new", "acme/widget", 1)
	if !proceed || abort {
		t.Errorf("Confirm() = (%v, %v), want (true, false)", proceed, abort)
	}
}

func TestTerminalConfirmer_NoTTYFailsOpen(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	var out bytes.Buffer
	c := &TerminalConfirmer{In: r, Out: &out}

	// A pipe has no controlling terminal, so term.MakeRaw fails and the
	// confirmer must fail open rather than block forever on a read.
	proceed, abort := c.Confirm("github.issue.new", "acme/widget", 1)
	if !proceed || abort {
		t.Errorf("Confirm() over a non-tty pipe = (%v, %v), want (true, false)", proceed, abort)
	}
	if out.Len() == 0 {
		t.Error("expected a prompt to be written even on the no-tty fallback path")
	}
}
