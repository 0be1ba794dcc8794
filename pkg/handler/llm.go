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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/abcxyz/pkg/logging"
)

// allowedTools is the fixed slash-command tool set granted to every LLM
// invocation.
var allowedTools = []string{"/prepare-issue", "/prepare-pr"}

// Archiver persists a rendered transcript. Implemented by
// [archive.ObjectStore]; abstracted here so tests don't need a live GCS
// client.
type Archiver interface {
	WriteObject(ctx context.Context, r io.Reader, objectURI string) error
}

// Invoker spawns the LLM CLI for a resolved template and streams/renders
// its JSON-lines protocol.
type Invoker struct {
	// ClaudeVerbose bypasses all JSON-lines parsing and connects the
	// child's stdio directly to the parent's.
	ClaudeVerbose bool

	// Archiver and TranscriptBucket optionally upload the rendered
	// transcript after the child exits. Either field empty/nil disables
	// archival.
	Archiver         Archiver
	TranscriptBucket string

	// command overrides the spawned binary name; only set in tests.
	command string
}

type systemInitLine struct {
	Type           string   `json:"type"`
	Subtype        string   `json:"subtype"`
	Model          string   `json:"model"`
	PermissionMode string   `json:"permissionMode"`
	Tools          []string `json:"tools"`
	SlashCommands  []string `json:"slash_commands"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type assistantLine struct {
	Type    string `json:"type"`
	Message struct {
		ID      string         `json:"id"`
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

// Invoke constructs the prompt for (repository, number, basePath) from the
// template at templatePath, spawns the LLM CLI, and streams its output.
// The child's exit code is propagated: a non-zero exit is a processing
// failure the caller must nak.
func (inv *Invoker) Invoke(ctx context.Context, templatePath, repository string, number int, basePath string) error {
	body, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", templatePath, err)
	}
	prompt := fmt.Sprintf("REPOSITORY=%s NUMBER=%d BASE_DIR=%s\n%s", repository, number, basePath, body)

	bin := inv.command
	if bin == "" {
		bin = "claude"
	}
	args := []string{"-p", "--output-format", "stream-json", "--verbose", "--allowedTools", strings.Join(allowedTools, ",")}
	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec // bin/args are fixed, not attacker-controlled
	cmd.Stdin = strings.NewReader(prompt)

	if inv.ClaudeVerbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("llm invocation failed for %s#%d: %w", repository, number, err)
		}
		return nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open llm stdout pipe: %w", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start llm invocation for %s#%d: %w", repository, number, err)
	}

	var transcript bytes.Buffer
	streamTranscript(ctx, stdout, &transcript)

	waitErr := cmd.Wait()

	if inv.Archiver != nil && inv.TranscriptBucket != "" {
		objectURI := fmt.Sprintf("%s/%s/%d-%d.txt", strings.TrimSuffix(inv.TranscriptBucket, "/"), repository, number, time.Now().UTC().Unix())
		if err := inv.Archiver.WriteObject(ctx, bytes.NewReader(transcript.Bytes()), objectURI); err != nil {
			logging.FromContext(ctx).ErrorContext(ctx, "failed to archive llm transcript", "repository", repository, "number", number, "error", err)
		}
	}

	if waitErr != nil {
		return fmt.Errorf("llm invocation failed for %s#%d: %w (stderr: %s)", repository, number, waitErr, lastLines(stderrBuf.String(), 10))
	}
	return nil
}

// streamTranscript reads newline-delimited JSON objects from r, rendering
// recognized shapes to stdout and into transcript. Unparseable lines are
// silently dropped.
func streamTranscript(ctx context.Context, r io.Reader, transcript *bytes.Buffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastMessageID string
	emit := func(s string) {
		fmt.Print(s) //nolint:forbidigo // this is the handler's own human-readable transcript surface
		transcript.WriteString(s)
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}

		switch probe.Type {
		case "system":
			var sys systemInitLine
			if err := json.Unmarshal(line, &sys); err != nil || sys.Subtype != "init" {
				continue
			}
			emit(formatSystemInit(sys))
		case "assistant":
			var am assistantLine
			if err := json.Unmarshal(line, &am); err != nil {
				continue
			}
			if lastMessageID != "" && am.Message.ID != lastMessageID {
				emit("\n")
			}
			lastMessageID = am.Message.ID
			for _, block := range am.Message.Content {
				emit(renderContentBlock(block))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "error reading llm stdout stream", "error", err)
	}
}

func formatSystemInit(s systemInitLine) string {
	return fmt.Sprintf("=== %s (%s) ===\ntools: %s\nslash commands: %s\n\n",
		s.Model, s.PermissionMode, strings.Join(s.Tools, ", "), strings.Join(s.SlashCommands, ", "))
}

func renderContentBlock(b contentBlock) string {
	switch b.Type {
	case "text":
		return b.Text
	case "tool_use":
		return fmt.Sprintf("\n[Tool: %s]\n%s\n", b.Name, indentJSON(b.Input))
	default:
		return ""
	}
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "  ", "  "); err != nil {
		return "  " + string(raw)
	}
	return "  " + buf.String()
}

// lastLines returns the last n lines of s, used to keep the error wrapping
// a non-zero LLM exit readable instead of dumping a full stderr capture.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
