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

// Package handler implements the Handler side of the pipeline: consuming
// published events from the durable stream, resolving a prompt template for
// each, and driving the LLM CLI against the event's item directory.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abcxyz/pkg/logging"

	"github.com/abcxyz/ghpipe/pkg/model"
	"github.com/abcxyz/ghpipe/pkg/monitor"
)

// legacyProcessSubject is accepted for backward compatibility and routed to
// the github.issue.updated handling path.
const legacyProcessSubject = "github.issue.process"

// Action reports how the caller should resolve a message after Handle
// returns.
type Action int

const (
	ActionAck Action = iota
	ActionNak
	ActionTerm
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionNak:
		return "nak"
	case ActionTerm:
		return "term"
	default:
		return "unknown"
	}
}

// Dispatcher ties together the item store, template resolver, LLM invoker,
// and operator-facing filters/confirmation that together implement one
// event's handling.
type Dispatcher struct {
	Store     *monitor.Store
	Templates *TemplateResolver
	Invoker   *Invoker
	Confirmer Confirmer

	// RepositoryFilter and SkipUsers are optional regexes. A repository
	// miss or a skip-user match both result in an ack without processing.
	RepositoryFilter *regexp.Regexp
	SkipUsers        *regexp.Regexp

	// onAbort is invoked when the confirmer reports that the operator
	// requested shutdown (Ctrl-C). Register it with OnAbort.
	onAbort func()
}

// OnAbort registers a callback invoked when the interactive confirmer
// reports an abort request.
func (d *Dispatcher) OnAbort(fn func()) {
	d.onAbort = fn
}

// envelope is the subset of a published event's JSON fields the dispatcher
// needs; the other fields are not decoded and are not passed to the LLM.
type envelope struct {
	Repository string `json:"repository"`
	Number     string `json:"number"`
	Author     string `json:"author"`
}

// Handle decodes and processes one message published on subject, returning
// the Action the caller should apply (ack/nak/term).
func (d *Dispatcher) Handle(ctx context.Context, subject string, data []byte) Action {
	logger := logging.FromContext(ctx)

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.ErrorContext(ctx, "failed to decode event envelope", "subject", subject, "error", err)
		return ActionNak
	}
	if env.Repository == "" || env.Number == "" {
		logger.ErrorContext(ctx, "event envelope missing required field", "subject", subject)
		return ActionTerm
	}
	number, err := strconv.Atoi(env.Number)
	if err != nil {
		logger.ErrorContext(ctx, "event envelope has non-numeric number", "subject", subject, "number", env.Number)
		return ActionTerm
	}

	if d.RepositoryFilter != nil && !d.RepositoryFilter.MatchString(env.Repository) {
		return ActionAck
	}
	if d.SkipUsers != nil && env.Author != "" && d.SkipUsers.MatchString(env.Author) {
		return ActionAck
	}

	effectiveSubject := subject
	if subject == legacyProcessSubject {
		effectiveSubject = model.Subject(model.KindIssue, model.ActionUpdated)
	}

	if d.Confirmer != nil {
		proceed, abort := d.Confirmer.Confirm(effectiveSubject, env.Repository, number)
		if abort {
			if d.onAbort != nil {
				d.onAbort()
			}
			return ActionNak
		}
		if !proceed {
			return ActionAck
		}
	}

	// Unknown subjects are acked, not terminated: term is reserved for
	// permanently malformed envelopes, and an ack drains the stream safely.
	if _, _, err := splitEventSubject(effectiveSubject); err != nil {
		logger.WarnContext(ctx, "unknown event subject, acking", "subject", effectiveSubject, "error", err)
		return ActionAck
	}

	// Suffix-matched against the full subject, not a single dot-segment:
	// "*.new" also matches the multi-segment github.<kind>.comment.new,
	// for which EnsureItemDir is a harmless no-op since the item directory
	// already exists from the item's own .new event.
	switch {
	case strings.HasSuffix(effectiveSubject, ".new"):
		if _, _, err := d.Store.EnsureItemDir(env.Repository, number); err != nil {
			logger.ErrorContext(ctx, "failed to create item directory", "repository", env.Repository, "number", number, "error", err)
			return ActionNak
		}
	case strings.HasSuffix(effectiveSubject, "."+model.ActionClosed):
		if removed, err := d.Store.RemoveActive(env.Repository, number); err != nil {
			logger.ErrorContext(ctx, "failed to remove active marker", "repository", env.Repository, "number", number, "error", err)
			return ActionNak
		} else if !removed {
			logger.WarnContext(ctx, "no active marker to remove on closed event", "repository", env.Repository, "number", number)
		}
	}

	dir, err := d.Store.ItemDir(env.Repository, number)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve item directory", "repository", env.Repository, "number", number, "error", err)
		return ActionTerm
	}

	templatePath, ok, err := d.Templates.Resolve(env.Repository, effectiveSubject)
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve template", "repository", env.Repository, "number", number, "event", effectiveSubject, "error", err)
		return ActionNak
	}
	if !ok {
		return ActionAck
	}

	if d.Invoker != nil {
		if err := d.Invoker.Invoke(ctx, templatePath, env.Repository, number, dir); err != nil {
			logger.ErrorContext(ctx, "llm invocation failed", "repository", env.Repository, "number", number, "error", err)
			return ActionNak
		}
	}

	return ActionAck
}

// splitEventSubject splits a subject of the form "github.<kind>.<action>"
// (action may itself contain a dot, e.g. "comment.new") into its kind and
// action components.
func splitEventSubject(subject string) (kind model.Kind, action string, err error) {
	parts := strings.SplitN(subject, ".", 3)
	if len(parts) != 3 || parts[0] != "github" {
		return "", "", fmt.Errorf("malformed subject %q", subject)
	}
	k := model.Kind(parts[1])
	if k != model.KindIssue && k != model.KindPR {
		return "", "", fmt.Errorf("unrecognized kind %q in subject %q", parts[1], subject)
	}
	return k, parts[2], nil
}
