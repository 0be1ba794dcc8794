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

// Package model defines the tagged-variant data shapes shared by the
// Monitor and Handler: tracked issues/PRs, comments, and the JSON event
// envelopes published between the two services.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind distinguishes an issue from a pull request. Both are modeled as a
// single TrackedItem shape with a Kind discriminant rather than as separate
// types, since the pipeline treats them identically apart from a handful of
// PR-only fields.
type Kind string

const (
	KindIssue Kind = "issue"
	KindPR    Kind = "pr"
)

// ghostAuthor is substituted for a null GitHub author, matching the
// original source's handling of deleted/redacted accounts.
const ghostAuthor = "ghost"

// AssigneeCap and LabelCap bound the ordered sequences carried on a
// TrackedItem.
const (
	AssigneeCap = 10
	LabelCap    = 10
)

// TrackedItem represents an open issue or pull request in a tracked
// repository, identified by the pair (Repository, Number).
type TrackedItem struct {
	Repository string     `json:"repository"`
	Number     int        `json:"-"`
	Kind       Kind       `json:"kind"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	URL        string     `json:"url"`
	State      string     `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at"`
	Author     string     `json:"author"`
	Assignees  []string   `json:"assignees"`
	Labels     []string   `json:"labels"`

	// PR-only fields. Zero-valued for issues.
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	IsDraft        bool       `json:"is_draft,omitempty"`
	Mergeable      string     `json:"mergeable,omitempty"`
	ReviewDecision string     `json:"review_decision,omitempty"`
}

// NormalizeAuthor substitutes the ghost sentinel for a null author login.
func NormalizeAuthor(login string) string {
	if login == "" {
		return ghostAuthor
	}
	return login
}

// CapStrings truncates a sequence to n entries, preserving order.
func CapStrings(vals []string, n int) []string {
	if len(vals) <= n {
		return vals
	}
	out := make([]string, n)
	copy(out, vals[:n])
	return out
}

// Reaction is a single reaction left on a Comment.
type Reaction struct {
	Content string `json:"content"`
	User    string `json:"user"`
}

// Reactions summarizes the reactions on a Comment.
type Reactions struct {
	TotalCount int        `json:"total_count"`
	Items      []Reaction `json:"items"`
}

// Comment represents a top-level comment on an issue or pull request.
type Comment struct {
	ID                string     `json:"id"`
	DatabaseID        int64      `json:"database_id"`
	URL               string     `json:"url"`
	Author            string     `json:"author"`
	AuthorAssociation string     `json:"author_association"`
	Body              string     `json:"body"`
	BodyText          string     `json:"body_text"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	PublishedAt       time.Time  `json:"published_at"`
	LastEditedAt      *time.Time `json:"last_edited_at"`
	IsMinimized       bool       `json:"is_minimized"`
	MinimizedReason   string     `json:"minimized_reason,omitempty"`
	Reactions         Reactions  `json:"reactions"`
}

// Action names used in event subjects.
const (
	ActionNew        = "new"
	ActionUpdated    = "updated"
	ActionClosed     = "closed"
	ActionCommentNew = "comment.new"
)

// Subject computes the NATS subject for an event: github.<kind>.<action>.
func Subject(kind Kind, action string) string {
	return fmt.Sprintf("github.%s.%s", kind, action)
}

// BuildItemEvent builds the JSON envelope for an item-level event (new,
// updated, closed). The envelope inlines every TrackedItem field plus the
// top-level repository/number keys every consumer depends on.
func BuildItemEvent(item TrackedItem) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tracked item: %w", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to flatten tracked item: %w", err)
	}
	envelope["repository"] = item.Repository
	envelope["number"] = fmt.Sprintf("%d", item.Number)
	return envelope, nil
}

// BuildCommentEvent builds the JSON envelope for a github.<kind>.comment.new
// event. The legacy issue_number/pr_number key duplicates number for
// consumers written against the older event shape.
func BuildCommentEvent(repository string, number int, kind Kind, c Comment) (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal comment: %w", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to flatten comment: %w", err)
	}
	envelope["repository"] = repository
	numberStr := fmt.Sprintf("%d", number)
	envelope["number"] = numberStr
	switch kind {
	case KindIssue:
		envelope["issue_number"] = numberStr
	case KindPR:
		envelope["pr_number"] = numberStr
	}
	return envelope, nil
}
