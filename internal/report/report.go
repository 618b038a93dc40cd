// Package report accumulates the end-of-run reconciliation report.
// Recoverable problems are recorded here instead of being raised, so every
// skipped attachment or link shows up in the final output.
package report

import (
	"sync"
	"time"
)

// Warning categories.
const (
	CategoryAttachment   = "attachment"
	CategoryRelationship = "relationship"
	CategoryComment      = "comment"
	CategoryCleanup      = "cleanup"
	CategoryMilestone    = "milestone"
)

// Count is a total/open/closed breakdown.
type Count struct {
	Total  int `json:"total"`
	Open   int `json:"open"`
	Closed int `json:"closed"`
}

// Collection compares one numbered collection on both sides.
type Collection struct {
	Source       Count `json:"source"`
	Target       Count `json:"target"`
	Placeholders int   `json:"placeholders"`
}

// Matches reports whether source and target agree.
func (c Collection) Matches() bool {
	return c.Source == c.Target
}

// Labels summarises label mapping.
type Labels struct {
	Source   int `json:"source"`
	Existing int `json:"existing"`
	Reused   int `json:"reused"`
	Created  int `json:"created"`
}

// Attachments summarises relocated files.
type Attachments struct {
	Uploaded int   `json:"uploaded"`
	Failed   int   `json:"failed"`
	Bytes    int64 `json:"bytes"`
}

// Relationships summarises native link creation.
type Relationships struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"`
}

// Warning is a recoverable problem.
type Warning struct {
	Category string `json:"category"`
	Where    string `json:"where,omitempty"`
	Message  string `json:"message"`
}

// Report is the run summary. Methods are safe for concurrent use.
type Report struct {
	mu sync.Mutex

	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`

	Issues        Collection    `json:"issues"`
	Milestones    Collection    `json:"milestones"`
	Labels        Labels        `json:"labels"`
	Attachments   Attachments   `json:"attachments"`
	Relationships Relationships `json:"relationships"`

	SkippedEdges []string  `json:"skipped_edges"`
	Warnings     []Warning `json:"warnings"`
	Mismatches   []string  `json:"mismatches,omitempty"`
}

// New starts a report for one run.
func New(runID, source, target string) *Report {
	return &Report{
		RunID:     runID,
		Source:    source,
		Target:    target,
		StartedAt: time.Now().UTC(),
	}
}

// Warn records a recoverable problem.
func (r *Report) Warn(category, where, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, Warning{Category: category, Where: where, Message: message})
}

// SkipEdge records a relationship that was not created natively.
func (r *Report) SkipEdge(description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SkippedEdges = append(r.SkippedEdges, description)
	r.Relationships.Skipped++
}

// Mismatch records a reconciliation difference.
func (r *Report) Mismatch(description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Mismatches = append(r.Mismatches, description)
}

// Update runs fn with the report locked.
func (r *Report) Update(fn func(r *Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// Finish stamps the outcome. A run succeeds only when err is nil and
// reconciliation found no mismatches.
func (r *Report) Finish(state string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
	r.State = state
	if err != nil {
		r.Error = err.Error()
	}
	r.Success = err == nil && len(r.Mismatches) == 0
}

// Snapshot returns a copy that can be read without locking.
func (r *Report) Snapshot() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := &Report{
		RunID:         r.RunID,
		Source:        r.Source,
		Target:        r.Target,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Success:       r.Success,
		State:         r.State,
		Error:         r.Error,
		Issues:        r.Issues,
		Milestones:    r.Milestones,
		Labels:        r.Labels,
		Attachments:   r.Attachments,
		Relationships: r.Relationships,
		SkippedEdges:  append([]string(nil), r.SkippedEdges...),
		Warnings:      append([]Warning(nil), r.Warnings...),
		Mismatches:    append([]string(nil), r.Mismatches...),
	}
	return cp
}
