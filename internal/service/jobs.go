// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/atelier/internal/job"
)

// Status is the lifecycle state of a tracked job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// DisplayedImage is one collected result streamed to subscribers while a
// job is still running. Index is 1-based in collection order.
type DisplayedImage struct {
	Index int
	Seed  int64
	Data  []byte
}

// JobView is an immutable snapshot of a tracked job.
type JobView struct {
	ID       string      `json:"id"`
	Author   string      `json:"author"`
	Template string      `json:"template"`
	Prompts  string      `json:"prompts"`
	Status   Status      `json:"status"`
	Result   *job.Result `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// trackedJob is the mutable record behind a job id. Subscribers receive
// every already-collected image on attach, then new ones as they arrive.
type trackedJob struct {
	id       string
	author   string
	template string
	prompts  string
	cancel   context.CancelFunc

	mu       sync.Mutex
	status   Status
	result   *job.Result
	err      error
	finished time.Time
	images   []DisplayedImage
	subs     map[int]chan DisplayedImage
	nextID   int
	done     chan struct{}
}

func newTrackedJob(author, template, prompts string, cancel context.CancelFunc) *trackedJob {
	return &trackedJob{
		id:       uuid.NewString(),
		author:   author,
		template: template,
		prompts:  prompts,
		cancel:   cancel,
		status:   StatusRunning,
		subs:     make(map[int]chan DisplayedImage),
		done:     make(chan struct{}),
	}
}

func (t *trackedJob) view() JobView {
	t.mu.Lock()
	defer t.mu.Unlock()
	view := JobView{
		ID:       t.id,
		Author:   t.author,
		Template: t.template,
		Prompts:  t.prompts,
		Status:   t.status,
		Result:   t.result,
	}
	if t.err != nil {
		view.Error = t.err.Error()
	}
	return view
}

// publish records an image and fans it out. Slow subscribers drop frames
// rather than stall the run.
func (t *trackedJob) publish(img DisplayedImage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.images = append(t.images, img)
	for _, sub := range t.subs {
		select {
		case sub <- img:
		default:
		}
	}
}

// subscribe attaches a stream of collected images. The returned cancel
// func must be called when the consumer is done.
func (t *trackedJob) subscribe() (<-chan DisplayedImage, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan DisplayedImage, 16)
	for _, img := range t.images {
		select {
		case ch <- img:
		default:
		}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
		t.releaseImagesLocked()
	}
}

func (t *trackedJob) finish(status Status, result *job.Result, err error) {
	t.mu.Lock()
	t.status = status
	t.result = result
	t.err = err
	t.finished = time.Now()
	t.mu.Unlock()
	close(t.done)
}

// releaseImagesLocked drops the replay buffer once the job is terminal
// and the last subscriber has detached. The raw image bytes are the
// dominant memory cost of a finished job; the bundle on disk remains the
// durable copy.
func (t *trackedJob) releaseImagesLocked() {
	if t.status != StatusRunning && len(t.subs) == 0 {
		t.images = nil
	}
}

// terminalSince reports whether the job reached a terminal state before
// the given cutoff.
func (t *trackedJob) terminalSince(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status != StatusRunning && t.finished.Before(cutoff)
}

// jobTable indexes tracked jobs by id.
type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]*trackedJob
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*trackedJob)}
}

func (jt *jobTable) add(t *trackedJob) {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	jt.jobs[t.id] = t
}

func (jt *jobTable) get(id string) (*trackedJob, bool) {
	jt.mu.RLock()
	defer jt.mu.RUnlock()
	t, ok := jt.jobs[id]
	return t, ok
}

func (jt *jobTable) all() []*trackedJob {
	jt.mu.RLock()
	defer jt.mu.RUnlock()
	out := make([]*trackedJob, 0, len(jt.jobs))
	for _, t := range jt.jobs {
		out = append(out, t)
	}
	return out
}

// prune evicts jobs that have been terminal for longer than ttl. Running
// jobs are never evicted.
func (jt *jobTable) prune(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	jt.mu.Lock()
	defer jt.mu.Unlock()
	for id, t := range jt.jobs {
		if t.terminalSince(cutoff) {
			delete(jt.jobs, id)
		}
	}
}
