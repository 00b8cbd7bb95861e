// SPDX-License-Identifier: ice License 1.0

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/opencollective/requests-sub001/model"
)

type (
	ItemStatus string

	// Item is a locally tracked, not-yet-confirmed state-changing
	// operation awaiting signing and publication. Only the drain loop
	// mutates it after creation.
	Item struct {
		ID        string
		Event     *model.Event
		Timestamp time.Time
		Status    ItemStatus
		Error     string
	}

	// ProcessFunc signs and publishes one queued event. It is supplied
	// by the wiring layer so the queue stays ignorant of which signing
	// backend is active at drain time.
	ProcessFunc func(ctx context.Context, ev *model.Event) error

	// Queue buffers operations submitted before or during
	// authentication and drains them once a signing backend becomes
	// available. Items are processed in insertion order, exactly one
	// attempt each: a failure is retained for inspection, never
	// retried automatically, and never halts the items behind it.
	Queue struct {
		process ProcessFunc

		mx        sync.Mutex
		draining  bool
		live      []*Item
		processed []*Item
	}
)

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

var ErrUnknownItem = errors.New("unknown queue item")

func New(process ProcessFunc) *Queue {
	return &Queue{process: process}
}

// Enqueue accepts an unsigned event unconditionally: no signer needs to
// be ready, the call never blocks or fails.
func (q *Queue) Enqueue(ev *model.Event) string {
	item := &Item{
		ID:        uuid.NewString(),
		Event:     ev,
		Timestamp: time.Now(),
		Status:    StatusPending,
	}
	q.mx.Lock()
	q.live = append(q.live, item)
	q.mx.Unlock()

	return item.ID
}

// Drain processes every item pending at the time of the call, FIFO. A
// concurrent call while already draining is a no-op. Once started, each
// item runs to completion: success moves it to the processed list,
// failure keeps it in place with the captured error.
func (q *Queue) Drain(ctx context.Context) {
	q.mx.Lock()
	if q.draining {
		q.mx.Unlock()

		return
	}
	q.draining = true
	var batch []*Item
	for _, item := range q.live {
		if item.Status == StatusPending {
			batch = append(batch, item)
		}
	}
	q.mx.Unlock()
	defer func() { // The reset has to survive a panicking ProcessFunc.
		q.mx.Lock()
		q.draining = false
		q.mx.Unlock()
	}()

	for _, item := range batch {
		q.setStatus(item, StatusProcessing, "")
		if err := q.process(ctx, item.Event); err != nil {
			q.setStatus(item, StatusFailed, err.Error())

			continue
		}
		q.setStatus(item, StatusCompleted, "")
		q.retire(item)
	}
}

func (q *Queue) setStatus(item *Item, status ItemStatus, errMessage string) {
	q.mx.Lock()
	item.Status = status
	item.Error = errMessage
	q.mx.Unlock()
}

func (q *Queue) retire(completed *Item) {
	q.mx.Lock()
	for ix, item := range q.live {
		if item == completed {
			q.live = append(q.live[:ix], q.live[ix+1:]...)

			break
		}
	}
	q.processed = append(q.processed, completed)
	q.mx.Unlock()
}

// Requeue flips a failed item back to pending for another single
// attempt. Retry stays a caller decision because a published event
// cannot be un-published.
func (q *Queue) Requeue(id string) error {
	q.mx.Lock()
	defer q.mx.Unlock()
	for _, item := range q.live {
		if item.ID == id {
			if item.Status != StatusFailed {
				return errors.Wrapf(ErrUnknownItem, "item %v is %v, not failed", id, item.Status)
			}
			item.Status = StatusPending
			item.Error = ""
			item.Timestamp = time.Now()

			return nil
		}
	}

	return errors.Wrapf(ErrUnknownItem, "item %v not found", id)
}

// Clear removes pending items only; processing, completed and failed
// ones stay observable.
func (q *Queue) Clear() {
	q.mx.Lock()
	defer q.mx.Unlock()
	kept := q.live[:0]
	for _, item := range q.live {
		if item.Status != StatusPending {
			kept = append(kept, item)
		}
	}
	q.live = kept
}

// Items snapshots the live queue (pending + processing + failed).
func (q *Queue) Items() []Item {
	q.mx.Lock()
	defer q.mx.Unlock()

	return snapshot(q.live)
}

// Processed snapshots the completed list.
func (q *Queue) Processed() []Item {
	q.mx.Lock()
	defer q.mx.Unlock()

	return snapshot(q.processed)
}

func (q *Queue) PendingCount() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	count := 0
	for _, item := range q.live {
		if item.Status == StatusPending {
			count++
		}
	}

	return count
}

func snapshot(items []*Item) []Item {
	view := make([]Item, 0, len(items))
	for _, item := range items {
		view = append(view, *item)
	}

	return view
}
