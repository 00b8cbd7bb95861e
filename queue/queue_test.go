// SPDX-License-Identifier: ice License 1.0

package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/opencollective/requests-sub001/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func helperEvent(t *testing.T, content string) *model.Event {
	t.Helper()

	ev, err := model.BuildCommunityRequest(&model.RequestForm{Content: content}, "pk", "id", "", 1)
	require.NoError(t, err)

	return ev
}

func TestDrainFailureIsolation(t *testing.T) {
	t.Parallel()

	q := New(func(_ context.Context, ev *model.Event) error {
		if ev.Content == "two" {
			return errors.New("signing exploded")
		}

		return nil
	})
	first := q.Enqueue(helperEvent(t, "one"))
	second := q.Enqueue(helperEvent(t, "two"))
	third := q.Enqueue(helperEvent(t, "three"))

	q.Drain(context.Background())

	processed := q.Processed()
	require.Len(t, processed, 2)
	require.Equal(t, first, processed[0].ID)
	require.Equal(t, third, processed[1].ID)
	for _, item := range processed {
		require.Equal(t, StatusCompleted, item.Status)
		require.Empty(t, item.Error)
	}

	live := q.Items()
	require.Len(t, live, 1)
	require.Equal(t, second, live[0].ID)
	require.Equal(t, StatusFailed, live[0].Status)
	require.NotEmpty(t, live[0].Error)
}

func TestDrainFIFO(t *testing.T) {
	t.Parallel()

	var order []string
	q := New(func(_ context.Context, ev *model.Event) error {
		order = append(order, ev.Content)

		return nil
	})
	for _, content := range []string{"a", "b", "c"} {
		q.Enqueue(helperEvent(t, content))
	}
	q.Drain(context.Background())
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDrainReentrancyGuard(t *testing.T) {
	t.Parallel()

	var (
		attempts int
		release  = make(chan struct{})
		entered  = make(chan struct{})
	)
	q := New(func(context.Context, *model.Event) error {
		attempts++
		close(entered)
		<-release

		return nil
	})
	q.Enqueue(helperEvent(t, "slow"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Drain(context.Background())
	}()
	<-entered
	q.Drain(context.Background()) // no-op while the first drain runs
	close(release)
	wg.Wait()

	require.Equal(t, 1, attempts)
	require.Len(t, q.Processed(), 1)
}

func TestDrainRecoversAfterPanic(t *testing.T) {
	t.Parallel()

	calls := 0
	q := New(func(_ context.Context, ev *model.Event) error {
		calls++
		if ev.Content == "bomb" {
			panic("signer backend blew up")
		}

		return nil
	})
	q.Enqueue(helperEvent(t, "bomb"))

	require.Panics(t, func() { q.Drain(context.Background()) })

	id := q.Enqueue(helperEvent(t, "after"))
	q.Drain(context.Background())

	require.Equal(t, 2, calls)
	processed := q.Processed()
	require.Len(t, processed, 1)
	require.Equal(t, id, processed[0].ID)
}

func TestDrainNoAutomaticRetry(t *testing.T) {
	t.Parallel()

	q := New(func(context.Context, *model.Event) error { return errors.New("no signer") })
	id := q.Enqueue(helperEvent(t, "doomed"))

	q.Drain(context.Background())
	q.Drain(context.Background())

	live := q.Items()
	require.Len(t, live, 1)
	require.Equal(t, StatusFailed, live[0].Status)

	t.Run("ExplicitRequeue", func(t *testing.T) {
		require.NoError(t, q.Requeue(id))
		require.Equal(t, 1, q.PendingCount())
		q.Drain(context.Background())
		require.Equal(t, StatusFailed, q.Items()[0].Status)
	})
	t.Run("RequeueUnknown", func(t *testing.T) {
		require.ErrorIs(t, q.Requeue("nope"), ErrUnknownItem)
	})
	t.Run("RequeueNotFailed", func(t *testing.T) {
		ok := New(func(context.Context, *model.Event) error { return nil })
		id := ok.Enqueue(helperEvent(t, "fine"))
		ok.Drain(context.Background())
		require.ErrorIs(t, ok.Requeue(id), ErrUnknownItem)
	})
}

func TestClearKeepsNonPending(t *testing.T) {
	t.Parallel()

	calls := 0
	q := New(func(context.Context, *model.Event) error {
		calls++
		if calls > 1 {
			return errors.New("second fails")
		}

		return nil
	})
	completed := q.Enqueue(helperEvent(t, "completed"))
	q.Enqueue(helperEvent(t, "failed"))
	q.Drain(context.Background())
	pending := q.Enqueue(helperEvent(t, "pending"))
	require.Equal(t, 1, q.PendingCount())

	q.Clear()

	require.Zero(t, q.PendingCount())
	processed := q.Processed()
	require.Len(t, processed, 1)
	require.Equal(t, completed, processed[0].ID)
	for _, item := range q.Items() {
		require.NotEqual(t, pending, item.ID)
		require.Equal(t, StatusFailed, item.Status)
	}
	require.Len(t, q.Items(), 1)
}
