// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/opencollective/requests-sub001/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQuerySyncAllEndpointsDown(t *testing.T) {
	t.Parallel()

	pool := New(100 * time.Millisecond)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := pool.QuerySync(ctx, []string{"ws://127.0.0.1:1", "ws://127.0.0.1:2"}, model.CommunityDefinitionFilter(nil, 10))
	require.ErrorIs(t, err, ErrNoRelays)
	require.Empty(t, events)
}

func TestQuerySyncNoEndpoints(t *testing.T) {
	t.Parallel()

	pool := New(100 * time.Millisecond)
	defer pool.Close()

	events, err := pool.QuerySync(context.Background(), nil, model.CommunityDefinitionFilter(nil, 10))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSubscribeAllEndpointsDown(t *testing.T) {
	t.Parallel()

	pool := New(100 * time.Millisecond)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop, err := pool.Subscribe(ctx, []string{"ws://127.0.0.1:1"}, model.RequestFilter(model.CommunityRef{PubKey: "pk", Identifier: "id"}, 10), func(*model.Event) {}, nil)
	require.ErrorIs(t, err, ErrNoRelays)
	require.Nil(t, stop)
}

func TestPublishAllEndpointsDown(t *testing.T) {
	t.Parallel()

	pool := New(100 * time.Millisecond)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := model.BuildStatus("reqid", model.CommunityRef{PubKey: "pk", Identifier: "id"}, "mod", model.StatusAccepted)
	require.NoError(t, err)

	results, pErr := pool.Publish(ctx, []string{"ws://127.0.0.1:1", "ws://127.0.0.1:2"}, ev)
	require.ErrorIs(t, pErr, ErrPublishRejected)
	require.Len(t, results, 2)
	for _, result := range results {
		require.Error(t, result.Err)
		require.NotEmpty(t, result.URL)
	}
}
