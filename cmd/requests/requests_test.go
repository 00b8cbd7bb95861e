// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencollective/requests-sub001/model"
	"github.com/opencollective/requests-sub001/queue"
	"github.com/opencollective/requests-sub001/relay"
	"github.com/opencollective/requests-sub001/session"
	"github.com/opencollective/requests-sub001/signer"
)

func helperApp(t *testing.T, process queue.ProcessFunc) *app {
	t.Helper()

	store, err := session.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	pool := relay.New(100 * time.Millisecond)
	t.Cleanup(pool.Close)
	a := &app{conf: &config{Relays: []string{"ws://127.0.0.1:1"}, ConnectTimeout: 100 * time.Millisecond}, pool: pool}
	a.out = queue.New(process)
	a.sess = session.New(store, pool, func() { a.out.Drain(context.Background()) })

	return a
}

func helperRequestEvent(t *testing.T) *model.Event {
	t.Helper()

	ev, err := model.BuildCommunityRequest(&model.RequestForm{Title: "fix the door", Content: "hinge is broken"}, "communitypk", "main", "", 0)
	require.NoError(t, err)

	return ev
}

func TestSubmitWithoutSignerStaysPending(t *testing.T) {
	t.Parallel()

	attempts := 0
	a := helperApp(t, func(context.Context, *model.Event) error {
		attempts++

		return nil
	})

	a.submit(context.Background(), helperRequestEvent(t))

	require.Zero(t, attempts)
	items := a.out.Items()
	require.Len(t, items, 1)
	require.Equal(t, queue.StatusPending, items[0].Status)

	t.Run("DrainsOnLogin", func(t *testing.T) {
		local, err := signer.NewLocalGenerated()
		require.NoError(t, err)
		require.NoError(t, a.sess.LoginLocal(context.Background(), local.SecretKey()))

		require.Equal(t, 1, attempts)
		require.Empty(t, a.out.Items())
		require.Len(t, a.out.Processed(), 1)
	})
}

func TestSubmitWithSignerDrainsImmediately(t *testing.T) {
	t.Parallel()

	attempts := 0
	a := helperApp(t, func(context.Context, *model.Event) error {
		attempts++

		return nil
	})
	local, err := signer.NewLocalGenerated()
	require.NoError(t, err)
	require.NoError(t, a.sess.LoginLocal(context.Background(), local.SecretKey()))

	a.submit(context.Background(), helperRequestEvent(t))

	require.Equal(t, 1, attempts)
	require.Empty(t, a.out.Items())
	require.Len(t, a.out.Processed(), 1)
}
