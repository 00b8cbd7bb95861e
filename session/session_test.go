// SPDX-License-Identifier: ice License 1.0

package session

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/opencollective/requests-sub001/model"
	"github.com/opencollective/requests-sub001/relay"
	"github.com/opencollective/requests-sub001/signer"
)

func helperStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	return store
}

func TestStore(t *testing.T) {
	t.Parallel()

	store := helperStore(t)
	ctx := context.Background()

	t.Run("MissingKeyIsEmpty", func(t *testing.T) {
		value, err := store.Load(ctx, StoreKeyLocalSecretKey)
		require.NoError(t, err)
		require.Empty(t, value)
	})
	t.Run("SaveLoad", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, StoreKeyLocalSecretKey, "aa11"))
		value, err := store.Load(ctx, StoreKeyLocalSecretKey)
		require.NoError(t, err)
		require.Equal(t, "aa11", value)
	})
	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, StoreKeyLocalSecretKey, "bb22"))
		value, err := store.Load(ctx, StoreKeyLocalSecretKey)
		require.NoError(t, err)
		require.Equal(t, "bb22", value)
	})
	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, StoreKeyRemoteToken, "bunker://x?relay=y"))
		require.NoError(t, store.Clear(ctx))
		for _, key := range []string{StoreKeyLocalSecretKey, StoreKeyRemoteToken} {
			value, err := store.Load(ctx, key)
			require.NoError(t, err)
			require.Empty(t, value)
		}
	})
}

func TestSessionLocalLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	authenticated := 0
	sess := New(helperStore(t), relay.New(100*time.Millisecond), func() { authenticated++ })
	require.Equal(t, StateUnauthenticated, sess.State())

	_, err := sess.Signer()
	require.ErrorIs(t, err, signer.ErrUnavailable)

	require.NoError(t, sess.LoginLocal(ctx, nostr.GeneratePrivateKey()))
	require.Equal(t, StateAuthenticated, sess.State())
	require.Equal(t, 1, authenticated)

	ev, err := model.BuildStatus("reqid", model.CommunityRef{PubKey: "pk", Identifier: "id"}, "", model.StatusAccepted)
	require.NoError(t, err)
	require.NoError(t, sess.Sign(ctx, ev))
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sess.Logout(ctx))
	require.Equal(t, StateUnauthenticated, sess.State())
}

func TestSessionResumeLocal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := helperStore(t)
	secretKey := nostr.GeneratePrivateKey()

	first := New(store, nil, nil)
	require.NoError(t, first.LoginLocal(ctx, secretKey))

	resumed := New(store, nil, nil)
	require.NoError(t, resumed.Resume(ctx))
	require.Equal(t, StateAuthenticated, resumed.State())

	pubKey, err := resumed.PublicKey(ctx)
	require.NoError(t, err)
	expected, err := nostr.GetPublicKey(secretKey)
	require.NoError(t, err)
	require.Equal(t, expected, pubKey)
}

func TestSessionResumeRemoteIsConfigured(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store := helperStore(t)
	counterpart, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	token := &signer.Token{RemotePubKey: counterpart, Relays: []string{"ws://127.0.0.1:1"}, Secret: "s"}
	require.NoError(t, store.Save(ctx, StoreKeyRemoteToken, token.String()))
	require.NoError(t, store.Save(ctx, StoreKeyRemoteClientSecretKey, nostr.GeneratePrivateKey()))

	pool := relay.New(100 * time.Millisecond)
	defer pool.Close()
	sess := New(store, pool, nil)
	require.NoError(t, sess.Resume(ctx))

	// The relay is unreachable, so the async reconnect can't complete:
	// the session stays configured, never authenticated.
	require.Equal(t, StateConfigured, sess.State())
	require.Never(t, func() bool { return sess.State() == StateAuthenticated }, 500*time.Millisecond, 50*time.Millisecond)

	_, err = sess.Signer()
	require.ErrorIs(t, err, signer.ErrUnavailable)
}

func TestSessionResumeNothingStored(t *testing.T) {
	t.Parallel()

	sess := New(helperStore(t), nil, nil)
	require.NoError(t, sess.Resume(context.Background()))
	require.Equal(t, StateUnauthenticated, sess.State())
}
