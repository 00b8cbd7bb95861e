// SPDX-License-Identifier: ice License 1.0

package session

import (
	"context"
	"log"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/opencollective/requests-sub001/model"
	"github.com/opencollective/requests-sub001/relay"
	"github.com/opencollective/requests-sub001/signer"
)

type (
	State string

	// Session tracks which signing backend (if any) is active and owns
	// the persisted credentials. Authenticated means a local key is
	// loaded or the remote session is connected; configured means
	// credentials exist but the remote session has not (re)connected
	// yet, which lets callers show "resuming" instead of "logged out".
	Session struct {
		store *Store
		pool  *relay.Pool

		mx     sync.Mutex
		local  *signer.Local
		remote *signer.Remote

		// onAuthenticated fires on every transition into
		// StateAuthenticated (drives queue draining).
		onAuthenticated func()
	}
)

const (
	StateUnauthenticated State = "unauthenticated"
	StateConfigured      State = "configured"
	StateAuthenticated   State = "authenticated"
)

func New(store *Store, pool *relay.Pool, onAuthenticated func()) *Session {
	return &Session{store: store, pool: pool, onAuthenticated: onAuthenticated}
}

func (s *Session) State() State {
	s.mx.Lock()
	local, remote := s.local, s.remote
	s.mx.Unlock()
	if local != nil || (remote != nil && remote.State() == signer.StateConnected) {
		return StateAuthenticated
	}
	if remote != nil {
		return StateConfigured
	}

	return StateUnauthenticated
}

// Signer applies the selection policy over the configured backends.
func (s *Session) Signer() (signer.Signer, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	return signer.Pick(s.local, s.remote)
}

func (s *Session) notifyAuthenticated() {
	if s.onAuthenticated != nil && s.State() == StateAuthenticated {
		s.onAuthenticated()
	}
}

// LoginLocal installs and persists a local secret key (hex or nsec).
func (s *Session) LoginLocal(ctx context.Context, secretKey string) error {
	local, err := signer.NewLocal(secretKey)
	if err != nil {
		return err
	}
	if err = s.store.Save(ctx, StoreKeyLocalSecretKey, local.SecretKey()); err != nil {
		return err
	}
	s.mx.Lock()
	s.local = local
	s.mx.Unlock()
	s.notifyAuthenticated()

	return nil
}

// LoginRemote parses a bunker connection token, runs the NIP-46
// handshake and persists the session credentials on success.
func (s *Session) LoginRemote(ctx context.Context, rawToken string) error {
	token, err := signer.ParseToken(rawToken)
	if err != nil {
		return err
	}
	remote, err := signer.NewRemote(s.pool, token, "")
	if err != nil {
		return err
	}
	s.mx.Lock()
	s.remote = remote
	s.mx.Unlock()
	if err = remote.Connect(ctx); err != nil {
		return err
	}
	if err = s.store.Save(ctx, StoreKeyRemoteToken, token.String()); err != nil {
		return err
	}
	if err = s.store.Save(ctx, StoreKeyRemoteClientSecretKey, remote.ClientSecretKey()); err != nil {
		return err
	}
	if err = s.store.Save(ctx, StoreKeyRemoteSignerPubKey, token.RemotePubKey); err != nil {
		return err
	}
	s.notifyAuthenticated()

	return nil
}

// Resume restores a previous session from the credential store: a
// local key wins; otherwise a stored connection token puts the session
// into configured and an async reconnect is attempted.
func (s *Session) Resume(ctx context.Context) error {
	secretKey, err := s.store.Load(ctx, StoreKeyLocalSecretKey)
	if err != nil {
		return err
	}
	if secretKey != "" {
		local, lErr := signer.NewLocal(secretKey)
		if lErr != nil {
			return errors.Wrap(lErr, "stored local secret key is corrupt")
		}
		s.mx.Lock()
		s.local = local
		s.mx.Unlock()
		s.notifyAuthenticated()

		return nil
	}
	rawToken, err := s.store.Load(ctx, StoreKeyRemoteToken)
	if err != nil || rawToken == "" {
		return err
	}
	clientSecretKey, err := s.store.Load(ctx, StoreKeyRemoteClientSecretKey)
	if err != nil {
		return err
	}
	token, err := signer.ParseToken(rawToken)
	if err != nil {
		return errors.Wrap(err, "stored connection token is corrupt")
	}
	remote, err := signer.NewRemote(s.pool, token, clientSecretKey)
	if err != nil {
		return err
	}
	s.mx.Lock()
	s.remote = remote
	s.mx.Unlock()
	go func() {
		if cErr := remote.Connect(ctx); cErr != nil {
			log.Printf("remote session resume failed: %v", cErr)

			return
		}
		s.notifyAuthenticated()
	}()

	return nil
}

// Logout clears both backends' credentials and cancels any in-flight
// remote session.
func (s *Session) Logout(ctx context.Context) error {
	s.mx.Lock()
	remote := s.remote
	s.local, s.remote = nil, nil
	s.mx.Unlock()
	if remote != nil {
		remote.Disconnect()
	}

	return s.store.Clear(ctx)
}

// PublicKey resolves the active backend's user pubkey.
func (s *Session) PublicKey(ctx context.Context) (string, error) {
	active, err := s.Signer()
	if err != nil {
		return "", err
	}

	return active.PublicKey(ctx)
}

// Sign signs with the active backend, validating first.
func (s *Session) Sign(ctx context.Context, ev *model.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	active, err := s.Signer()
	if err != nil {
		return err
	}

	return active.Sign(ctx, ev)
}
