// SPDX-License-Identifier: ice License 1.0

package signer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/opencollective/requests-sub001/model"
)

// Local signs with an in-memory secp256k1 secret key. Signing is
// deterministic given the key and never touches the network.
type Local struct {
	secretKey string
	pubKey    string
}

func NewLocal(secretKey string) (*Local, error) {
	if prefix, decoded, err := nip19.Decode(secretKey); err == nil && prefix == "nsec" {
		secretKey = decoded.(string)
	}
	pubKey, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid secret key")
	}

	return &Local{secretKey: secretKey, pubKey: pubKey}, nil
}

// NewLocalGenerated creates a signer over a fresh random key, for the
// unauthenticated submission path.
func NewLocalGenerated() (*Local, error) {
	return NewLocal(nostr.GeneratePrivateKey())
}

func (s *Local) Sign(_ context.Context, ev *model.Event) error {
	return errors.Wrapf(ev.Event.Sign(s.secretKey), "failed to sign event %+v", ev)
}

func (s *Local) PublicKey(context.Context) (string, error) {
	return s.pubKey, nil
}

func (s *Local) State() State {
	return StateConnected
}

// SecretKey exposes the hex key for persistence.
func (s *Local) SecretKey() string {
	return s.secretKey
}
