// SPDX-License-Identifier: ice License 1.0

package signer

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/opencollective/requests-sub001/model"
)

type (
	// Signer turns an unsigned event into a verified, signed one. The
	// two implementations are a locally held secret key and a NIP-46
	// remote session; callers depend only on this interface.
	Signer interface {
		Sign(ctx context.Context, ev *model.Event) error
		PublicKey(ctx context.Context) (string, error)
		State() State
	}

	State string
)

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

var ErrUnavailable = errors.New("no signer available")

// Pick applies the selection policy: a local key wins, then a connected
// remote session, otherwise signing is unavailable and state-changing
// operations must queue instead of failing outright.
func Pick(local *Local, remote *Remote) (Signer, error) {
	if local != nil {
		return local, nil
	}
	if remote != nil && remote.State() == StateConnected {
		return remote, nil
	}

	return nil, ErrUnavailable
}
