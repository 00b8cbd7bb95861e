// SPDX-License-Identifier: ice License 1.0

package signer

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/opencollective/requests-sub001/model"
	"github.com/opencollective/requests-sub001/relay"
)

type (
	// Remote delegates signing to a NIP-46 counterpart reached over the
	// relay transport. Requests are nip04-encrypted kind 24133 events;
	// responses are correlated by request id. A signing round trip may
	// take seconds and imposes no timeout of its own: the caller's ctx
	// governs how long to wait.
	Remote struct {
		pool            *relay.Pool
		token           *Token
		clientSecretKey string
		clientPubKey    string
		sharedSecret    []byte

		pending *xsync.MapOf[string, chan *rpcResponse]

		mx         sync.Mutex
		state      State
		userPubKey string
		stopSub    func()
	}

	rpcRequest struct {
		ID     string   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}
	rpcResponse struct {
		ID     string `json:"id"`
		Result string `json:"result"`
		Error  string `json:"error"`
	}
)

var (
	ErrNotConnected = errors.New("remote signer session is not connected")
	ErrSignRejected = errors.New("remote signer rejected the request")
	ErrBadSignature = errors.New("remote signer returned an invalid signature")
)

const rpcResultAuthURL = "auth_url"

// NewRemote prepares a session against the counterpart named by the
// token. clientSecretKey is the session-local key; pass "" to generate
// a fresh one (persist it to resume the session later).
func NewRemote(pool *relay.Pool, token *Token, clientSecretKey string) (*Remote, error) {
	if clientSecretKey == "" {
		clientSecretKey = nostr.GeneratePrivateKey()
	}
	clientPubKey, err := nostr.GetPublicKey(clientSecretKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid session secret key")
	}
	sharedSecret, err := nip04.ComputeSharedSecret(token.RemotePubKey, clientSecretKey)
	if err != nil {
		return nil, errors.Wrapf(err, "can't compute shared secret with %v", token.RemotePubKey)
	}

	return &Remote{
		pool:            pool,
		token:           token,
		clientSecretKey: clientSecretKey,
		clientPubKey:    clientPubKey,
		sharedSecret:    sharedSecret,
		pending:         xsync.NewMapOf[string, chan *rpcResponse](),
		state:           StateDisconnected,
	}, nil
}

func (r *Remote) ClientSecretKey() string { return r.clientSecretKey }

func (r *Remote) Token() *Token { return r.token }

func (r *Remote) State() State {
	r.mx.Lock()
	defer r.mx.Unlock()

	return r.state
}

func (r *Remote) setState(state State) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.state = state
}

// Connect runs the pairing handshake: subscribe for responses addressed
// to the session key, then issue a connect request carrying the token
// secret and wait for the counterpart's ack. ctx bounds the handshake
// only; the response subscription outlives it and runs until Disconnect,
// so a session stays usable after the ctx that established it expires.
func (r *Remote) Connect(ctx context.Context) error {
	r.setState(StateConnecting)
	responseFilter := model.Filter{
		Kinds: []int{nostr.KindNostrConnect},
		Tags:  model.TagMap{"p": {r.clientPubKey}},
	}
	subCtx, subCancel := context.WithCancel(context.Background())
	stop, err := r.pool.Subscribe(subCtx, r.token.Relays, responseFilter, r.handleIncoming, nil)
	if err != nil {
		subCancel()
		r.setState(StateError)

		return errors.Wrap(err, "can't subscribe for remote signer responses")
	}
	r.mx.Lock()
	r.stopSub = func() {
		subCancel()
		stop()
	}
	r.mx.Unlock()
	if _, err = r.rpc(ctx, "connect", []string{r.token.RemotePubKey, r.token.Secret}); err != nil {
		r.Disconnect()
		r.setState(StateError)

		return errors.Wrap(err, "remote signer handshake failed")
	}
	r.setState(StateConnected)

	return nil
}

// Disconnect cancels the response subscription and drops the session
// back to disconnected. Credentials are untouched.
func (r *Remote) Disconnect() {
	r.mx.Lock()
	stop := r.stopSub
	r.stopSub = nil
	r.state = StateDisconnected
	r.mx.Unlock()
	if stop != nil {
		stop()
	}
}

func (r *Remote) Sign(ctx context.Context, ev *model.Event) error {
	if r.State() != StateConnected {
		return ErrNotConnected
	}
	if ev.PubKey == "" {
		pubKey, err := r.PublicKey(ctx)
		if err != nil {
			return err
		}
		ev.PubKey = pubKey
	}
	unsigned, err := json.Marshal(ev.Event)
	if err != nil {
		return errors.Wrapf(err, "can't serialize event for signing: %+v", ev)
	}
	result, err := r.rpc(ctx, "sign_event", []string{string(unsigned)})
	if err != nil {
		return errors.Wrapf(err, "remote signing failed for event %+v", ev)
	}
	var signed nostr.Event
	if err = json.Unmarshal([]byte(result), &signed); err != nil {
		return errors.Wrapf(ErrSignRejected, "unparseable sign_event result %q: %v", result, err)
	}
	ev.Event = signed
	if ok, err := ev.CheckSignature(); err != nil || !ok {
		return errors.Wrapf(ErrBadSignature, "event %v: %v", ev.GetID(), err)
	}

	return nil
}

func (r *Remote) PublicKey(ctx context.Context) (string, error) {
	r.mx.Lock()
	cached := r.userPubKey
	r.mx.Unlock()
	if cached != "" {
		return cached, nil
	}
	if r.State() != StateConnected {
		return "", ErrNotConnected
	}
	pubKey, err := r.rpc(ctx, "get_public_key", nil)
	if err != nil {
		return "", errors.Wrap(err, "can't fetch remote signer user pubkey")
	}
	r.mx.Lock()
	r.userPubKey = pubKey
	r.mx.Unlock()

	return pubKey, nil
}

// rpc publishes one request and waits for the correlated response for
// as long as the ctx allows.
func (r *Remote) rpc(ctx context.Context, method string, params []string) (string, error) {
	id := uuid.NewString()
	responses := make(chan *rpcResponse, 1)
	r.pending.Store(id, responses)
	defer r.pending.Delete(id)

	payload, err := json.Marshal(&rpcRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return "", errors.Wrapf(err, "can't serialize %v request", method)
	}
	content, err := nip04.Encrypt(string(payload), r.sharedSecret)
	if err != nil {
		return "", errors.Wrapf(err, "can't encrypt %v request", method)
	}
	request := model.Event{Event: nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindNostrConnect,
		Tags:      model.Tags{{"p", r.token.RemotePubKey}},
		Content:   content,
	}}
	if err = request.Sign(r.clientSecretKey); err != nil {
		return "", errors.Wrapf(err, "can't sign %v request", method)
	}
	if _, err = r.pool.Publish(ctx, r.token.Relays, &request); err != nil {
		return "", errors.Wrapf(err, "can't publish %v request", method)
	}
	for {
		select {
		case <-ctx.Done():
			return "", errors.Wrapf(ctx.Err(), "gave up waiting for %v response", method)
		case response := <-responses:
			if response.Result == rpcResultAuthURL {
				// The counterpart wants out-of-band confirmation
				// first; the real response follows on the same id.
				log.Printf("remote signer requires authorization: %v", response.Error)

				continue
			}
			if response.Error != "" {
				return "", errors.Wrapf(ErrSignRejected, "%v: %v", method, response.Error)
			}

			return response.Result, nil
		}
	}
}

// handleIncoming decrypts a response event and routes it to the waiter
// registered under its id. Stray and duplicate responses are ignored,
// as are events from anyone but the session counterpart.
func (r *Remote) handleIncoming(ev *model.Event) {
	if ev.Kind != nostr.KindNostrConnect || ev.PubKey != r.token.RemotePubKey {
		return
	}
	plaintext, err := nip04.Decrypt(ev.Content, r.sharedSecret)
	if err != nil {
		log.Printf("can't decrypt remote signer response %v: %v", ev.GetID(), err)

		return
	}
	var response rpcResponse
	if err = json.Unmarshal([]byte(plaintext), &response); err != nil {
		log.Printf("can't parse remote signer response %v: %v", ev.GetID(), err)

		return
	}
	if waiter, ok := r.pending.Load(response.ID); ok {
		select {
		case waiter <- &response:
		default:
		}
	}
}
