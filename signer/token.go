// SPDX-License-Identifier: ice License 1.0

package signer

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// Token is a parsed remote-signer connection token:
// bunker://<remote-signer-pubkey>?relay=wss://...&relay=...&secret=...
type Token struct {
	RemotePubKey string
	Relays       []string
	Secret       string
}

var ErrWrongToken = errors.New("malformed connection token")

func ParseToken(raw string) (*Token, error) {
	uri, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrWrongToken, "token %q is not a uri: %v", raw, err)
	}
	if uri.Scheme != "bunker" {
		return nil, errors.Wrapf(ErrWrongToken, "token %q scheme is not bunker", raw)
	}
	pubKey := uri.Host
	if pubKey == "" {
		pubKey = strings.TrimPrefix(uri.Opaque, "//")
	}
	if pubKey == "" {
		return nil, errors.Wrapf(ErrWrongToken, "token %q carries no remote signer pubkey", raw)
	}
	query := uri.Query()
	token := &Token{
		RemotePubKey: pubKey,
		Relays:       query["relay"],
		Secret:       query.Get("secret"),
	}
	if len(token.Relays) == 0 {
		return nil, errors.Wrapf(ErrWrongToken, "token %q carries no relays", raw)
	}

	return token, nil
}

func (t *Token) String() string {
	var sb strings.Builder
	sb.WriteString("bunker://")
	sb.WriteString(t.RemotePubKey)
	sep := "?"
	for _, relay := range t.Relays {
		sb.WriteString(sep)
		sb.WriteString("relay=")
		sb.WriteString(url.QueryEscape(relay))
		sep = "&"
	}
	if t.Secret != "" {
		sb.WriteString(sep)
		sb.WriteString("secret=")
		sb.WriteString(url.QueryEscape(t.Secret))
	}

	return sb.String()
}

// AppendSecret applies the pairing convention for out-of-band secrets:
// the extra value replaces an empty secret and the initiating email is
// appended after a + delimiter. The convention is provisional, so it
// lives in this one method only.
func (t *Token) AppendSecret(extra, email string) {
	if extra != "" {
		t.Secret = extra
	}
	if email != "" {
		t.Secret += "+" + email
	}
}
