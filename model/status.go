// SPDX-License-Identifier: ice License 1.0

package model

import (
	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

// StatusEvent is the typed view of a kind 9078 status annotation: an
// append-only moderator note changing a request's effective status.
type StatusEvent struct {
	ID        string
	RequestID string
	Label     Status
	Moderator string
	Ref       CommunityRef
	CreatedAt Timestamp
}

// BuildStatus assembles the unsigned status annotation. The label
// vocabulary is open-ended; anything non-empty is accepted.
func BuildStatus(requestID string, ref CommunityRef, moderatorPubKey string, label Status) (*Event, error) {
	if requestID == "" {
		return nil, errors.Wrapf(ErrWrongEventParams, "status requires a request id")
	}
	if label == "" {
		return nil, errors.Wrapf(ErrWrongEventParams, "status requires a label")
	}
	tags := Tags{
		{"e", requestID},
		(&ReferenceTag{Ref: ref}).Raw(),
		(&ReferenceTag{Ref: ref, Scoped: true}).Raw(),
	}

	return &Event{Event: nostr.Event{
		PubKey:    moderatorPubKey,
		CreatedAt: nostr.Now(),
		Kind:      KindRequestStatus,
		Content:   string(label),
		Tags:      tags,
	}}, nil
}

func ParseStatus(ev *Event) (*StatusEvent, error) {
	if ev == nil || ev.Kind != KindRequestStatus || ev.Content == "" {
		return nil, errors.Wrapf(ErrWrongEventParams, "not a status annotation: %+v", ev)
	}
	requestID := ev.GetTag("e")
	if requestID == nil || requestID.Value() == "" {
		return nil, errors.Wrapf(ErrWrongEventParams, "status %v references no request", ev.GetID())
	}
	status := &StatusEvent{
		ID:        ev.GetID(),
		RequestID: requestID.Value(),
		Label:     Status(ev.Content),
		Moderator: ev.PubKey,
		CreatedAt: ev.CreatedAt,
	}
	if ref, err := EventCommunityRef(ev); err == nil {
		status.Ref = *ref
	}

	return status, nil
}
