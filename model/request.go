// SPDX-License-Identifier: ice License 1.0

package model

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type (
	// RequestForm is the user-supplied part of a community request.
	RequestForm struct {
		Title   string
		Content string
	}

	// Request is the typed view of a kind 1111 community request.
	Request struct {
		ID        string
		DTag      string
		Title     string
		Content   string
		Author    string
		Ref       CommunityRef
		CreatedAt Timestamp
	}

	// Reply is a kind 1111 event rooted at a request.
	Reply struct {
		ID        string
		RequestID string
		Content   string
		Author    string
		CreatedAt Timestamp
	}
)

// Sequence returns the numeric value of the request's d tag, or 0 for
// timestamp-fallback identifiers.
func (r *Request) Sequence() int64 {
	seq, err := strconv.ParseInt(r.DTag, 10, 64)
	if err != nil {
		return 0
	}

	return seq
}

// NextSequence computes the d tag for a new request within one
// community: max over the existing numeric sequences, plus one.
func NextSequence(existing []Request) int64 {
	var max int64
	for i := range existing {
		if seq := existing[i].Sequence(); seq > max {
			max = seq
		}
	}

	return max + 1
}

// BuildCommunityRequest assembles the unsigned request event. When
// seq > 0 the d tag is its decimal form; otherwise a millisecond
// timestamp fallback is used (unauthenticated submission path, where no
// sequence context exists). Both the lowercase and uppercase community
// reference tags are set to the same value on purpose: the subprotocol
// requires the indexed reference and the scope marker to coexist.
func BuildCommunityRequest(form *RequestForm, communityPubKey, communityID, authorPubKey string, seq int64) (*Event, error) {
	if form == nil || form.Content == "" {
		return nil, errors.Wrapf(ErrWrongEventParams, "community request requires content")
	}
	if communityPubKey == "" || communityID == "" {
		return nil, errors.Wrapf(ErrWrongReference, "community request requires a community key and identifier")
	}
	dTag := strconv.FormatInt(seq, 10)
	if seq <= 0 {
		dTag = "req-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	ref := CommunityRef{PubKey: communityPubKey, Identifier: communityID}
	kind := strconv.Itoa(KindCommunityDefinition)
	tags := Tags{
		{"d", dTag},
		(&ReferenceTag{Ref: ref}).Raw(),
		(&ReferenceTag{Ref: ref, Scoped: true}).Raw(),
		{"title", form.Title},
		{"t", TagTopicCommunityRequest},
		{"k", kind},
		{"K", kind},
	}

	return &Event{Event: nostr.Event{
		PubKey:    authorPubKey,
		CreatedAt: nostr.Now(),
		Kind:      KindCommunityRequest,
		Content:   form.Content,
		Tags:      tags,
	}}, nil
}

// IsValidCommunityRequest filters stray kind 1111 events picked up by
// broad subscriptions: replies and unrelated comments share the kind.
func IsValidCommunityRequest(ev *Event) bool {
	if ev == nil || ev.Kind != KindCommunityRequest || ev.Content == "" {
		return false
	}
	topic := ev.GetTag("t")

	return topic != nil && topic.Value() == TagTopicCommunityRequest
}

func ParseCommunityRequest(ev *Event) (*Request, error) {
	if !IsValidCommunityRequest(ev) {
		return nil, errors.Wrapf(ErrWrongEventParams, "not a community request: %+v", ev)
	}
	req := &Request{
		ID:        ev.GetID(),
		Content:   ev.Content,
		Author:    ev.PubKey,
		CreatedAt: ev.CreatedAt,
	}
	for _, typed := range ParseTags(ev.Tags) {
		switch tag := typed.(type) {
		case *NamedTag:
			switch tag.Name {
			case "d":
				req.DTag = tag.Value
			case "title":
				req.Title = tag.Value
			}
		case *ReferenceTag:
			req.Ref = tag.Ref
		}
	}
	if req.DTag == "" {
		return nil, errors.Wrapf(ErrMissingDTag, "community request %v", ev.GetID())
	}

	return req, nil
}

// BuildReply assembles an unsigned reply rooted at the given request.
func BuildReply(requestID string, ref CommunityRef, authorPubKey, content string) (*Event, error) {
	if requestID == "" || content == "" {
		return nil, errors.Wrapf(ErrWrongEventParams, "reply requires a request id and content")
	}
	tags := Tags{
		(&RootTag{EventID: requestID}).Raw(),
		(&ReferenceTag{Ref: ref}).Raw(),
		(&ReferenceTag{Ref: ref, Scoped: true}).Raw(),
		{"k", strconv.Itoa(KindCommunityRequest)},
	}

	return &Event{Event: nostr.Event{
		PubKey:    authorPubKey,
		CreatedAt: nostr.Now(),
		Kind:      KindCommunityRequest,
		Content:   content,
		Tags:      tags,
	}}, nil
}

func ParseReply(ev *Event) (*Reply, error) {
	if ev == nil || ev.Kind != KindCommunityRequest || ev.Content == "" {
		return nil, errors.Wrapf(ErrWrongEventParams, "not a reply: %+v", ev)
	}
	for _, typed := range ParseTags(ev.Tags) {
		if root, ok := typed.(*RootTag); ok {
			return &Reply{
				ID:        ev.GetID(),
				RequestID: root.EventID,
				Content:   ev.Content,
				Author:    ev.PubKey,
				CreatedAt: ev.CreatedAt,
			}, nil
		}
	}

	return nil, errors.Wrapf(ErrWrongEventParams, "reply %v carries no root reference", ev.GetID())
}

// BuildDeletion assembles a kind 5 deletion request for the given event
// ids, all of the same kind.
func BuildDeletion(eventIDs []string, kind Kind) (*Event, error) {
	if len(eventIDs) == 0 {
		return nil, errors.Wrapf(ErrWrongEventParams, "deletion requires at least one event id")
	}
	tags := make(Tags, 0, len(eventIDs)+1)
	for _, id := range eventIDs {
		tags = append(tags, Tag{"e", id})
	}
	tags = append(tags, Tag{"k", strconv.Itoa(kind)})

	return &Event{Event: nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindDeletion,
		Tags:      tags,
	}}, nil
}
