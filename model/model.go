// SPDX-License-Identifier: ice License 1.0

package model

import (
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

type (
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
	Kind      = int
	Filter    = nostr.Filter
	Filters   = nostr.Filters

	Status string
)

var (
	ErrMissingDTag      = errors.New("missing d tag")
	ErrWrongEventParams = errors.New("wrong event params")
	ErrWrongReference   = errors.New("wrong community reference")
	ErrAlreadyModerator = errors.New("pubkey is already a moderator")
	ErrNotModerator     = errors.New("pubkey is not a moderator")
	ErrUnsupportedTag   = errors.New("unsupported tag")
)

const (
	KindCommunityDefinition Kind = 34550
	KindCommunityRequest    Kind = 1111
	KindRequestStatus       Kind = 9078

	StatusNew        Status = "New"
	StatusInProgress Status = "in-progress"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
)

const (
	TagMarkerRoot      = "root"
	TagMarkerReply     = "reply"
	TagMarkerModerator = "moderator"

	TagTopicCommunityRequest = "community-request"

	RelayRoleGeneral   = ""
	RelayRoleAuthor    = "author"
	RelayRoleRequests  = "requests"
	RelayRoleApprovals = "approvals"

	defaultFilterLimit = 100
)
