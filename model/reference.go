package model

import (
	"strconv"
	"strings"

	"github.com/gookit/goutil/errorx"
	"github.com/nbd-wtf/go-nostr"
)

// CommunityRef is the canonical foreign key from a dependent event
// (request, reply, status) back to its community definition.
type CommunityRef struct {
	PubKey     string
	Identifier string
}

func (r CommunityRef) String() string {
	return strconv.Itoa(KindCommunityDefinition) + ":" + r.PubKey + ":" + r.Identifier
}

func (r CommunityRef) Filter() nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{KindCommunityDefinition},
		Authors: []string{r.PubKey},
		Tags:    nostr.TagMap{"d": {r.Identifier}},
	}
}

// ParseCommunityRef parses a `34550:<pubkey>:<identifier>` string. The
// identifier part may itself contain colons.
func ParseCommunityRef(value string) (*CommunityRef, error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) < 3 {
		return nil, errorx.Withf(ErrWrongReference, "reference %q has fewer than 3 parts", value)
	}
	kind, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, errorx.Withf(err, "reference %q has a non-numeric kind prefix", value)
	}
	if int(kind) != KindCommunityDefinition {
		return nil, errorx.Withf(ErrWrongReference, "reference %q kind prefix is not %v", value, KindCommunityDefinition)
	}

	return &CommunityRef{PubKey: parts[1], Identifier: parts[2]}, nil
}

// EventCommunityRef extracts the community reference of a dependent
// event, preferring the lowercase a tag, falling back to A.
func EventCommunityRef(ev *Event) (*CommunityRef, error) {
	tag := ev.GetTag("a")
	if tag == nil {
		tag = ev.GetTag("A")
	}
	if tag == nil || len(tag) < 2 {
		return nil, errorx.Withf(ErrWrongReference, "event %v carries no community reference", ev.GetID())
	}

	return ParseCommunityRef(tag.Value())
}
