package model

import (
	"github.com/gookit/goutil/errorx"
	"github.com/nbd-wtf/go-nostr"
)

var KindSupportedTags = map[Kind][]string{
	KindCommunityDefinition: {"d", "name", "description", "image", "p", "relay"},
	KindCommunityRequest:    {"d", "a", "A", "e", "p", "t", "k", "K", "title"},
	KindRequestStatus:       {"e", "a", "A", "p"},
	nostr.KindDeletion:      {"a", "e", "k"},
}

// Validate checks an event we are about to sign and publish. It is a
// construction-time guard: failures here are programmer or config
// errors, not recoverable runtime state.
func (e *Event) Validate() error {
	if e.Kind < 0 || e.Kind > 65535 {
		return errorx.New("wrong kind value")
	}
	if !areTagsSupported(e) {
		return errorx.Withf(ErrUnsupportedTag, "unsupported tag for this event kind: %+v", e)
	}
	switch e.Kind {
	case KindCommunityDefinition:
		if tag := e.GetTag("d"); tag == nil || tag.Value() == "" {
			return errorx.Withf(ErrMissingDTag, "community definition: %+v", e)
		}
	case KindCommunityRequest:
		if e.Content == "" {
			return errorx.Withf(ErrWrongEventParams, "community request or reply requires content: %+v", e)
		}
		if tag := e.GetTag("a"); tag == nil || tag.Value() == "" {
			return errorx.Withf(ErrWrongReference, "community request or reply requires an a tag: %+v", e)
		}
		if _, err := EventCommunityRef(e); err != nil {
			return errorx.Withf(err, "community request or reply reference is malformed: %+v", e)
		}
	case KindRequestStatus:
		if e.Content == "" {
			return errorx.Withf(ErrWrongEventParams, "status requires a label: %+v", e)
		}
		if tag := e.GetTag("e"); tag == nil || tag.Value() == "" {
			return errorx.Withf(ErrWrongEventParams, "status requires a request reference: %+v", e)
		}
	case nostr.KindDeletion:
		if tag := e.GetTag("e"); tag == nil || tag.Value() == "" {
			return errorx.Withf(ErrWrongEventParams, "deletion requires an event reference: %+v", e)
		}
	}

	return nil
}

func areTagsSupported(e *Event) bool {
	supportedTags, ok := KindSupportedTags[e.Kind]
	if !ok {
		return true
	}
next:
	for _, tag := range e.Tags {
		for _, supportedTag := range supportedTags {
			if tag.Key() == supportedTag {
				continue next
			}
		}

		return false
	}

	return true
}
