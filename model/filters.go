// SPDX-License-Identifier: ice License 1.0

package model

import (
	"github.com/nbd-wtf/go-nostr"
)

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return defaultFilterLimit
	}

	return limit
}

// CommunityDefinitionFilter matches kind 34550 definitions, optionally
// narrowed to the given authors.
func CommunityDefinitionFilter(authors []string, limit int) Filter {
	return Filter{
		Kinds:   []int{KindCommunityDefinition},
		Authors: authors,
		Limit:   effectiveLimit(limit),
	}
}

// RequestFilter matches community requests scoped to the given
// community reference via the indexed a tag.
func RequestFilter(ref CommunityRef, limit int) Filter {
	return Filter{
		Kinds: []int{KindCommunityRequest},
		Tags:  nostr.TagMap{"a": {ref.String()}},
		Limit: effectiveLimit(limit),
	}
}

// StatusFilter matches status annotations referencing any of the given
// request ids.
func StatusFilter(requestIDs []string, limit int) Filter {
	return Filter{
		Kinds: []int{KindRequestStatus},
		Tags:  nostr.TagMap{"e": requestIDs},
		Limit: effectiveLimit(limit),
	}
}

// ThreadFilter matches replies rooted at the given request.
func ThreadFilter(requestID string, limit int) Filter {
	return Filter{
		Kinds: []int{KindCommunityRequest},
		Tags:  nostr.TagMap{"e": {requestID}},
		Limit: effectiveLimit(limit),
	}
}

// ProfileFilter matches kind 0 profile metadata for the given pubkeys.
func ProfileFilter(pubkeys []string, limit int) Filter {
	return Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: pubkeys,
		Limit:   effectiveLimit(limit),
	}
}
