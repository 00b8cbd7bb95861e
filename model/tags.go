// SPDX-License-Identifier: ice License 1.0

package model

// Typed views over raw tag arrays. Tags are parsed once at the event
// boundary; everything downstream works with these instead of
// re-scanning [][]string.

type (
	TypedTag interface {
		Raw() Tag
	}

	// NamedTag is a single-value tag such as d, t, k, title or image.
	NamedTag struct {
		Name  string
		Value string
	}

	// RelayTag carries a relay url and its optional role
	// (author/requests/approvals, empty = general).
	RelayTag struct {
		URL  string
		Role string
	}

	// ModeratorTag is a p tag with the moderator marker.
	ModeratorTag struct {
		PubKey string
		Relay  string
	}

	// ReferenceTag is an a/A community reference tag.
	ReferenceTag struct {
		Ref    CommunityRef
		Scoped bool // true for uppercase A
	}

	// RootTag is an e tag with the root marker.
	RootTag struct {
		EventID string
		Relay   string
	}
)

func (t *NamedTag) Raw() Tag { return Tag{t.Name, t.Value} }

func (t *RelayTag) Raw() Tag {
	if t.Role == RelayRoleGeneral {
		return Tag{"relay", t.URL}
	}

	return Tag{"relay", t.URL, t.Role}
}

func (t *ModeratorTag) Raw() Tag { return Tag{"p", t.PubKey, t.Relay, TagMarkerModerator} }

func (t *ReferenceTag) Raw() Tag {
	name := "a"
	if t.Scoped {
		name = "A"
	}

	return Tag{name, t.Ref.String()}
}

func (t *RootTag) Raw() Tag {
	if t.Relay == "" {
		return Tag{"e", t.EventID, TagMarkerRoot}
	}

	return Tag{"e", t.EventID, t.Relay, TagMarkerRoot}
}

func ParseTags(tags Tags) []TypedTag {
	parsed := make([]TypedTag, 0, len(tags))
	for _, tag := range tags {
		if typed := parseTag(tag); typed != nil {
			parsed = append(parsed, typed)
		}
	}

	return parsed
}

func parseTag(tag Tag) TypedTag {
	if len(tag) < 2 {
		return nil
	}
	switch tag.Key() {
	case "relay":
		role := RelayRoleGeneral
		if len(tag) >= 3 {
			role = tag[2]
		}

		return &RelayTag{URL: tag.Value(), Role: role}
	case "p":
		if len(tag) >= 4 && tag[3] == TagMarkerModerator {
			return &ModeratorTag{PubKey: tag.Value(), Relay: tag[2]}
		}
		if len(tag) == 3 && tag[2] == TagMarkerModerator {
			return &ModeratorTag{PubKey: tag.Value()}
		}

		return &NamedTag{Name: "p", Value: tag.Value()}
	case "a", "A":
		ref, err := ParseCommunityRef(tag.Value())
		if err != nil {
			return nil
		}

		return &ReferenceTag{Ref: *ref, Scoped: tag.Key() == "A"}
	case "e":
		if len(tag) >= 4 && tag[3] == TagMarkerRoot {
			return &RootTag{EventID: tag.Value(), Relay: tag[2]}
		}
		if len(tag) == 3 && tag[2] == TagMarkerRoot {
			return &RootTag{EventID: tag.Value()}
		}

		return &NamedTag{Name: "e", Value: tag.Value()}
	}

	return &NamedTag{Name: tag.Key(), Value: tag.Value()}
}
