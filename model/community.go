// SPDX-License-Identifier: ice License 1.0

package model

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type (
	// CommunityInfo is the typed view of a kind 34550 replaceable
	// definition, keyed by (PubKey, Identifier).
	CommunityInfo struct {
		PubKey      string
		Identifier  string
		Name        string
		Description string
		Image       string
		Moderators  []string
		Relays      []RelayTag
		CreatedAt   Timestamp
	}
)

func (c *CommunityInfo) Ref() CommunityRef {
	return CommunityRef{PubKey: c.PubKey, Identifier: c.Identifier}
}

// RelaysByRole returns the urls carrying the given role, with the
// general relays as fallback when no relay carries it.
func (c *CommunityInfo) RelaysByRole(role string) []string {
	var urls, general []string
	for _, relay := range c.Relays {
		if relay.Role == role {
			urls = append(urls, relay.URL)
		}
		if relay.Role == RelayRoleGeneral {
			general = append(general, relay.URL)
		}
	}
	if len(urls) == 0 {
		return general
	}

	return urls
}

func (c *CommunityInfo) IsModerator(pubkey string) bool {
	return slices.Contains(c.Moderators, pubkey)
}

// AddModerator produces an updated definition carrying one more
// moderator. Fails with ErrAlreadyModerator on duplicates.
func (c *CommunityInfo) AddModerator(pubkey string) (*CommunityInfo, error) {
	if c.IsModerator(pubkey) {
		return nil, errors.Wrapf(ErrAlreadyModerator, "pubkey %v in community %v", pubkey, c.Identifier)
	}
	updated := *c
	updated.Moderators = append(slices.Clone(c.Moderators), pubkey)

	return &updated, nil
}

func (c *CommunityInfo) RemoveModerator(pubkey string) (*CommunityInfo, error) {
	ix := slices.Index(c.Moderators, pubkey)
	if ix < 0 {
		return nil, errors.Wrapf(ErrNotModerator, "pubkey %v in community %v", pubkey, c.Identifier)
	}
	updated := *c
	updated.Moderators = slices.Delete(slices.Clone(c.Moderators), ix, ix+1)

	return &updated, nil
}

// BuildCommunityDefinition assembles the unsigned replaceable event for
// the definition. PubKey is left for the signer to fill when empty.
func BuildCommunityDefinition(info *CommunityInfo) (*Event, error) {
	if info.Identifier == "" {
		return nil, errors.Wrap(ErrMissingDTag, "community definition requires an identifier")
	}
	tags := Tags{
		{"d", info.Identifier},
		{"name", info.Name},
		{"description", info.Description},
	}
	if info.Image != "" {
		tags = append(tags, Tag{"image", info.Image})
	}
	for _, pubkey := range info.Moderators {
		tags = append(tags, (&ModeratorTag{PubKey: pubkey}).Raw())
	}
	for _, relay := range info.Relays {
		tags = append(tags, relay.Raw())
	}
	createdAt := info.CreatedAt
	if createdAt == 0 {
		createdAt = nostr.Now()
	}

	return &Event{Event: nostr.Event{
		PubKey:    info.PubKey,
		CreatedAt: createdAt,
		Kind:      KindCommunityDefinition,
		Tags:      tags,
	}}, nil
}

// ParseCommunityDefinition recovers the typed view from a raw event.
// Malformed input yields a nil result and an error, never a panic.
func ParseCommunityDefinition(ev *Event) (*CommunityInfo, error) {
	if ev == nil || ev.Kind != KindCommunityDefinition {
		return nil, errors.Wrapf(ErrWrongEventParams, "not a community definition: %+v", ev)
	}
	info := &CommunityInfo{
		PubKey:    ev.PubKey,
		CreatedAt: ev.CreatedAt,
	}
	for _, typed := range ParseTags(ev.Tags) {
		switch tag := typed.(type) {
		case *NamedTag:
			switch tag.Name {
			case "d":
				info.Identifier = tag.Value
			case "name":
				info.Name = tag.Value
			case "description":
				info.Description = tag.Value
			case "image":
				info.Image = tag.Value
			}
		case *ModeratorTag:
			info.Moderators = append(info.Moderators, tag.PubKey)
		case *RelayTag:
			info.Relays = append(info.Relays, *tag)
		}
	}
	if info.Identifier == "" {
		return nil, errors.Wrapf(ErrMissingDTag, "community definition %v", ev.GetID())
	}

	return info, nil
}
