// SPDX-License-Identifier: ice License 1.0

package model

import (
	"github.com/nbd-wtf/go-nostr"
)

type Event struct {
	nostr.Event
}

func (e *Event) GetTag(tagName string) Tag {
	for _, tag := range e.Tags {
		if tag.Key() == tagName {
			return tag
		}
	}

	return nil
}
