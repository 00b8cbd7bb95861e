// SPDX-License-Identifier: ice License 1.0

// Package projection derives read-model views from raw, duplicate-prone
// multi-relay event sets. Everything here is a pure function of its
// inputs: recomputation is idempotent regardless of how query results
// and subscription deliveries interleave.
package projection

import (
	"sort"

	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"

	"github.com/opencollective/requests-sub001/model"
)

type (
	// RequestView is a request with its effective status attached.
	RequestView struct {
		model.Request
		Status model.Status
	}

	// Profile is the subset of kind 0 metadata the views need.
	Profile struct {
		PubKey  string
		Name    string
		About   string
		Picture string
	}
)

// dedupe drops events already seen by id: the same event arriving from
// several endpoints is the same event.
func dedupe(events []*model.Event) []*model.Event {
	seen := make(map[string]struct{}, len(events))
	unique := events[:0:0]
	for _, ev := range events {
		id := ev.GetID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, ev)
	}

	return unique
}

// LatestDefinitions applies replaceable-event precedence: per
// (pubkey, identifier) key only the greatest-created_at definition
// survives, regardless of arrival order. Ties break on the greater id
// so the outcome is deterministic. Unparseable events are skipped.
func LatestDefinitions(events []*model.Event) []*model.CommunityInfo {
	type keyed struct {
		info *model.CommunityInfo
		id   string
	}
	latest := make(map[model.CommunityRef]*keyed)
	for _, ev := range dedupe(events) {
		info, err := model.ParseCommunityDefinition(ev)
		if err != nil {
			continue
		}
		key, id := info.Ref(), ev.GetID()
		current, ok := latest[key]
		if !ok || info.CreatedAt > current.info.CreatedAt ||
			(info.CreatedAt == current.info.CreatedAt && id > current.id) {
			latest[key] = &keyed{info: info, id: id}
		}
	}
	infos := make([]*model.CommunityInfo, 0, len(latest))
	for _, entry := range latest {
		infos = append(infos, entry.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt != infos[j].CreatedAt {
			return infos[i].CreatedAt > infos[j].CreatedAt
		}

		return infos[i].Ref().String() < infos[j].Ref().String()
	})

	return infos
}

// EffectiveStatus resolves a request's status: the label of the
// greatest-created_at status event referencing it, counting only events
// authored by an approved moderator. No qualifying event means New.
func EffectiveStatus(requestID string, statuses []*model.StatusEvent, moderators []string) model.Status {
	approved := make(map[string]struct{}, len(moderators))
	for _, moderator := range moderators {
		approved[moderator] = struct{}{}
	}
	var winner *model.StatusEvent
	for _, status := range statuses {
		if status.RequestID != requestID {
			continue
		}
		if _, ok := approved[status.Moderator]; !ok {
			continue
		}
		if winner == nil || status.CreatedAt > winner.CreatedAt ||
			(status.CreatedAt == winner.CreatedAt && status.ID > winner.ID) {
			winner = status
		}
	}
	if winner == nil {
		return model.StatusNew
	}

	return winner.Label
}

// ParseStatuses extracts the well-formed status annotations from a raw
// event set, deduplicated by id.
func ParseStatuses(events []*model.Event) []*model.StatusEvent {
	statuses := make([]*model.StatusEvent, 0, len(events))
	for _, ev := range dedupe(events) {
		if status, err := model.ParseStatus(ev); err == nil {
			statuses = append(statuses, status)
		}
	}

	return statuses
}

// ProjectRequests assembles the display list: requests deduplicated by
// id, each with its effective status, most recent first (ascending on
// request).
func ProjectRequests(requestEvents, statusEvents []*model.Event, moderators []string, ascending bool) []RequestView {
	statuses := ParseStatuses(statusEvents)
	views := make([]RequestView, 0, len(requestEvents))
	for _, ev := range dedupe(requestEvents) {
		request, err := model.ParseCommunityRequest(ev)
		if err != nil {
			continue
		}
		views = append(views, RequestView{
			Request: *request,
			Status:  EffectiveStatus(request.ID, statuses, moderators),
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt != views[j].CreatedAt {
			if ascending {
				return views[i].CreatedAt < views[j].CreatedAt
			}

			return views[i].CreatedAt > views[j].CreatedAt
		}

		return views[i].ID < views[j].ID
	})

	return views
}

// ProjectThread assembles a request's reply list, ordered by
// created_at ascending.
func ProjectThread(requestID string, events []*model.Event) []model.Reply {
	replies := make([]model.Reply, 0, len(events))
	for _, ev := range dedupe(events) {
		reply, err := model.ParseReply(ev)
		if err != nil || reply.RequestID != requestID {
			continue
		}
		replies = append(replies, *reply)
	}
	sort.Slice(replies, func(i, j int) bool {
		if replies[i].CreatedAt != replies[j].CreatedAt {
			return replies[i].CreatedAt < replies[j].CreatedAt
		}

		return replies[i].ID < replies[j].ID
	})

	return replies
}

// ProjectProfiles maps pubkey to the latest kind 0 metadata. Only the
// displayed fields are pulled out of the content json.
func ProjectProfiles(events []*model.Event) map[string]Profile {
	latest := make(map[string]*model.Event)
	for _, ev := range dedupe(events) {
		if ev.Kind != nostr.KindProfileMetadata {
			continue
		}
		if current, ok := latest[ev.PubKey]; !ok || ev.CreatedAt > current.CreatedAt {
			latest[ev.PubKey] = ev
		}
	}
	profiles := make(map[string]Profile, len(latest))
	for pubKey, ev := range latest {
		if !gjson.Valid(ev.Content) {
			continue
		}
		content := gjson.Parse(ev.Content)
		profiles[pubKey] = Profile{
			PubKey:  pubKey,
			Name:    content.Get("name").String(),
			About:   content.Get("about").String(),
			Picture: content.Get("picture").String(),
		}
	}

	return profiles
}
