// Package types contains the read shapes returned by the HTTP API.
package types

import "github.com/axelofwar/be-community-gamification/internal/domain/model"

// Entry represents a leaderboard row. Field names follow the historical
// leaderboard table (Favorites carries the likes counter).
type Entry struct {
	Rank        int    `json:"rank"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Favorites   int64  `json:"favorites"`
	Retweets    int64  `json:"retweets"`
	Replies     int64  `json:"replies"`
	Impressions int64  `json:"impressions"`
	PFPURL      string `json:"pfp_url"`
	Description string `json:"description"`
	BioLink     string `json:"bio_link"`
}

// Entity is the detailed view of one tracked entity.
type Entity struct {
	Key             string           `json:"key"`
	DisplayName     string           `json:"display_name"`
	Metrics         map[string]int64 `json:"metrics"`
	ProfileImageURL string           `json:"profile_image_url"`
	BioDescription  string           `json:"bio_description"`
	BioLink         string           `json:"bio_link"`
}

// NewEntry builds a leaderboard row for e at rank.
func NewEntry(rank int, e model.TrackedEntity) Entry { //nolint:gocritic // entity is copied into the view
	return Entry{
		Rank:        rank,
		Key:         e.Key,
		Name:        e.DisplayName,
		Favorites:   e.Metrics.Likes,
		Retweets:    e.Metrics.Retweets,
		Replies:     e.Metrics.Replies,
		Impressions: e.Metrics.Impressions,
		PFPURL:      e.ProfileImageURL,
		Description: e.BioDescription,
		BioLink:     e.BioLink,
	}
}

// NewEntity builds the detailed view of e.
func NewEntity(e model.TrackedEntity) Entity { //nolint:gocritic // entity is copied into the view
	return Entity{
		Key:             e.Key,
		DisplayName:     e.DisplayName,
		Metrics:         e.Metrics.Map(),
		ProfileImageURL: e.ProfileImageURL,
		BioDescription:  e.BioDescription,
		BioLink:         e.BioLink,
	}
}
