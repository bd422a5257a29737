// Package model contains domain models passed between layers.
package model

// Unknown is stored for descriptive fields the upstream never supplied.
const Unknown = "None"

// Metric names as exposed by Metrics.Map.
const (
	MetricLikes       = "likes"
	MetricRetweets    = "retweets"
	MetricReplies     = "replies"
	MetricImpressions = "impressions"
)

// Identity is the stable key and display name of an observed account.
type Identity struct {
	Key         string
	DisplayName string
}

// Metrics holds the engagement counters tracked per entity.
type Metrics struct {
	Likes       int64
	Retweets    int64
	Replies     int64
	Impressions int64
}

// Map returns the counters keyed by metric name.
func (m Metrics) Map() map[string]int64 {
	return map[string]int64{
		MetricLikes:       m.Likes,
		MetricRetweets:    m.Retweets,
		MetricReplies:     m.Replies,
		MetricImpressions: m.Impressions,
	}
}

// Observed is one fresh reading of an account. Nil descriptive fields were
// absent upstream and leave the stored value untouched.
type Observed struct {
	Metrics         Metrics
	ProfileImageURL *string
	BioDescription  *string
	BioLink         *string
}

// TrackedEntity is one persisted leaderboard row.
type TrackedEntity struct {
	Key             string
	DisplayName     string
	Metrics         Metrics
	ProfileImageURL string
	BioDescription  string
	BioLink         string
}
