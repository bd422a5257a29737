// Package streamreplay replays recorded post observations against a running
// service, standing in for the live stream driver.
package streamreplay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	BaseURL  string        // Base URL of the service
	TopN     int           // Leaderboard rows to print at the end
	Workers  int           // Concurrent submitters
	Timeout  time.Duration // Per-request HTTP timeout
	Attempts uint          // Submission attempts per observation on 429 or 5xx
	Wait     time.Duration // How long to wait for the pipeline to drain
	Poll     time.Duration // Stats polling interval while waiting
	Verbose  bool
}

// Observation is one NDJSON line, shaped like the POST /observations body.
type Observation struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Name        string  `json:"name,omitempty"`
	Likes       int64   `json:"likes"`
	Retweets    int64   `json:"retweets"`
	Replies     int64   `json:"replies"`
	Impressions int64   `json:"impressions"`
	PFPURL      string  `json:"pfp_url"`
	Description *string `json:"description,omitempty"`
	BioLink     *string `json:"bio_link,omitempty"`
	ObservedAt  string  `json:"observed_at,omitempty"`
}

// Entry is one leaderboard row as served by GET /leaderboard.
type Entry struct {
	Rank        int    `json:"rank"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Favorites   int64  `json:"favorites"`
	Retweets    int64  `json:"retweets"`
	Replies     int64  `json:"replies"`
	Impressions int64  `json:"impressions"`
	PFPURL      string `json:"pfp_url"`
}

// AckResponse is the body of a successful submission.
type AckResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// Stats holds replay statistics.
type Stats struct {
	Lines       int
	Malformed   int
	Submitted   int
	Accepted    int
	Duplicate   int
	Rejected    int // 4xx other than 429
	Failed      int // transport errors and exhausted retries
	Processed   int64
	Drained     bool
	StartTime   time.Time
	Duration    time.Duration
	Leaderboard []Entry
}
