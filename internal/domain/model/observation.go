package model

import "time"

// Observation is one post-stream reading queued for asynchronous processing.
type Observation struct {
	ID              string // dedupe key; the post id when the driver has one
	Identity        Identity
	Metrics         Metrics
	ProfileImageURL string
	BioDescription  *string
	BioLink         *string
	ObservedAt      time.Time
}

// Observed projects the observation onto the fields the aggregator merges.
func (o Observation) Observed() Observed { //nolint:gocritic // value receiver mirrors queue semantics
	url := o.ProfileImageURL
	return Observed{
		Metrics:         o.Metrics,
		ProfileImageURL: &url,
		BioDescription:  o.BioDescription,
		BioLink:         o.BioLink,
	}
}
