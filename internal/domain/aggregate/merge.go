// Package aggregate folds fresh observations into tracked entities.
//
// Counters only ever move up: each merged counter is the maximum of the
// stored and observed values. Replaying an observation is therefore a
// no-op, which is what makes store writes safely retryable.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/axelofwar/be-community-gamification/internal/domain/model"
)

// Merge combines current (nil when untracked) with observed. The returned
// flag reports whether the result differs from current and must be written.
func Merge(current *model.TrackedEntity, observed model.Observed, identity model.Identity) (model.TrackedEntity, bool, error) {
	if strings.TrimSpace(identity.Key) == "" {
		return model.TrackedEntity{}, false, fmt.Errorf("%w: empty key", ErrInvalidIdentity)
	}
	m := clamp(observed.Metrics)

	if current == nil {
		name := identity.DisplayName
		if strings.TrimSpace(name) == "" {
			name = model.Unknown
		}
		return model.TrackedEntity{
			Key:             identity.Key,
			DisplayName:     name,
			Metrics:         m,
			ProfileImageURL: orUnknown(observed.ProfileImageURL),
			BioDescription:  orUnknown(observed.BioDescription),
			BioLink:         orUnknown(observed.BioLink),
		}, true, nil
	}

	if current.Key != identity.Key {
		return model.TrackedEntity{}, false, fmt.Errorf("%w: key %q does not match entity %q", ErrInvalidIdentity, identity.Key, current.Key)
	}

	// DisplayName is kept from the first observation.
	merged := *current
	merged.Metrics = model.Metrics{
		Likes:       max(current.Metrics.Likes, m.Likes),
		Retweets:    max(current.Metrics.Retweets, m.Retweets),
		Replies:     max(current.Metrics.Replies, m.Replies),
		Impressions: max(current.Metrics.Impressions, m.Impressions),
	}
	overwrite(&merged.ProfileImageURL, observed.ProfileImageURL)
	overwrite(&merged.BioDescription, observed.BioDescription)
	overwrite(&merged.BioLink, observed.BioLink)

	return merged, merged != *current, nil
}

func clamp(m model.Metrics) model.Metrics {
	return model.Metrics{
		Likes:       max(m.Likes, 0),
		Retweets:    max(m.Retweets, 0),
		Replies:     max(m.Replies, 0),
		Impressions: max(m.Impressions, 0),
	}
}

func orUnknown(v *string) string {
	if v == nil {
		return model.Unknown
	}
	return *v
}

func overwrite(dst *string, v *string) {
	if v != nil && *v != *dst {
		*dst = *v
	}
}
