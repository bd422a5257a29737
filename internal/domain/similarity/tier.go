package similarity

import "fmt"

// Tier is a similarity bucket, ordered by ascending score.
type Tier int

// Tiers in ascending order of similarity.
const (
	TierNone Tier = iota
	TierLikely
	TierNearDuplicate
	TierExact
)

var tierNames = [...]string{"NONE", "LIKELY", "NEAR_DUPLICATE", "EXACT"} //nolint:gochecknoglobals // lookup table

// String returns the canonical tier name.
func (t Tier) String() string {
	if t < TierNone || t > TierExact {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// Matched reports whether the tier counts as membership evidence.
func (t Tier) Matched() bool { return t >= TierLikely }

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	for i, n := range tierNames {
		if n == string(b) {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", b)
}
