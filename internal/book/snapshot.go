package book

import "github.com/alanyoungcy/orderrouter/internal/domain"

// VenueState is the metadata of one venue's contribution.
type VenueState struct {
	Venue      domain.Venue `json:"venue"`
	ObservedAt int64        `json:"observed_at"`
	Stale      bool         `json:"stale"`
	StaleCause string       `json:"stale_cause,omitempty"`
	Levels     int          `json:"levels"`
}

// Snapshot is an immutable view of the book at one version. Levels are
// grouped by venue in ascending venue order and keep each venue's reported
// order within the group. Callers must not modify the slices.
type Snapshot struct {
	Symbol  string              `json:"symbol"`
	Version uint64              `json:"version"`
	Venues  []VenueState        `json:"venues"`
	Levels  []domain.PriceLevel `json:"levels"`
}

// Side returns the levels resting on side, in snapshot order.
func (s Snapshot) Side(side domain.Side) []domain.PriceLevel {
	var out []domain.PriceLevel
	for _, l := range s.Levels {
		if l.Side == side {
			out = append(out, l)
		}
	}
	return out
}

// Venue returns the state of v and whether it is present.
func (s Snapshot) Venue(v domain.Venue) (VenueState, bool) {
	for _, vs := range s.Venues {
		if vs.Venue == v {
			return vs, true
		}
	}
	return VenueState{}, false
}

// VenueLevels returns the levels contributed by v.
func (s Snapshot) VenueLevels(v domain.Venue) []domain.PriceLevel {
	var out []domain.PriceLevel
	for _, l := range s.Levels {
		if l.Venue == v {
			out = append(out, l)
		}
	}
	return out
}
