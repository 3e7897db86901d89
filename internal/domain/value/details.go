package value

import (
	"sort"
	"strconv"
)

// Provider metadata keys the engines rely on. Everything else in the bag is
// opaque and only participates in change detection.
const (
	DetailCategory = "category"
	DetailSeason   = "season"
	DetailRating   = "rating"
	DetailRoute    = "route"
)

// Details is the opaque key/value bag a provider attaches to an offer.
type Details map[string]string

func (d Details) Clone() Details {
	if d == nil {
		return nil
	}

	clone := make(Details, len(d))
	for k, v := range d {
		clone[k] = v
	}

	return clone
}

func (d Details) Category() string {
	return d[DetailCategory]
}

func (d Details) Route() string {
	return d[DetailRoute]
}

// Rating parses the provider rating (0..5 scale). Missing or malformed
// ratings count as zero.
func (d Details) Rating() float64 {
	rating, err := strconv.ParseFloat(d[DetailRating], 64)
	if err != nil || rating < 0 {
		return 0
	}

	return rating
}

// ChangedKeys returns the sorted set of keys whose values differ between the
// two bags, including keys present on only one side.
func (d Details) ChangedKeys(other Details) []string {
	seen := make(map[string]struct{}, len(d)+len(other))

	var keys []string

	for k, v := range d {
		seen[k] = struct{}{}

		if otherV, ok := other[k]; !ok || otherV != v {
			keys = append(keys, k)
		}
	}

	for k := range other {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	return keys
}
