package value

import (
	"fmt"
	"time"
)

// DateRange is a half-open travel interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: start.UTC(), End: end.UTC()}
}

func (d DateRange) Equal(other DateRange) bool {
	return d.Start.Equal(other.Start) && d.End.Equal(other.End)
}

func (d DateRange) Nights() int {
	return int(d.End.Sub(d.Start).Hours() / 24)
}

func (d DateRange) String() string {
	return fmt.Sprintf("%s..%s", d.Start.Format(time.DateOnly), d.End.Format(time.DateOnly))
}

// DiffDateRanges returns the ranges present only in old (removed) and only in
// new (added). Order of the inputs is preserved.
func DiffDateRanges(old, new []DateRange) (removed, added []DateRange) {
	contains := func(set []DateRange, r DateRange) bool {
		for _, item := range set {
			if item.Equal(r) {
				return true
			}
		}
		return false
	}

	for _, r := range old {
		if !contains(new, r) {
			removed = append(removed, r)
		}
	}

	for _, r := range new {
		if !contains(old, r) {
			added = append(added, r)
		}
	}

	return removed, added
}
