package reconstruction

import (
	"github.com/shopspring/decimal"

	"travel_budget/internal/domain/entity"
)

// ScoreWeights balances the three axes of the alternative ranking. The
// weights are fractions summing to 1.
type ScoreWeights struct {
	Price        decimal.Decimal
	Rating       decimal.Decimal
	Availability decimal.Decimal
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Price:        decimal.NewFromFloat(0.4),
		Rating:       decimal.NewFromFloat(0.4),
		Availability: decimal.NewFromFloat(0.2),
	}
}

const maxRating = 5.0

// score ranks one candidate: cheaper, better rated, more available wins.
// Price contributes inversely, normalized against the cheapest candidate of
// the pool; rating is normalized to its 5-point scale; availability against
// the deepest stock of the pool.
func (w ScoreWeights) score(candidate entity.PackageRecord, minPrice decimal.Decimal, maxAvailability int) decimal.Decimal {
	total := decimal.Zero

	if candidate.Price.IsPositive() && minPrice.IsPositive() {
		total = total.Add(w.Price.Mul(minPrice.Div(candidate.Price)))
	}

	if rating := candidate.Details.Rating(); rating > 0 {
		total = total.Add(w.Rating.Mul(decimal.NewFromFloat(rating / maxRating)))
	}

	if candidate.Availability > 0 && maxAvailability > 0 {
		total = total.Add(w.Availability.
			Mul(decimal.NewFromInt(int64(candidate.Availability))).
			Div(decimal.NewFromInt(int64(maxAvailability))))
	}

	return total
}

// bestAlternative scores the current record against the candidate pool and
// returns the best strictly-better candidate, if any. Ties go to the lowest
// price. Candidates must match the current record's category; sold-out
// candidates never qualify.
func bestAlternative(weights ScoreWeights, current entity.PackageRecord, pool []entity.PackageRecord) (entity.PackageRecord, bool) {
	candidates := make([]entity.PackageRecord, 0, len(pool))

	for _, candidate := range pool {
		if candidate.ID == current.ID || !candidate.Available() {
			continue
		}

		if candidate.Details.Category() != current.Details.Category() {
			continue
		}

		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		return entity.PackageRecord{}, false
	}

	minPrice, maxAvailability := normalizationBounds(current, candidates)

	currentScore := weights.score(current, minPrice, maxAvailability)

	var (
		best      entity.PackageRecord
		bestScore decimal.Decimal
		found     bool
	)

	for _, candidate := range candidates {
		s := weights.score(candidate, minPrice, maxAvailability)

		if s.LessThanOrEqual(currentScore) {
			continue
		}

		switch {
		case !found,
			s.GreaterThan(bestScore),
			s.Equal(bestScore) && candidate.Price.LessThan(best.Price):
			best = candidate
			bestScore = s
			found = true
		}
	}

	return best, found
}

func normalizationBounds(current entity.PackageRecord, candidates []entity.PackageRecord) (decimal.Decimal, int) {
	minPrice := current.Price
	maxAvailability := current.Availability

	for _, candidate := range candidates {
		if candidate.Price.IsPositive() && (minPrice.IsZero() || candidate.Price.LessThan(minPrice)) {
			minPrice = candidate.Price
		}

		if candidate.Availability > maxAvailability {
			maxAvailability = candidate.Availability
		}
	}

	return minPrice, maxAvailability
}
