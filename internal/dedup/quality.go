package dedup

import (
	"unicode/utf8"

	"DealScanner/internal/domain"
)

// Weights sets how much each optional field contributes to the quality score.
type Weights struct {
	Price       float64 `yaml:"price"`
	Merchant    float64 `yaml:"merchant"`
	Category    float64 `yaml:"category"`
	Coupon      float64 `yaml:"coupon"`
	Image       float64 `yaml:"image"`
	Description float64 `yaml:"description"`
}

// DefaultWeights counts every field equally.
func DefaultWeights() Weights {
	return Weights{Price: 1, Merchant: 1, Category: 1, Coupon: 1, Image: 1, Description: 1}
}

// DefaultMinDescriptionLength is the rune count at which a description counts as informative.
const DefaultMinDescriptionLength = 40

// Scorer computes the completeness score used to order moderation review.
type Scorer struct {
	weights        Weights
	minDescription int
}

// NewScorer builds a scorer; non-positive weights total falls back to the defaults.
func NewScorer(w Weights, minDescription int) *Scorer {
	if w.Price+w.Merchant+w.Category+w.Coupon+w.Image+w.Description <= 0 {
		w = DefaultWeights()
	}
	if minDescription <= 0 {
		minDescription = DefaultMinDescriptionLength
	}
	return &Scorer{weights: w, minDescription: minDescription}
}

// Score returns the weighted fraction of informative fields present, in [0,1].
func (s *Scorer) Score(deal domain.NormalizedDeal) float64 {
	var total, present float64
	add := func(weight float64, ok bool) {
		if weight <= 0 {
			return
		}
		total += weight
		if ok {
			present += weight
		}
	}

	add(s.weights.Price, deal.Price != nil)
	add(s.weights.Merchant, deal.Merchant != "")
	add(s.weights.Category, deal.Category != "")
	add(s.weights.Coupon, deal.CouponCode != "")
	add(s.weights.Image, deal.ImageURL != "")
	add(s.weights.Description, utf8.RuneCountInString(deal.Description) >= s.minDescription)

	if total == 0 {
		return 0
	}
	return present / total
}
