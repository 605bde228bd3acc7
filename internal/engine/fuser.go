package engine

import (
	"quotefuse/internal/domain"

	"github.com/shopspring/decimal"
)

// FusionInput is one venue's adjusted price offered to the fusion policy.
type FusionInput struct {
	Venue domain.Venue
	Price decimal.Decimal
}

// Fuser turns the set of live adjusted venue prices into one fused price.
// The concrete weighting model is deliberately pluggable; PooledMean is the
// baseline and TrustWeighted an opt-in variant.
type Fuser interface {
	Name() string
	Fuse(inputs []FusionInput) (decimal.Decimal, bool)
}

// PooledMean fuses by equal-weight arithmetic mean.
type PooledMean struct{}

func (PooledMean) Name() string { return "pooled_mean" }

func (PooledMean) Fuse(inputs []FusionInput) (decimal.Decimal, bool) {
	if len(inputs) == 0 {
		return decimal.Decimal{}, false
	}
	sum := decimal.Decimal{}
	for _, in := range inputs {
		sum = sum.Add(in.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(inputs)))), true
}

// TrustWeighted fuses by a fixed per-venue weight; venues missing from the
// map weigh 1.
type TrustWeighted struct {
	Weights map[domain.Venue]decimal.Decimal
}

func (TrustWeighted) Name() string { return "trust_weighted" }

func (f TrustWeighted) Fuse(inputs []FusionInput) (decimal.Decimal, bool) {
	if len(inputs) == 0 {
		return decimal.Decimal{}, false
	}
	one := decimal.NewFromInt(1)
	sum := decimal.Decimal{}
	total := decimal.Decimal{}
	for _, in := range inputs {
		w, ok := f.Weights[in.Venue]
		if !ok || !w.IsPositive() {
			w = one
		}
		sum = sum.Add(in.Price.Mul(w))
		total = total.Add(w)
	}
	if total.IsZero() {
		return decimal.Decimal{}, false
	}
	return sum.Div(total), true
}
