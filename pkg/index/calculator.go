package index

import (
	"errors"
	"fmt"
	"time"
)

// QuoteStats counts what happened to the quotes of one snapshot.
type QuoteStats struct {
	Raw         int `json:"raw"`
	ParseErrors int `json:"parse_errors"`
	MissingData int `json:"missing_data"`
	Normalized  int `json:"normalized"`
	Rejected    int `json:"rejected"`
	Accepted    int `json:"accepted"`
}

// TermResult is the raw (unsmoothed) outcome of one snapshot.
type TermResult struct {
	At         time.Time        `json:"at"`
	Near       VarianceEstimate `json:"near"`
	Next       VarianceEstimate `json:"next"`
	WeightNear float64          `json:"weight_near"`
	WeightNext float64          `json:"weight_next"`
	Sigma2Raw  float64          `json:"sigma2_raw"`
	Stats      QuoteStats       `json:"stats"`
}

// Calculator runs the index pipeline for one snapshot at a time. It holds no
// cycle state; smoothing state lives in IndexState.
type Calculator struct {
	params     Params
	normalizer *Normalizer
	validator  Validator
	otm        OTMFilter
	lambda     float64
}

// NewCalculator validates params and builds a calculator.
func NewCalculator(p Params) (*Calculator, error) {
	p = p.WithDefaults()
	switch {
	case p.SpreadMultiplier <= 0:
		return nil, fmt.Errorf("%w: spread multiplier %v", ErrInvalidParams, p.SpreadMultiplier)
	case p.SpreadMin < 0:
		return nil, fmt.Errorf("%w: spread min %v", ErrInvalidParams, p.SpreadMin)
	case p.IndexMaturityDays <= 0:
		return nil, fmt.Errorf("%w: index maturity %v days", ErrInvalidParams, p.IndexMaturityDays)
	case p.RangeMult <= 1:
		return nil, fmt.Errorf("%w: range multiplier %v must exceed 1", ErrInvalidParams, p.RangeMult)
	case p.BidCutoff < 1:
		return nil, fmt.Errorf("%w: bid cutoff %d", ErrInvalidParams, p.BidCutoff)
	case p.HalfLife <= 0:
		return nil, fmt.Errorf("%w: half-life %v", ErrInvalidParams, p.HalfLife)
	case p.ExpiryHourUTC < 0 || p.ExpiryHourUTC > 23:
		return nil, fmt.Errorf("%w: expiry hour %d", ErrInvalidParams, p.ExpiryHourUTC)
	}

	return &Calculator{
		params:     p,
		normalizer: NewNormalizer(p.ExpiryHourUTC),
		validator:  NewValidator(p.SpreadMultiplier, p.SpreadMin),
		otm:        OTMFilter{RangeMult: p.RangeMult, BidCutoff: p.BidCutoff, IncludeATM: p.IncludeATM},
		lambda:     Lambda(p.HalfLife),
	}, nil
}

// Params returns the effective parameters.
func (c *Calculator) Params() Params {
	return c.params
}

// Lambda returns the EWMA decay derived from the half-life.
func (c *Calculator) Lambda() float64 {
	return c.lambda
}

// Prepare normalizes and validates the snapshot.
func (c *Calculator) Prepare(s Snapshot) ([]Quote, QuoteStats) {
	stats := QuoteStats{Raw: len(s.Quotes)}

	quotes, errs := c.normalizer.Normalize(s)
	for _, err := range errs {
		if errors.Is(err, ErrMissingData) {
			stats.MissingData++
		} else {
			stats.ParseErrors++
		}
	}
	stats.Normalized = len(quotes)

	valid, rejected := c.validator.Filter(quotes)
	stats.Rejected = rejected
	stats.Accepted = len(valid)
	return valid, stats
}

// BucketVariance runs forward estimation, ATM/OTM selection and the variance
// formula for one expiry bucket.
func (c *Calculator) BucketVariance(b ExpiryBucket, now time.Time) (VarianceEstimate, error) {
	est := VarianceEstimate{Expiry: b.Expiry, Term: b.Term}

	fwd, err := EstimateForward(b.Expiry, b.Calls, b.Puts)
	if err != nil {
		return est, err
	}
	est.Fimp = fwd.Fimp

	katm, err := ATMStrike(b.Quotes(), fwd.Fimp)
	if err != nil {
		return est, fmt.Errorf("%w: %w", ErrEmptyBucket, err)
	}
	est.KATM = katm

	grid := c.otm.Select(b, fwd.Fimp, katm)
	if len(grid) == 0 {
		return est, fmt.Errorf("%w: no OTM strikes for %s", ErrEmptyBucket, b.Expiry.Format("2006-01-02"))
	}

	t := TimeToMaturity(b.Expiry, now)
	est.T = t
	est.Strikes = len(grid)
	est.Rate = ImpliedRate(fwd.Fimp, katm, t)
	est.ImpliedRate = ImpliedInterestRate(fwd.Fimp, MedianUnderlying(b.Quotes()), t)
	est.Sigma2 = ImpliedVariance(grid, fwd.Fimp, katm, t)
	return est, nil
}

// RawVariance selects the near and next term buckets from validated quotes
// and blends their variances to the index maturity.
func (c *Calculator) RawVariance(quotes []Quote, now time.Time) (TermResult, error) {
	res := TermResult{At: now}

	sel, err := SelectTerms(quotes, now, c.params.IndexMaturityDays)
	if err != nil {
		return res, err
	}
	if sel.Near == nil {
		return res, fmt.Errorf("%w: no near term expiry", ErrEmptyBucket)
	}
	if sel.Next == nil {
		return res, fmt.Errorf("%w: no next term expiry", ErrEmptyBucket)
	}

	near, err := c.BucketVariance(*sel.Near, now)
	if err != nil {
		return res, fmt.Errorf("near term: %w", err)
	}
	next, err := c.BucketVariance(*sel.Next, now)
	if err != nil {
		return res, fmt.Errorf("next term: %w", err)
	}

	tIndex := c.params.IndexMaturityDays / daysPerYear
	res.Near = near
	res.Next = next
	res.WeightNear, res.WeightNext = BlendWeights(near.T, next.T, tIndex)
	res.Sigma2Raw = RawVariance(res.WeightNear, near.Sigma2, res.WeightNext, next.Sigma2)
	return res, nil
}

// Compute runs the full raw pipeline for a snapshot. A panic anywhere in the
// pipeline is returned as ErrComputation.
func (c *Calculator) Compute(s Snapshot, now time.Time) (res TermResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrComputation, r)
		}
	}()

	quotes, stats := c.Prepare(s)
	res, err = c.RawVariance(quotes, now)
	res.Stats = stats
	return res, err
}

// Step advances the smoothing state with a new raw variance.
func (c *Calculator) Step(state IndexState, raw float64, at time.Time) IndexState {
	return state.Advance(raw, c.lambda, at, c.params.HistorySize)
}
