package stats

import (
	"context"
	"math"
	"sort"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// OutcomeSource reads per-message delivery outcomes for a campaign.
type OutcomeSource interface {
	Outcomes(ctx context.Context, campaignID int) ([]model.MessageOutcome, error)
}

// Aggregator computes campaign delivery statistics on demand.
type Aggregator struct {
	Source OutcomeSource
}

func NewAggregator(src OutcomeSource) *Aggregator {
	return &Aggregator{Source: src}
}

// ComputeStats counts a campaign's messages by status and computes the p50
// and p95 send latency over messages that have a SENT event. Percentiles are
// nil when nothing has been sent.
func (a *Aggregator) ComputeStats(ctx context.Context, campaignID int) (*model.CampaignStats, error) {
	outcomes, err := a.Source.Outcomes(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return Summarize(outcomes), nil
}

// Summarize folds message outcomes into campaign statistics.
func Summarize(outcomes []model.MessageOutcome) *model.CampaignStats {
	s := &model.CampaignStats{Total: len(outcomes)}
	latencies := make([]float64, 0, len(outcomes))

	for _, o := range outcomes {
		switch o.Status {
		case model.MessageStatusSent:
			s.Sent++
		case model.MessageStatusFailed:
			s.Failed++
		}
		if o.LatencyMs != nil {
			latencies = append(latencies, *o.LatencyMs)
		}
	}
	s.Queued = s.Total - s.Sent

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		p50 := Percentile(latencies, 0.50)
		p95 := Percentile(latencies, 0.95)
		s.P50Ms = &p50
		s.P95Ms = &p95
	}
	return s
}

// Percentile returns the p-th percentile (0 <= p <= 1) of sorted samples
// using continuous linear interpolation between closest ranks, the same
// definition as Postgres percentile_cont. It returns NaN for no samples.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
