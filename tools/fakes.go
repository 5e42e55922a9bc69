package tools

import (
	"context"
	"time"
)

// DeterministicFetcher is a fixed-response implementation of every fetcher
// interface in this package, used where a real market-data adapter isn't
// wired (local development, tests) — the fetch adapters themselves are out
// of scope per the spec's Non-goals, but callers still need something
// behind the tool contract.
type DeterministicFetcher struct{}

func (DeterministicFetcher) Quote(ctx context.Context, symbol string) (float64, float64, float64, time.Time, error) {
	return 100.0, 1.25, 0.0125, time.Now().UTC(), nil
}

func (DeterministicFetcher) History(ctx context.Context, symbol string, days int) ([]float64, error) {
	closes := make([]float64, days)
	for i := range closes {
		closes[i] = 100.0 + float64(i%5)
	}
	return closes, nil
}

func (DeterministicFetcher) Earnings(ctx context.Context, symbol string) (float64, float64, time.Time, error) {
	return 1.10, 1.05, time.Now().UTC().AddDate(0, 0, -30), nil
}

func (DeterministicFetcher) DividendHistory(ctx context.Context, symbol string) (float64, float64, error) {
	return 0.018, 0.35, nil
}

func (DeterministicFetcher) Indicator(ctx context.Context, name string) (float64, time.Time, error) {
	return 3.75, time.Now().UTC(), nil
}

var (
	_ QuoteFetcher             = DeterministicFetcher{}
	_ HistoryFetcher           = DeterministicFetcher{}
	_ EarningsFetcher          = DeterministicFetcher{}
	_ DividendFetcher          = DeterministicFetcher{}
	_ EconomicIndicatorFetcher = DeterministicFetcher{}
)
