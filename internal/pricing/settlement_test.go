package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type fakeSettlement struct {
	finalized    bool
	finalizedErr error
	deposited    decimal.Decimal
	depositedErr error
}

func (f fakeSettlement) IsFinalized(_ context.Context, _ string) (bool, error) {
	return f.finalized, f.finalizedErr
}

func (f fakeSettlement) TotalReserveDeposited(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.deposited, f.depositedErr
}

type fakeFeed struct {
	price decimal.Decimal
	err   error
}

func (f fakeFeed) CurrentPrice(_ context.Context) (decimal.Decimal, error) {
	return f.price, f.err
}

func newTestPricer(t *testing.T, settlement SettlementSource, feed PriceFeed) *Pricer {
	t.Helper()
	pricer, err := NewPricer(Config{
		TokensSold:    decimal.RequireFromString("10000"),
		FallbackRatio: decimal.RequireFromString("42"),
	}, settlement, feed, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pricer
}

func TestQuoteFromSettlement(t *testing.T) {
	pricer := newTestPricer(t,
		fakeSettlement{finalized: true, deposited: decimal.RequireFromString("1000")},
		fakeFeed{price: decimal.RequireFromString("2")},
	)

	quote, err := pricer.QuoteFor(context.Background(), "offering-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Source != SourceSettlement {
		t.Fatalf("source mismatch: %s != %s", quote.Source, SourceSettlement)
	}

	// End price: 1000 * 2 / 10000 = 0.2 USD per token.
	wantEnd := decimal.RequireFromString("0.2")
	if !quote.EndPriceUSD.Equal(wantEnd) {
		t.Fatalf("end price mismatch: %s != %s", quote.EndPriceUSD, wantEnd)
	}

	// Ratio: 2 / (0.2 * 1.02) tokens per reserve unit.
	wantRatio := decimal.RequireFromString("2").DivRound(decimal.RequireFromString("0.204"), 40)
	if !quote.TokenPerReserveRatio.Equal(wantRatio) {
		t.Fatalf("ratio mismatch: %s != %s", quote.TokenPerReserveRatio, wantRatio)
	}
}

func TestQuoteNotFinal(t *testing.T) {
	pricer := newTestPricer(t,
		fakeSettlement{finalized: false},
		fakeFeed{price: decimal.RequireFromString("2")},
	)

	_, err := pricer.QuoteFor(context.Background(), "offering-1")
	if !errors.Is(err, ErrSettlementNotFinal) {
		t.Fatalf("expected ErrSettlementNotFinal, got %v", err)
	}
}

func TestQuoteFinalityReadFailureIsFatal(t *testing.T) {
	pricer := newTestPricer(t,
		fakeSettlement{finalizedErr: errors.New("rpc down")},
		fakeFeed{price: decimal.RequireFromString("2")},
	)

	quote, err := pricer.QuoteFor(context.Background(), "offering-1")
	if err == nil {
		t.Fatalf("finality read failure must not degrade to a quote, got %+v", quote)
	}
	if quote.Source == SourceFallback {
		t.Fatalf("finality read failure must not produce a fallback quote")
	}
}

func TestQuoteFallsBackOnFeedFailure(t *testing.T) {
	pricer := newTestPricer(t,
		fakeSettlement{finalized: true, deposited: decimal.RequireFromString("1000")},
		fakeFeed{err: errors.New("feed down")},
	)

	quote, err := pricer.QuoteFor(context.Background(), "offering-1")
	if err != nil {
		t.Fatalf("fallback path should not fail: %v", err)
	}
	if quote.Source != SourceFallback {
		t.Fatalf("source mismatch: %s != %s", quote.Source, SourceFallback)
	}
	if !quote.TokenPerReserveRatio.Equal(decimal.RequireFromString("42")) {
		t.Fatalf("fallback ratio mismatch: %s != 42", quote.TokenPerReserveRatio)
	}
}

func TestQuoteFallsBackOnDepositFailure(t *testing.T) {
	pricer := newTestPricer(t,
		fakeSettlement{finalized: true, depositedErr: errors.New("rpc down")},
		fakeFeed{price: decimal.RequireFromString("2")},
	)

	quote, err := pricer.QuoteFor(context.Background(), "offering-1")
	if err != nil {
		t.Fatalf("fallback path should not fail: %v", err)
	}
	if quote.Source != SourceFallback {
		t.Fatalf("source mismatch: %s != %s", quote.Source, SourceFallback)
	}
}

func TestNewPricerValidation(t *testing.T) {
	_, err := NewPricer(Config{
		TokensSold:    decimal.Zero,
		FallbackRatio: decimal.New(1, 0),
	}, fakeSettlement{}, fakeFeed{}, nil)
	if err == nil {
		t.Fatalf("expected error for zero tokens sold")
	}

	_, err = NewPricer(Config{
		TokensSold:    decimal.New(1, 0),
		FallbackRatio: decimal.Zero,
	}, fakeSettlement{}, fakeFeed{}, nil)
	if err == nil {
		t.Fatalf("expected error for zero fallback ratio")
	}
}
