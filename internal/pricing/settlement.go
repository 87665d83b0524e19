package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrSettlementNotFinal is returned when the offering has not concluded
// successfully; there is no defensible price before finality.
var ErrSettlementNotFinal = errors.New("offering settlement is not final")

// markupFactor raises the settlement end price by a fixed 2% so the pool
// opens slightly above the offering's closing price.
var markupFactor = decimal.RequireFromString("1.02")

// Source tags where a quote's ratio came from.
type Source string

const (
	SourceSettlement Source = "settlement"
	SourceFallback   Source = "fallback"
)

// Quote is a markup-adjusted token<=>reserve exchange rate. It is recomputed
// on every bootstrap attempt and never persisted, so it always reflects the
// current settlement state.
type Quote struct {
	// TokenPerReserveRatio is how many project tokens one unit of the
	// reserve asset buys at the quoted price. Always positive.
	TokenPerReserveRatio decimal.Decimal
	// EndPriceUSD is the settlement-implied USD price per token before
	// markup. Zero for fallback quotes.
	EndPriceUSD decimal.Decimal
	Source      Source
}

// SettlementSource exposes the IAO contract's settlement facts as
// point-in-time reads.
type SettlementSource interface {
	IsFinalized(ctx context.Context, offeringID string) (bool, error)
	TotalReserveDeposited(ctx context.Context, offeringID string) (decimal.Decimal, error)
}

// PriceFeed provides the reserve asset's current USD price.
type PriceFeed interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
}

// Config fixes the offering parameters that are configured rather than read
// from chain state.
type Config struct {
	// TokensSold is the fixed fraction of supply allocated to the
	// offering, in token units.
	TokensSold decimal.Decimal
	// FallbackRatio is the ratio used when settlement reads fail after
	// finality. Must be positive.
	FallbackRatio decimal.Decimal
}

// Pricer derives exchange-rate quotes from settlement facts.
type Pricer struct {
	cfg        Config
	settlement SettlementSource
	feed       PriceFeed
	logger     *zap.Logger
}

func NewPricer(cfg Config, settlement SettlementSource, feed PriceFeed, logger *zap.Logger) (*Pricer, error) {
	if settlement == nil {
		return nil, fmt.Errorf("settlement source is nil")
	}
	if feed == nil {
		return nil, fmt.Errorf("price feed is nil")
	}
	if cfg.TokensSold.Sign() <= 0 {
		return nil, fmt.Errorf("tokens sold must be positive, got %s", cfg.TokensSold)
	}
	if cfg.FallbackRatio.Sign() <= 0 {
		return nil, fmt.Errorf("fallback ratio must be positive, got %s", cfg.FallbackRatio)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pricer{cfg: cfg, settlement: settlement, feed: feed, logger: logger}, nil
}

// QuoteFor computes the exchange rate for a finalized offering. The finality
// gate fails closed: a finality read error is returned, never degraded,
// because distributing liquidity for an offering that never settled is not
// recoverable. Once finality is established, a failed settlement or feed
// read degrades to the configured fallback ratio instead of failing the
// bootstrap; the Source tag surfaces this.
func (p *Pricer) QuoteFor(ctx context.Context, offeringID string) (Quote, error) {
	finalized, err := p.settlement.IsFinalized(ctx, offeringID)
	if err != nil {
		return Quote{}, fmt.Errorf("read finality for offering %s: %w", offeringID, err)
	}
	if !finalized {
		return Quote{}, fmt.Errorf("offering %s: %w", offeringID, ErrSettlementNotFinal)
	}

	deposited, err := p.settlement.TotalReserveDeposited(ctx, offeringID)
	if err != nil {
		return p.fallback(offeringID, fmt.Errorf("read deposits: %w", err)), nil
	}
	if deposited.Sign() <= 0 {
		return p.fallback(offeringID, fmt.Errorf("non-positive deposits %s", deposited)), nil
	}

	reserveUSD, err := p.feed.CurrentPrice(ctx)
	if err != nil {
		return p.fallback(offeringID, fmt.Errorf("read reserve price: %w", err)), nil
	}
	if reserveUSD.Sign() <= 0 {
		return p.fallback(offeringID, fmt.Errorf("non-positive reserve price %s", reserveUSD)), nil
	}

	endPriceUSD := deposited.Mul(reserveUSD).DivRound(p.cfg.TokensSold, 40)

	// Tokens per reserve unit at the marked-up price: USD per reserve
	// divided by the marked-up USD per token.
	ratio := reserveUSD.DivRound(endPriceUSD.Mul(markupFactor), 40)
	if ratio.Sign() <= 0 {
		return p.fallback(offeringID, fmt.Errorf("non-positive ratio %s", ratio)), nil
	}

	p.logger.Info("settlement quote",
		zap.String("offering", offeringID),
		zap.String("deposited", deposited.String()),
		zap.String("reserve_usd", reserveUSD.String()),
		zap.String("end_price_usd", endPriceUSD.String()),
		zap.String("token_per_reserve", ratio.String()))

	return Quote{
		TokenPerReserveRatio: ratio,
		EndPriceUSD:          endPriceUSD,
		Source:               SourceSettlement,
	}, nil
}

// fallback degrades to the configured ratio. Logged at Warn so operators see
// every degraded quote; the bootstrap proceeds with the Source tag set.
func (p *Pricer) fallback(offeringID string, cause error) Quote {
	p.logger.Warn("settlement pricing degraded to fallback ratio",
		zap.String("offering", offeringID),
		zap.String("fallback_ratio", p.cfg.FallbackRatio.String()),
		zap.Error(cause))
	return Quote{
		TokenPerReserveRatio: p.cfg.FallbackRatio,
		Source:               SourceFallback,
	}
}
