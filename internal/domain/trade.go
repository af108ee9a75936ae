package domain

import (
	"math/big"
	"time"
)

// TradeOutcome is the result of a settled trade. NetAmountOut is what the
// trader received; GrossAmountOut - FeeAmount == NetAmountOut exactly.
type TradeOutcome struct {
	GrossAmountOut *big.Int
	FeeAmount      *big.Int
	NetAmountOut   *big.Int
}

// RouteQuote is one candidate's answer during best-rate discovery. A venue
// whose quote failed is represented with AmountOut = -1; the sentinel never
// participates in max selection as a valid candidate.
type RouteQuote struct {
	RouteIndex int
	AmountOut  *big.Int
}

// Failed reports whether this quote is the failure sentinel.
func (q RouteQuote) Failed() bool {
	return q.AmountOut == nil || q.AmountOut.Sign() < 0
}

// SplitQuote is the result of a two-route volume-split search. FractionA is
// an integer percentage of the total input routed through RouteIndexA; the
// complement goes through RouteIndexB.
type SplitQuote struct {
	RouteIndexA int
	RouteIndexB int
	FractionA   int
	FractionB   int
	AmountOut   *big.Int
}

// SettledTrade is the persisted record of one settled trade (single-route or
// split). Amounts are stored as decimal strings to survive any numeric range.
type SettledTrade struct {
	ID           string
	Trader       string
	SrcAsset     string
	DestAsset    string
	AmountIn     string
	GrossOut     string
	FeeAmount    string
	NetOut       string
	RouteIndexes []int32
	PartnerIndex int
	Timestamp    time.Time
}

// FeeRecord is the persisted record of one collected fee.
type FeeRecord struct {
	ID            string
	TradeID       string
	PartnerIndex  int
	PartnerWallet string
	Asset         string
	Amount        string
	Timestamp     time.Time
}

// ListOpts carries pagination and time filtering for store listings.
type ListOpts struct {
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}
