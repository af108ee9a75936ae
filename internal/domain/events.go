package domain

import (
	"context"
	"math/big"
	"time"
)

// Event bus channels for settlement side effects.
const (
	ChannelTradeSettled = "trades.settled"
	ChannelFeeCollected = "fees.collected"
)

// TradeSettledEvent is published after every successful trade. AmountOut is
// the net amount the trader received.
type TradeSettledEvent struct {
	TradeID   string    `json:"trade_id"`
	SrcAsset  string    `json:"src_asset"`
	AmountIn  *big.Int  `json:"amount_in"`
	DestAsset string    `json:"dest_asset"`
	AmountOut *big.Int  `json:"amount_out"`
	Trader    string    `json:"trader"`
	Timestamp time.Time `json:"timestamp"`
}

// FeeCollectedEvent is published only when a non-zero fee was transferred.
// PartnerIndex is the index actually billed, which may be the fallback 0
// rather than the caller-supplied index.
type FeeCollectedEvent struct {
	TradeID       string    `json:"trade_id"`
	PartnerIndex  int       `json:"partner_index"`
	Asset         string    `json:"asset"`
	PartnerWallet string    `json:"partner_wallet"`
	Amount        *big.Int  `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventBus publishes settlement events to interested consumers. Publish is
// ephemeral fan-out; StreamAppend is durable, ordered delivery.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// StreamMessage is one durable entry read back from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
