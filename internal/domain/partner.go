package domain

import "github.com/ethereum/go-ethereum/common"

// MaxFeeBps is the denominator of the fee rate: 10000 basis points = 100%.
const MaxFeeBps = 10000

// PartnerRecord is one partner fee tier. Index 0 always exists and is the
// fallback for any out-of-range partner index supplied by a caller.
type PartnerRecord struct {
	Index  int
	Wallet common.Address
	FeeBps int
	Name   string
}
