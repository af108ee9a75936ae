// Package fee computes the partner fee owed on a trade's gross output and
// decides loyalty-based fee exemption.
package fee

import (
	"math/big"

	"github.com/sincore/aggregator/internal/domain"
)

var bpsDenominator = big.NewInt(domain.MaxFeeBps)

// Compute returns the fee owed on grossAmountOut for the given partner tier.
// The fee is floor(gross * feeBps / 10000); integer division, never rounded
// up. An exempt trader pays no fee regardless of tier.
func Compute(grossAmountOut *big.Int, partner domain.PartnerRecord, exempt bool) *big.Int {
	if exempt || partner.FeeBps == 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(grossAmountOut, big.NewInt(int64(partner.FeeBps)))
	return fee.Div(fee, bpsDenominator)
}
