package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	reserveWallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	partnerWallet = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestPartnersSeedsDefaultAtIndexZero(t *testing.T) {
	p, err := NewPartners(reserveWallet, 10, "sincore")
	require.NoError(t, err)

	rec := p.Resolve(0)
	assert.Equal(t, 0, rec.Index)
	assert.Equal(t, reserveWallet, rec.Wallet)
	assert.Equal(t, 10, rec.FeeBps)
	assert.Equal(t, 1, p.Count())
}

func TestPartnersResolveFallsBackToZero(t *testing.T) {
	p, err := NewPartners(reserveWallet, 10, "sincore")
	require.NoError(t, err)
	_, err = p.Add(partnerWallet, 25, "acme")
	require.NoError(t, err)

	// An unknown index silently resolves to the default partner.
	for _, idx := range []int{-1, 2, 1001, 2501} {
		rec := p.Resolve(idx)
		assert.Equal(t, 0, rec.Index, "index %d should fall back", idx)
		assert.Equal(t, reserveWallet, rec.Wallet)
	}

	rec := p.Resolve(1)
	assert.Equal(t, partnerWallet, rec.Wallet)
	assert.Equal(t, 25, rec.FeeBps)
}

func TestPartnersUpdate(t *testing.T) {
	p, err := NewPartners(reserveWallet, 10, "sincore")
	require.NoError(t, err)

	require.NoError(t, p.Update(0, reserveWallet, 70, "sincore"))
	assert.Equal(t, 70, p.Resolve(0).FeeBps)

	require.Error(t, p.Update(3, partnerWallet, 10, "nope"))
}

func TestPartnersRejectFeeOutOfRange(t *testing.T) {
	_, err := NewPartners(reserveWallet, 10001, "sincore")
	require.Error(t, err)

	p, err := NewPartners(reserveWallet, 0, "sincore")
	require.NoError(t, err)
	_, err = p.Add(partnerWallet, -1, "acme")
	require.Error(t, err)
}
