package registry

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincore/aggregator/internal/domain"
)

type nopAdapter struct{}

func (nopAdapter) Quote(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (nopAdapter) Execute(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func TestRoutesAddAssignsDenseIndices(t *testing.T) {
	r := NewRoutes()

	require.Equal(t, 0, r.Add("uniswap", nopAdapter{}))
	require.Equal(t, 1, r.Add("sushiswap", nopAdapter{}))
	require.Equal(t, 2, r.Add("curve", nopAdapter{}))
	assert.Equal(t, 3, r.Count())

	route, err := r.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, "sushiswap", route.Name)
	assert.Equal(t, 1, route.Index)
	assert.True(t, route.Active)
}

func TestRoutesResolveOutOfRange(t *testing.T) {
	r := NewRoutes()
	r.Add("uniswap", nopAdapter{})

	_, err := r.Resolve(5)
	require.ErrorIs(t, err, domain.ErrInvalidRouteIndex)

	_, err = r.Resolve(-1)
	require.ErrorIs(t, err, domain.ErrInvalidRouteIndex)
}

func TestRoutesResolveInactive(t *testing.T) {
	r := NewRoutes()
	idx := r.Add("uniswap", nopAdapter{})

	require.NoError(t, r.SetActive(idx, false))
	_, err := r.Resolve(idx)
	require.ErrorIs(t, err, domain.ErrInvalidRouteIndex)

	// Reactivation restores resolution; the index is never reused.
	require.NoError(t, r.SetActive(idx, true))
	route, err := r.Resolve(idx)
	require.NoError(t, err)
	assert.Equal(t, idx, route.Index)
}

func TestRoutesSetActiveOutOfRange(t *testing.T) {
	r := NewRoutes()
	require.ErrorIs(t, r.SetActive(0, false), domain.ErrInvalidRouteIndex)
}
