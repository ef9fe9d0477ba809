package bootswap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dargueta/bootswap"
)

func TestSwapTypeValues(t *testing.T) {
	// The on-flash encoding is part of the format and must never drift.
	assert.EqualValues(t, 0x01, bootswap.SwapNone)
	assert.EqualValues(t, 0x02, bootswap.SwapTest)
	assert.EqualValues(t, 0x03, bootswap.SwapPerm)
	assert.EqualValues(t, 0x04, bootswap.SwapRevert)
	assert.EqualValues(t, 0x05, bootswap.SwapFail)

	assert.True(t, bootswap.SwapRevert.IsValid())
	assert.False(t, bootswap.SwapType(0x00).IsValid())
	assert.False(t, bootswap.SwapType(0x06).IsValid())
}

func TestSwapTypeString(t *testing.T) {
	assert.Equal(t, "permanent", bootswap.SwapPerm.String())
	assert.Equal(t, "SwapType(0x2a)", bootswap.SwapType(0x2A).String())
}

func TestStrategyUsesScratch(t *testing.T) {
	assert.True(t, bootswap.StrategySwapScratch.UsesScratch())
	assert.False(t, bootswap.StrategySwapMove.UsesScratch())
	assert.False(t, bootswap.StrategyOverwriteOnly.UsesScratch())
}
