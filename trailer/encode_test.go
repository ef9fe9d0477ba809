package trailer_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/bootswap"
	"github.com/dargueta/bootswap/flash"
	btesting "github.com/dargueta/bootswap/testing"
	"github.com/dargueta/bootswap/trailer"
)

// Everything EncodeInfo seeds must read back identically through the
// per-field accessors, since the CLI and fixtures use one and the device
// uses the other.
func TestEncodeInfoMatchesTrailerReaders(t *testing.T) {
	p := trailer.Params{EncryptImages: true}
	key0 := bytes.Repeat([]byte{0x11}, trailer.EncKeyLen)

	sim := btesting.NewSeededArea(
		t, flash.ImagePrimary(0), 8, 0xFF,
		btesting.UniformSectors(0x1000, 8), p,
		trailer.InfoSeed{
			Magic:       true,
			SwapType:    bootswap.SwapPerm,
			Image:       1,
			CopyDone:    true,
			SwapSize:    0x12345678,
			HasSwapSize: true,
			EncKeys:     [2][]byte{key0, nil},
		})
	tr := trailer.New(sim, p)

	state, err := tr.ReadState()
	require.NoError(t, err)
	assert.Equal(t, trailer.MagicGood, state.Magic)
	assert.Equal(t, bootswap.SwapPerm, state.Swap.Type)
	assert.Equal(t, 1, state.Swap.Image)
	assert.Equal(t, trailer.FlagSet, state.CopyDone)
	assert.Equal(t, trailer.FlagUnset, state.ImageOk)

	size, err := tr.ReadSwapSize()
	require.NoError(t, err)
	assert.EqualValues(t, 0x12345678, size)

	key := make([]byte, trailer.EncKeyLen)
	keyState, err := tr.ReadEncKey(0, key, nil)
	require.NoError(t, err)
	assert.Equal(t, trailer.EncKeyPresent, keyState)
	assert.Equal(t, key0, key)

	keyState, err = tr.ReadEncKey(1, key, nil)
	require.NoError(t, err)
	assert.Equal(t, trailer.EncKeyAbsent, keyState)
}

func TestEncodeInfoValidation(t *testing.T) {
	p := trailer.Params{WriteAlign: 8, ErasedVal: 0xFF}

	err := trailer.EncodeInfo(p, make([]byte, 10), trailer.InfoSeed{})
	assert.ErrorIs(t, err, bootswap.ErrInvalidArgument)

	enc := trailer.Params{WriteAlign: 8, ErasedVal: 0xFF, EncryptImages: true}
	err = trailer.EncodeInfo(enc, make([]byte, enc.InfoSize()), trailer.InfoSeed{
		EncKeys: [2][]byte{make([]byte, 7), nil},
	})
	assert.ErrorIs(t, err, bootswap.ErrInvalidArgument)
}

func TestEncodeInfoEmptySeedIsAllErased(t *testing.T) {
	p := trailer.Params{WriteAlign: 8, ErasedVal: 0xFF}
	buf := make([]byte, p.InfoSize())
	require.NoError(t, trailer.EncodeInfo(p, buf, trailer.InfoSeed{}))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, len(buf)), buf)
}
