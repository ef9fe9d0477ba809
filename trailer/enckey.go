package trailer

import (
	"fmt"

	"github.com/dargueta/bootswap"
)

// EncKeyState reports whether an encryption key slot held material.
type EncKeyState int

const (
	// EncKeyPresent means key material was read (and, in TLV mode,
	// unwrapped) successfully.
	EncKeyPresent EncKeyState = iota
	// EncKeyAbsent means the slot still reads as erased flash; the image is
	// not encrypted with a key from this slot and no unwrap was attempted.
	EncKeyAbsent
)

// UnwrapFunc is the external key-unwrap routine: it derives the plaintext
// image key from a stored key TLV. It is only invoked in TLV storage mode
// and only on a non-erased slot.
type UnwrapFunc func(tlv []byte, key []byte) error

// EncKeyOff returns the offset of encryption key slot `slot` in the bound
// area.
func (t *Trailer) EncKeyOff(slot int) (uint32, error) {
	if !t.p.EncryptImages {
		return 0, bootswap.ErrNotSupported.WithMessage(
			"trailer has no encryption key slots")
	}
	if slot < 0 || slot > 1 {
		return 0, bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("key slot %d not in [0, 2)", slot))
	}
	return t.p.EncKeyOff(t.area.Size(), slot), nil
}

// storedKeyLen returns how many stored bytes a key slot carries: the bare
// key, or the whole TLV.
func (t *Trailer) storedKeyLen() int {
	if t.p.SaveEncTLV {
		return EncTLVLen
	}
	return EncKeyLen
}

// ReadEncKey reads key slot `slot` into key, which must hold at least
// EncKeyLen bytes. A fully-erased slot is reported as EncKeyAbsent and key
// is left untouched. In TLV mode the stored TLV is passed through unwrap to
// produce the key.
func (t *Trailer) ReadEncKey(slot int, key []byte, unwrap UnwrapFunc) (EncKeyState, error) {
	offset, err := t.EncKeyOff(slot)
	if err != nil {
		return EncKeyAbsent, err
	}
	if len(key) < EncKeyLen {
		return EncKeyAbsent, bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("key buffer needs %d bytes, got %d", EncKeyLen, len(key)))
	}

	cell := make([]byte, t.p.EncAlign())
	if err := t.area.Read(offset, cell); err != nil {
		return EncKeyAbsent, err
	}
	stored := cell[:t.storedKeyLen()]

	// The erased scan runs over every stored byte. The erased value is a
	// device property: on some parts erased flash reads 0x00, so 0xFF must
	// not be assumed here.
	erasedCount := 0
	for _, b := range stored {
		if b == t.p.ErasedVal {
			erasedCount++
		}
	}
	if erasedCount == len(stored) {
		return EncKeyAbsent, nil
	}

	if t.p.SaveEncTLV {
		if unwrap == nil {
			return EncKeyAbsent, bootswap.ErrNotSupported.WithMessage(
				"TLV key storage requires an unwrap routine")
		}
		if err := unwrap(stored, key[:EncKeyLen]); err != nil {
			return EncKeyAbsent, err
		}
		return EncKeyPresent, nil
	}

	copy(key[:EncKeyLen], stored)
	return EncKeyPresent, nil
}

// WriteEncKey stores key material into slot `slot`. The material must be
// exactly EncKeyLen bytes (bare-key mode) or EncTLVLen bytes (TLV mode); it
// is padded to the slot cell with the erased value.
func (t *Trailer) WriteEncKey(slot int, material []byte) error {
	offset, err := t.EncKeyOff(slot)
	if err != nil {
		return err
	}
	if len(material) != t.storedKeyLen() {
		return bootswap.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("key material must be %d bytes, got %d",
				t.storedKeyLen(), len(material)))
	}

	cell := t.erasedCell(t.p.EncAlign())
	copy(cell, material)
	return t.area.Write(offset, cell)
}
