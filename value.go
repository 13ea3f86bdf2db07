// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"fmt"
	"math/big"
	"strings"
)

// Local values exchanged with a Module are:
//
//	bool       Cryptol Bit
//	BitVector  Cryptol words ([n])
//	Sequence   non-word sequences ([n]a)
//	Tuple      tuples
//	Record     records
//	*Function  remote functions
//	nil        the absent (zero-width) value

// Sequence is an ordered list of values with a uniform element type.
type Sequence []any

// Tuple is a fixed-arity list of values of possibly different types.
type Tuple []any

// Record maps field names to values.
type Record map[string]any

// BitVector is a fixed-width unsigned word. The magnitude is always reduced
// modulo 2^Width.
type BitVector struct {
	width uint
	value *big.Int
}

// NewBitVector returns a width-bit vector holding value mod 2^width. A nil
// value is zero.
func NewBitVector(width uint, value *big.Int) BitVector {
	if value == nil {
		return BitVector{width: width, value: new(big.Int)}
	}
	return BitVector{width: width, value: reduce(width, value)}
}

// reduce returns value mod 2^width. Non-negative magnitudes are masked
// with at most BitLen bits so a wide word with a small value stays cheap.
func reduce(width uint, value *big.Int) *big.Int {
	if value.Sign() >= 0 {
		if uint(value.BitLen()) <= width {
			return new(big.Int).Set(value)
		}
		mask := new(big.Int).Sub(modulus(width), big.NewInt(1))
		return mask.And(mask, value)
	}
	return new(big.Int).Mod(value, modulus(width))
}

// BitVectorFromUint64 returns a width-bit vector holding v mod 2^width.
func BitVectorFromUint64(width uint, v uint64) BitVector {
	return NewBitVector(width, new(big.Int).SetUint64(v))
}

// ParseBitVector parses a hexadecimal string, with or without a 0x prefix,
// into a vector four bits wide per digit.
func ParseBitVector(hex string) (BitVector, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(hex, "0x"), "0X")
	if digits == "" {
		return BitVector{}, fmt.Errorf("parsing bit vector %q: no digits", hex)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return BitVector{}, fmt.Errorf("parsing bit vector %q: invalid hexadecimal", hex)
	}
	return NewBitVector(uint(4*len(digits)), v), nil
}

// BitVectorFromBits packs bits into a vector. The first bit is the most
// significant, matching Cryptol's big-endian sequence order.
func BitVectorFromBits(bits []bool) BitVector {
	v := new(big.Int)
	for _, bit := range bits {
		v.Lsh(v, 1)
		if bit {
			v.SetBit(v, 0, 1)
		}
	}
	return BitVector{width: uint(len(bits)), value: v}
}

func modulus(width uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), width)
}

// Width returns the number of bits.
func (b BitVector) Width() uint { return b.width }

// Int returns a copy of the magnitude.
func (b BitVector) Int() *big.Int {
	if b.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.value)
}

// Uint64 returns the low 64 bits of the magnitude.
func (b BitVector) Uint64() uint64 {
	if b.value == nil {
		return 0
	}
	return new(big.Int).And(b.value, new(big.Int).SetUint64(^uint64(0))).Uint64()
}

// Bits returns the bits most significant first.
func (b BitVector) Bits() []bool {
	bits := make([]bool, b.width)
	v := b.Int()
	for i := uint(0); i < b.width; i++ {
		bits[b.width-1-i] = v.Bit(int(i)) == 1
	}
	return bits
}

// Equal reports whether b and other have the same width and magnitude.
func (b BitVector) Equal(other BitVector) bool {
	return b.width == other.width && b.Int().Cmp(other.Int()) == 0
}

// String renders the vector as zero-padded hexadecimal.
func (b BitVector) String() string {
	digits := int((b.width + 3) / 4)
	return fmt.Sprintf("0x%0*x", digits, b.Int())
}

// Equal reports whether two local values are structurally equal. Bit vectors
// compare by width and magnitude; functions compare by identity.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case BitVector:
		switch y := b.(type) {
		case BitVector:
			return x.Equal(y)
		case *BitVector:
			return y != nil && x.Equal(*y)
		}
		return false
	case *BitVector:
		if x == nil {
			return b == nil
		}
		return Equal(*x, b)
	case Tuple:
		y, ok := b.(Tuple)
		return ok && equalSlices(x, y)
	case Sequence:
		y, ok := b.(Sequence)
		return ok && equalSlices(x, y)
	case []any:
		y, ok := b.([]any)
		return ok && equalSlices(x, y)
	case Record:
		y, ok := b.(Record)
		return ok && equalFields(x, y)
	case map[string]any:
		y, ok := b.(map[string]any)
		return ok && equalFields(x, y)
	case *Function:
		y, ok := b.(*Function)
		return ok && x == y
	}
	return false
}

func equalSlices(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalFields(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for name, value := range a {
		other, ok := b[name]
		if !ok || !Equal(value, other) {
			return false
		}
	}
	return true
}
