// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"errors"
	"math/big"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key, err := ParseBitVector("2b7e151628aed2a6abf7158809cf4f3c")
	if err != nil {
		t.Fatalf("ParseBitVector: %v", err)
	}
	values := []any{
		true,
		false,
		BitVectorFromUint64(8, 19),
		key,
		Tuple{true, BitVectorFromUint64(4, 9)},
		Sequence{BitVectorFromUint64(8, 1), BitVectorFromUint64(8, 2)},
		Record{"key": key, "rounds": BitVectorFromUint64(4, 10)},
		Tuple{Record{"flag": false}, Sequence{Tuple{true}}},
	}
	for _, v := range values {
		wire, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		got, err := Decode(wire)
		if err != nil {
			t.Fatalf("Decode(Encode(%v)): %v", v, err)
		}
		if !Equal(got, v) {
			t.Errorf("round trip of %v gave %v", v, got)
		}
	}
}

func TestEncodeConvenienceForms(t *testing.T) {
	wire, err := Encode([]any{true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if wire.Kind != WireSequence || wire.IsWord {
		t.Errorf("[]any encoded as %s (isWord=%v)", wire.Kind, wire.IsWord)
	}

	wire, err = Encode(map[string]any{"b": true, "a": false})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if wire.Kind != WireRecord || len(wire.Fields) != 2 || wire.Fields[0].Name != "a" {
		t.Errorf("map encoded as %+v", wire)
	}

	bv := BitVectorFromUint64(8, 3)
	wire, err = Encode(&bv)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if wire.Kind != WireWord || wire.Width != 8 {
		t.Errorf("*BitVector encoded as %+v", wire)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	for _, v := range []any{nil, 42, "text", 1.5, Tuple{struct{}{}}, &Function{}} {
		_, err := Encode(v)
		var unsupported *UnsupportedValueError
		if !errors.As(err, &unsupported) {
			t.Errorf("Encode(%#v) error = %v, want UnsupportedValueError", v, err)
		}
	}
}

func TestDecodeZeroWidthWord(t *testing.T) {
	got, err := Decode(WordWire(0, big.NewInt(5)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != nil {
		t.Errorf("zero-width word decoded to %v, want nil", got)
	}
}

func TestDecodeReducesModulo(t *testing.T) {
	got, err := Decode(WordWire(8, big.NewInt(256+19)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	bv, ok := got.(BitVector)
	if !ok {
		t.Fatalf("decoded %T, want BitVector", got)
	}
	if bv.Width() != 8 || bv.Uint64() != 19 {
		t.Errorf("decoded %d bits holding %d, want 8 bits holding 19", bv.Width(), bv.Uint64())
	}
}

func TestDecodeWideWords(t *testing.T) {
	got, err := Decode(WordWire(MaxWordWidth, big.NewInt(1)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if bv := got.(BitVector); bv.Width() != MaxWordWidth || bv.Uint64() != 1 {
		t.Errorf("decoded %d bits holding %v", bv.Width(), bv)
	}

	var wire WireValue
	if err := wire.UnmarshalJSON([]byte(`{"word":{"bitvector":{"width":4294967296,"value":1}}}`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	_, err = Decode(wire)
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Errorf("Decode of an oversized word = %v, want ProtocolError", err)
	}
}

func TestDecodeWordSequence(t *testing.T) {
	wire := SequenceWire(true, BitWire(true), BitWire(false), BitWire(false), BitWire(true))
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !Equal(got, BitVectorFromUint64(4, 0b1001)) {
		t.Errorf("decoded %v, want 0x9", got)
	}

	empty, err := Decode(SequenceWire(true))
	if err != nil || empty != nil {
		t.Errorf("empty word sequence decoded to %v, %v", empty, err)
	}

	_, err = Decode(SequenceWire(true, BitWire(true), WordWire(8, big.NewInt(1))))
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Errorf("non-bit element error = %v, want ProtocolError", err)
	}
}

func TestDecodeNestedFunctionIsNil(t *testing.T) {
	got, err := Decode(TupleWire(BitWire(true), FunctionWire(7)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tuple := got.(Tuple)
	if len(tuple) != 2 || tuple[1] != nil {
		t.Errorf("nested function decoded to %v, want nil", tuple)
	}
}

func TestDecodeErrorValue(t *testing.T) {
	_, err := Decode(WireValue{Kind: WireError, Message: "division by 0"})
	var cryptolErr *CryptolError
	if !errors.As(err, &cryptolErr) || cryptolErr.Message != "division by 0" {
		t.Errorf("error value decoded to %v", err)
	}

	_, err = Decode(WireValue{})
	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Errorf("zero wire value error = %v, want ProtocolError", err)
	}
}
