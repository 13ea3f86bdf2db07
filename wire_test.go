// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestWireValueJSONShape(t *testing.T) {
	tests := []struct {
		wire WireValue
		want string
	}{
		{BitWire(true), `{"bit":true}`},
		{WordWire(8, big.NewInt(19)), `{"word":{"bitvector":{"width":8,"value":19}}}`},
		{SequenceWire(false, BitWire(false)), `{"sequence":{"isWord":false,"elements":[{"bit":false}]}}`},
		{SequenceWire(true), `{"sequence":{"isWord":true,"elements":[]}}`},
		{TupleWire(), `{"tuple":[]}`},
		{
			RecordWire(WireField{Name: "x", Value: BitWire(true)}),
			`{"record":[[{"Name":"x"},{"bit":true}]]}`,
		},
		{FunctionWire(3), `{"function":{"handle":3}}`},
		{WireValue{Kind: WireError, Message: "boom"}, `{"error":"boom"}`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.wire)
		if err != nil {
			t.Fatalf("Marshal(%s): %v", tt.wire.Kind, err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal(%s) = %s, want %s", tt.wire.Kind, got, tt.want)
		}
	}
}

func TestWireValueDecodeServerJSON(t *testing.T) {
	data := `{"tuple":[
		{"word":{"bitvector":{"width":128,"value":57811460909138771071931939740208549692}}},
		{"record":[[{"Name":"ok"},{"bit":true}]]},
		{"sequence":{"isWord":true,"elements":[{"bit":true},{"bit":false}]}},
		{"function":{"handle":12}}
	]}`
	var wire WireValue
	if err := (JSONCodec{}).Decode([]byte(data), &wire); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if wire.Kind != WireTuple || len(wire.Elements) != 4 {
		t.Fatalf("decoded %s with %d elements", wire.Kind, len(wire.Elements))
	}
	if handle, ok := wire.Elements[3].Handle.(json.Number); !ok || handle.String() != "12" {
		t.Errorf("handle = %#v, want json.Number 12", wire.Elements[3].Handle)
	}

	value, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	key, _ := ParseBitVector("2b7e151628aed2a6abf7158809cf4f3c")
	want := Tuple{key, Record{"ok": true}, BitVectorFromUint64(2, 2), nil}
	if !Equal(value, want) {
		t.Errorf("decoded %v, want %v", value, want)
	}
}

func TestWireValueRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		`{}`,
		`{"bit":true,"tuple":[]}`,
		`{"unknown":1}`,
		`{"record":[[{"Name":"x"}]]}`,
		`[1,2]`,
	} {
		var wire WireValue
		if err := (JSONCodec{}).Decode([]byte(data), &wire); err == nil {
			t.Errorf("Decode(%s) succeeded with %+v", data, wire)
		}
	}
}

func TestWireValueCBORRoundTrip(t *testing.T) {
	key, _ := ParseBitVector("2b7e151628aed2a6abf7158809cf4f3c")
	original := Tuple{
		key,
		Record{"a": true, "b": Sequence{BitVectorFromUint64(3, 5)}},
		false,
	}
	wire, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	codec := CBORCodec{}
	data, err := codec.Encode(wire)
	if err != nil {
		t.Fatalf("cbor encode: %v", err)
	}
	var decoded WireValue
	if err := codec.Decode(data, &decoded); err != nil {
		t.Fatalf("cbor decode: %v", err)
	}
	got, err := Decode(decoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !Equal(got, original) {
		t.Errorf("cbor round trip gave %v, want %v", got, original)
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "json", "cbor"} {
		if _, ok := CodecByName(name); !ok {
			t.Errorf("CodecByName(%q) not found", name)
		}
	}
	if _, ok := CodecByName("msgpack"); ok {
		t.Error("CodecByName(msgpack) found")
	}
}
