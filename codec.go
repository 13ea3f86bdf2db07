// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// JSONCodec is the codec spoken by the Cryptol server. Numbers are decoded as
// json.Number so function handles and wide word magnitudes survive intact.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return decodeJSON(data, v)
}

func (JSONCodec) String() string { return "json" }

func decodeJSON(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(v)
}

// CBORCodec encodes messages as CBOR using Core Deterministic Encoding. It is
// for gateways that front the interpreter with a binary protocol; message
// types carry json tags, which fxamacker/cbor reads as a fallback.
type CBORCodec struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cryptol: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		// Decoding into any must yield string-keyed maps, matching JSON.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("cryptol: CBOR decoder initialization failed: " + err.Error())
	}
}

func (CBORCodec) Encode(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (CBORCodec) Decode(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

func (CBORCodec) String() string { return "cbor" }

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}

// CodecByName returns the codec registered under name ("json" or "cbor").
func CodecByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return JSONCodec{}, true
	case "cbor":
		return CBORCodec{}, true
	}
	return nil, false
}
