// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// WireKind identifies the variant held by a WireValue.
type WireKind uint8

const (
	WireBit WireKind = iota + 1
	WireWord
	WireSequence
	WireTuple
	WireRecord
	WireFunction
	WireError
)

func (k WireKind) String() string {
	switch k {
	case WireBit:
		return "bit"
	case WireWord:
		return "word"
	case WireSequence:
		return "sequence"
	case WireTuple:
		return "tuple"
	case WireRecord:
		return "record"
	case WireFunction:
		return "function"
	case WireError:
		return "error"
	default:
		return fmt.Sprintf("wirekind(%d)", uint8(k))
	}
}

// WireValue is the tagged representation of a value exchanged with the
// server. On the wire it is an object with exactly one key naming the kind:
//
//	{"bit": true}
//	{"word": {"bitvector": {"width": 8, "value": 19}}}
//	{"sequence": {"isWord": false, "elements": [...]}}
//	{"tuple": [...]}
//	{"record": [[{"Name": "x"}, <value>], ...]}
//	{"function": {"handle": <opaque>}}
//	{"error": "<diagnostic>"}
type WireValue struct {
	Kind WireKind

	Bit bool

	// Width and Value describe a word. Value is the magnitude as sent; it is
	// reduced modulo 2^Width only when decoded.
	Width uint
	Value *big.Int

	// IsWord marks a sequence that decodes to a BitVector.
	IsWord bool

	// Elements holds sequence and tuple members.
	Elements []WireValue

	Fields []WireField

	// Handle is the server's opaque function identifier.
	Handle any

	Message string
}

// WireField is one named member of a record.
type WireField struct {
	Name  string
	Value WireValue
}

// BitWire returns a bit wire value.
func BitWire(b bool) WireValue { return WireValue{Kind: WireBit, Bit: b} }

// WordWire returns a word wire value carrying value unreduced.
func WordWire(width uint, value *big.Int) WireValue {
	return WireValue{Kind: WireWord, Width: width, Value: value}
}

// SequenceWire returns a sequence wire value.
func SequenceWire(isWord bool, elements ...WireValue) WireValue {
	return WireValue{Kind: WireSequence, IsWord: isWord, Elements: elements}
}

// TupleWire returns a tuple wire value.
func TupleWire(elements ...WireValue) WireValue {
	return WireValue{Kind: WireTuple, Elements: elements}
}

// RecordWire returns a record wire value.
func RecordWire(fields ...WireField) WireValue {
	return WireValue{Kind: WireRecord, Fields: fields}
}

// FunctionWire returns a function wire value for handle.
func FunctionWire(handle any) WireValue {
	return WireValue{Kind: WireFunction, Handle: handle}
}

type wireBitvector struct {
	Width uint     `json:"width"`
	Value *big.Int `json:"value"`
}

type wireWord struct {
	Bitvector wireBitvector `json:"bitvector"`
}

type wireSequence struct {
	IsWord   bool        `json:"isWord"`
	Elements []WireValue `json:"elements"`
}

type wireFieldName struct {
	Name string `json:"Name"`
}

type wireFunction struct {
	Handle any `json:"handle"`
}

// tree builds the single-key object both encoders marshal. Nested
// WireValues are left for the active encoder to marshal through the
// matching Marshaler.
func (w WireValue) tree() (map[string]any, error) {
	switch w.Kind {
	case WireBit:
		return map[string]any{"bit": w.Bit}, nil
	case WireWord:
		value := w.Value
		if value == nil {
			value = new(big.Int)
		}
		return map[string]any{"word": wireWord{Bitvector: wireBitvector{Width: w.Width, Value: value}}}, nil
	case WireSequence:
		return map[string]any{"sequence": wireSequence{IsWord: w.IsWord, Elements: nonNil(w.Elements)}}, nil
	case WireTuple:
		return map[string]any{"tuple": nonNil(w.Elements)}, nil
	case WireRecord:
		pairs := make([][2]any, len(w.Fields))
		for i, field := range w.Fields {
			pairs[i] = [2]any{wireFieldName{Name: field.Name}, field.Value}
		}
		return map[string]any{"record": pairs}, nil
	case WireFunction:
		return map[string]any{"function": wireFunction{Handle: w.Handle}}, nil
	case WireError:
		return map[string]any{"error": w.Message}, nil
	}
	return nil, fmt.Errorf("marshaling wire value: invalid kind %s", w.Kind)
}

func nonNil(elements []WireValue) []WireValue {
	if elements == nil {
		return []WireValue{}
	}
	return elements
}

func (w WireValue) MarshalJSON() ([]byte, error) {
	tree, err := w.tree()
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

func (w *WireValue) UnmarshalJSON(data []byte) error {
	return unmarshalWire[json.RawMessage](w, data, decodeJSON)
}

func (w WireValue) MarshalCBOR() ([]byte, error) {
	tree, err := w.tree()
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(tree)
}

func (w *WireValue) UnmarshalCBOR(data []byte) error {
	return unmarshalWire[cbor.RawMessage](w, data, cborDec.Unmarshal)
}

// unmarshalWire decodes a single-key wire object. R is the raw message type of
// the active format so nested values are deferred to the same decoder.
func unmarshalWire[R ~[]byte](w *WireValue, data []byte, decode func([]byte, any) error) error {
	var object map[string]R
	if err := decode(data, &object); err != nil {
		return fmt.Errorf("decoding wire value: %w", err)
	}
	if len(object) != 1 {
		return fmt.Errorf("decoding wire value: expected exactly one tag, got %d", len(object))
	}

	for tag, raw := range object {
		switch tag {
		case "bit":
			var bit bool
			if err := decode([]byte(raw), &bit); err != nil {
				return fmt.Errorf("decoding bit: %w", err)
			}
			*w = BitWire(bit)
		case "word":
			var word wireWord
			if err := decode([]byte(raw), &word); err != nil {
				return fmt.Errorf("decoding word: %w", err)
			}
			*w = WordWire(word.Bitvector.Width, word.Bitvector.Value)
		case "sequence":
			var sequence wireSequence
			if err := decode([]byte(raw), &sequence); err != nil {
				return fmt.Errorf("decoding sequence: %w", err)
			}
			*w = SequenceWire(sequence.IsWord, sequence.Elements...)
		case "tuple":
			var elements []WireValue
			if err := decode([]byte(raw), &elements); err != nil {
				return fmt.Errorf("decoding tuple: %w", err)
			}
			*w = TupleWire(elements...)
		case "record":
			var pairs [][]R
			if err := decode([]byte(raw), &pairs); err != nil {
				return fmt.Errorf("decoding record: %w", err)
			}
			fields := make([]WireField, 0, len(pairs))
			for _, pair := range pairs {
				if len(pair) != 2 {
					return fmt.Errorf("decoding record: field entry has %d elements, want 2", len(pair))
				}
				var name wireFieldName
				if err := decode([]byte(pair[0]), &name); err != nil {
					return fmt.Errorf("decoding record field name: %w", err)
				}
				var value WireValue
				if err := decode([]byte(pair[1]), &value); err != nil {
					return fmt.Errorf("decoding record field %q: %w", name.Name, err)
				}
				fields = append(fields, WireField{Name: name.Name, Value: value})
			}
			*w = RecordWire(fields...)
		case "function":
			var function wireFunction
			if err := decode([]byte(raw), &function); err != nil {
				return fmt.Errorf("decoding function: %w", err)
			}
			*w = FunctionWire(function.Handle)
		case "error":
			var message string
			if err := decode([]byte(raw), &message); err != nil {
				return fmt.Errorf("decoding error payload: %w", err)
			}
			*w = WireValue{Kind: WireError, Message: message}
		default:
			return fmt.Errorf("decoding wire value: unknown tag %q", tag)
		}
	}
	return nil
}
