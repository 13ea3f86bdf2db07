// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"sort"
)

// Encode converts a local value to its wire form. Sequences are always sent
// as non-word sequences and their elements are not checked for a uniform
// type.
func Encode(v any) (WireValue, error) {
	switch x := v.(type) {
	case bool:
		return BitWire(x), nil
	case BitVector:
		return WordWire(x.Width(), x.Int()), nil
	case *BitVector:
		if x == nil {
			break
		}
		return WordWire(x.Width(), x.Int()), nil
	case Sequence:
		return encodeSequence(x)
	case []any:
		return encodeSequence(x)
	case Tuple:
		elements, err := encodeAll(x)
		if err != nil {
			return WireValue{}, err
		}
		return TupleWire(elements...), nil
	case Record:
		return encodeRecord(x)
	case map[string]any:
		return encodeRecord(x)
	}
	return WireValue{}, &UnsupportedValueError{Value: v}
}

func encodeSequence(values []any) (WireValue, error) {
	elements, err := encodeAll(values)
	if err != nil {
		return WireValue{}, err
	}
	return SequenceWire(false, elements...), nil
}

func encodeAll(values []any) ([]WireValue, error) {
	elements := make([]WireValue, len(values))
	for i, value := range values {
		element, err := Encode(value)
		if err != nil {
			return nil, err
		}
		elements[i] = element
	}
	return elements, nil
}

func encodeRecord(record map[string]any) (WireValue, error) {
	names := sortedNames(record)
	fields := make([]WireField, len(names))
	for i, name := range names {
		value, err := Encode(record[name])
		if err != nil {
			return WireValue{}, err
		}
		fields[i] = WireField{Name: name, Value: value}
	}
	return RecordWire(fields...), nil
}

func sortedNames(record map[string]any) []string {
	names := make([]string, 0, len(record))
	for name := range record {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxWordWidth bounds the width of words accepted from the server.
const MaxWordWidth = 1 << 24

// Decode converts a wire value to a local value.
//
// A function value reached inside an aggregate decodes to nil: the wire form
// does not say which module connection owns the handle, so no callable can be
// built for it. Top-level function replies are handled by Module and Function
// and do become callables.
func Decode(w WireValue) (any, error) {
	switch w.Kind {
	case WireBit:
		return w.Bit, nil
	case WireWord:
		if w.Width == 0 {
			return nil, nil
		}
		if w.Width > MaxWordWidth {
			return nil, protocolFault("decode", "", "word width %d exceeds %d", w.Width, MaxWordWidth)
		}
		return NewBitVector(w.Width, w.Value), nil
	case WireSequence:
		if w.IsWord {
			return decodeWordSequence(w.Elements)
		}
		elements, err := decodeAll(w.Elements)
		if err != nil {
			return nil, err
		}
		return Sequence(elements), nil
	case WireTuple:
		elements, err := decodeAll(w.Elements)
		if err != nil {
			return nil, err
		}
		return Tuple(elements), nil
	case WireRecord:
		record := make(Record, len(w.Fields))
		for _, field := range w.Fields {
			value, err := Decode(field.Value)
			if err != nil {
				return nil, err
			}
			record[field.Name] = value
		}
		return record, nil
	case WireFunction:
		return nil, nil
	case WireError:
		return nil, &CryptolError{Message: w.Message}
	}
	return nil, protocolFault("decode", "", "wire value has invalid kind %s", w.Kind)
}

func decodeAll(wires []WireValue) ([]any, error) {
	values := make([]any, len(wires))
	for i, wire := range wires {
		value, err := Decode(wire)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func decodeWordSequence(wires []WireValue) (any, error) {
	if len(wires) == 0 {
		return nil, nil
	}
	bits := make([]bool, len(wires))
	for i, wire := range wires {
		value, err := Decode(wire)
		if err != nil {
			return nil, err
		}
		bit, ok := value.(bool)
		if !ok {
			return nil, protocolFault("decode", "", "word sequence element %d is a %s, not a bit", i, wire.Kind)
		}
		bits[i] = bit
	}
	return BitVectorFromBits(bits), nil
}
