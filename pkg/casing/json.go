package casing

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Decode parses JSON into a generic tree. Numbers are kept as json.Number so
// they can be re-encoded without any loss.
func Decode(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected trailing data after JSON value")
	}
	return tree, nil
}

// MarshalWire encodes v as JSON whose keys follow the wire convention.
// v is encoded with its internal (lowerCamel) json tags first.
func MarshalWire(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode body")
	}
	tree, err := Decode(b)
	if err != nil {
		return nil, errors.Wrap(err, "could not re-read encoded body")
	}
	return json.Marshal(ToWire(tree))
}

// DecodeInternal parses wire JSON into a generic tree using internal keys.
func DecodeInternal(data []byte) (interface{}, error) {
	tree, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return ToInternal(tree), nil
}

// UnmarshalInternal decodes wire JSON into out, whose json tags use the
// internal convention.
func UnmarshalInternal(data []byte, out interface{}) error {
	tree, err := DecodeInternal(data)
	if err != nil {
		return err
	}
	return Into(tree, out)
}

// Into converts an internal generic tree into a typed value.
func Into(tree interface{}, out interface{}) error {
	b, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
