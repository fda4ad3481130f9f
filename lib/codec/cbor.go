// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// any-typed targets decode to map[string]any rather than
		// map[any]any so results stay compatible with encoding/json.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// MarshalBuffers encodes raw buffer frames as a CBOR array of byte
// strings. An empty list encodes to nil so callers can store SQL NULL.
func MarshalBuffers(buffers [][]byte) ([]byte, error) {
	if len(buffers) == 0 {
		return nil, nil
	}
	return Marshal(buffers)
}

// UnmarshalBuffers reverses MarshalBuffers. Nil or empty input yields
// nil.
func UnmarshalBuffers(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var buffers [][]byte
	if err := Unmarshal(data, &buffers); err != nil {
		return nil, err
	}
	return buffers, nil
}
