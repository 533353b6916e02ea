package parser

import (
	"bytes"
	"encoding/hex"

	lib "github.com/hauxe/sioemitter/library"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes envelopes
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// MsgpackCodec is the binary codec read by socket.io adapters
type MsgpackCodec struct{}

// StructTag is read for struct field names when a field has no msgpack tag,
// so struct arguments carry the same keys in both payload modes
const StructTag = "json"

// Encode encodes v with compact integers
func (MsgpackCodec) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	enc.SetCustomStructTag(StructTag)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("msgpack", "encode"))
	}
	return buf.Bytes(), nil
}

// Decode decodes data into v, integers inside interfaces come back as int64/uint64
func (MsgpackCodec) Decode(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetCustomStructTag(StructTag)
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, lib.StringTags("msgpack", "decode"))
	}
	return nil
}

// JSONCodec is the plain text codec
type JSONCodec struct{}

// Encode encodes v as JSON
func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("json", "encode"))
	}
	return b, nil
}

// Decode decodes JSON data into v
func (JSONCodec) Decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, lib.StringTags("json", "decode"))
	}
	return nil
}

// EncodeHex encodes v with codec and returns the hex string of the bytes
func EncodeHex(codec Codec, v interface{}) (string, error) {
	b, err := codec.Encode(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DecodeHex reverses EncodeHex
func DecodeHex(codec Codec, s string, v interface{}) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return errors.Wrap(err, lib.StringTags("decode hex"))
	}
	return codec.Decode(b, v)
}
