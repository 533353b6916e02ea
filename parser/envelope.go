package parser

import (
	jsoniter "github.com/json-iterator/go"
	lib "github.com/hauxe/sioemitter/library"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NspFlag is the flag entry holding the pending namespace
const NspFlag = "nsp"

// Metadata carries the delivery targeting of one emission
type Metadata struct {
	Rooms []string               `json:"rooms" msgpack:"rooms"`
	Flags map[string]interface{} `json:"flags" msgpack:"flags"`
}

// NewMetadata copies rooms and flags so later mutations of the inputs do not leak in
func NewMetadata(rooms []string, flags map[string]interface{}) Metadata {
	m := Metadata{
		Rooms: make([]string, len(rooms)),
		Flags: make(map[string]interface{}, len(flags)),
	}
	copy(m.Rooms, rooms)
	for k, v := range flags {
		m.Flags[k] = v
	}
	return m
}

func (m Metadata) normalized() Metadata {
	if m.Rooms == nil {
		m.Rooms = []string{}
	}
	if m.Flags == nil {
		m.Flags = map[string]interface{}{}
	}
	return m
}

// Envelope is the [packet, metadata] pair sent to the relay.
// It encodes as a two element array in both JSON and msgpack.
type Envelope struct {
	Packet   Packet
	Metadata Metadata
}

// MarshalJSON encodes the envelope as [packet, metadata]
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.Packet, e.Metadata.normalized()})
}

// UnmarshalJSON decodes [packet, metadata]
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return errors.Wrap(err, lib.StringTags("decode envelope", "json array"))
	}
	if len(parts) != 2 {
		return errors.Errorf("decode envelope: expect 2 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &e.Packet); err != nil {
		return errors.Wrap(err, lib.StringTags("decode envelope", "packet"))
	}
	if err := json.Unmarshal(parts[1], &e.Metadata); err != nil {
		return errors.Wrap(err, lib.StringTags("decode envelope", "metadata"))
	}
	return nil
}

// EncodeMsgpack encodes the envelope as [packet, metadata]
func (e Envelope) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.Encode(e.Packet); err != nil {
		return errors.Wrap(err, lib.StringTags("encode envelope", "packet"))
	}
	if err := enc.Encode(e.Metadata.normalized()); err != nil {
		return errors.Wrap(err, lib.StringTags("encode envelope", "metadata"))
	}
	return nil
}

// DecodeMsgpack decodes [packet, metadata]
func (e *Envelope) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return errors.Wrap(err, lib.StringTags("decode envelope", "array length"))
	}
	if n != 2 {
		return errors.Errorf("decode envelope: expect 2 elements, got %d", n)
	}
	if err = dec.Decode(&e.Packet); err != nil {
		return errors.Wrap(err, lib.StringTags("decode envelope", "packet"))
	}
	if err = dec.Decode(&e.Metadata); err != nil {
		return errors.Wrap(err, lib.StringTags("decode envelope", "metadata"))
	}
	return nil
}
