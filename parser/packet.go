package parser

import (
	"reflect"
)

// PacketType is the socket.io packet type code
type PacketType int

// socket.io packet types
const (
	Connect PacketType = iota
	Disconnect
	Event
	Ack
	Error
	BinaryEvent
	BinaryAck
)

// RootNamespace is the namespace used when none is selected
const RootNamespace = "/"

var packetTypeNames = []string{"CONNECT", "DISCONNECT", "EVENT", "ACK", "ERROR", "BINARY_EVENT", "BINARY_ACK"}

func (t PacketType) String() string {
	if t < Connect || int(t) >= len(packetTypeNames) {
		return "UNKNOWN"
	}
	return packetTypeNames[t]
}

// Packet is the socket.io packet carried inside an envelope
type Packet struct {
	Type PacketType    `json:"type" msgpack:"type"`
	Data []interface{} `json:"data" msgpack:"data"`
	Nsp  string        `json:"nsp" msgpack:"nsp"`
}

// NewEventPacket builds an event packet, the type is BinaryEvent when any of data holds binary content
func NewEventPacket(nsp string, data []interface{}) Packet {
	t := Event
	if HasBinary(data) {
		t = BinaryEvent
	}
	if nsp == "" {
		nsp = RootNamespace
	}
	return Packet{Type: t, Data: data, Nsp: nsp}
}

// HasBinary reports whether v transitively contains a []byte.
// Slices, arrays, maps, struct fields, pointers and interfaces are walked.
func HasBinary(v interface{}) bool {
	if v == nil {
		return false
	}
	return hasBinary(reflect.ValueOf(v), map[uintptr]bool{})
}

func hasBinary(rv reflect.Value, seen map[uintptr]bool) bool {
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return hasBinary(rv.Elem(), seen)
	case reflect.Ptr:
		if rv.IsNil() {
			return false
		}
		if seen[rv.Pointer()] {
			return false
		}
		seen[rv.Pointer()] = true
		return hasBinary(rv.Elem(), seen)
	case reflect.Slice:
		if rv.IsNil() {
			return false
		}
		// only byte slices are binary, [N]byte values such as ids encode as numbers
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return true
		}
		fallthrough
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if hasBinary(rv.Index(i), seen) {
				return true
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if hasBinary(iter.Value(), seen) {
				return true
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if rv.Type().Field(i).PkgPath != "" {
				continue
			}
			if hasBinary(rv.Field(i), seen) {
				return true
			}
		}
	}
	return false
}
