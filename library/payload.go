package library

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Payload returns the wire bytes of a channel message.
// Strings and byte slices pass through, anything else is JSON encoded.
func Payload(msg interface{}) ([]byte, error) {
	switch v := msg.(type) {
	case nil:
		return nil, errors.New("message is nil")
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, StringTags("payload", "marshal json"))
	}
	return b, nil
}
