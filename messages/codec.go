package messages

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrMissingType is returned for frames without a type discriminator
var ErrMissingType = errors.New("frame has no type")

// Encode serializes a frame for a text websocket message
func Encode(f *Frame) ([]byte, error) {
	data, err := sonic.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Decode parses a raw websocket message into a frame
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, ErrMissingType
	}
	return &f, nil
}
