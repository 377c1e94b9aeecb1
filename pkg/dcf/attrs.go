package dcf

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// EncodeAttributes serialises the attribute document as the payload of a
// SectionAttributes section. Keys are sorted for stable output.
func EncodeAttributes(attrs map[string]any) ([]byte, error) {
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("dcf: encode attributes: %w", err)
	}
	return data, nil
}

// ParseAttributes decodes a SectionAttributes payload. Numbers surface as
// json.Number so 64-bit integer attributes keep full precision.
func ParseAttributes(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("%w: attributes: %v", ErrCorruptFile, err)
	}
	return attrs, nil
}
