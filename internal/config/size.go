package config

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MiB.
const defaultMaxMessageSize = ByteSize(25 * units.MiB)

// ByteSize is a size in bytes. Besides plain integers it accepts human
// readable values such as "25MB" or "512k", read as binary multiples.
type ByteSize int64

// ParseByteSize parses a plain or human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return ByteSize(n), nil
}

// UnmarshalYAML accepts both integer and string nodes.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	size, err := ParseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", value.Value, err)
	}
	*b = size
	return nil
}

func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}
