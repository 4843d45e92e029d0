package types

import (
	"fmt"
	"strconv"
)

// Size is a number of bytes, e.g. a resource limit
type Size uint64

func (s Size) String() string {
	t := uint64(s)
	switch {
	case t < 1<<10:
		return fmt.Sprintf("%d B", t)
	case t < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(t)/float64(1<<10))
	case t < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(t)/float64(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(t)/float64(1<<30))
	}
}

// Set parses sizes like "64m", "512KiB" or "1024"
func (s *Size) Set(str string) error {
	if str == "" {
		return fmt.Errorf("size: empty value")
	}
	if n := len(str); n > 2 && (str[n-2:] == "iB" || str[n-2:] == "ib") {
		str = str[:n-2]
	}
	switch str[len(str)-1] {
	case 'b', 'B':
		str = str[:len(str)-1]
	}

	factor := 0
	if len(str) > 0 {
		switch str[len(str)-1] {
		case 'k', 'K':
			factor = 10
		case 'm', 'M':
			factor = 20
		case 'g', 'G':
			factor = 30
		}
		if factor > 0 {
			str = str[:len(str)-1]
		}
	}

	t, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}
	*s = Size(t << factor)
	return nil
}

// UnmarshalText lets sizes appear as strings in configuration files
func (s *Size) UnmarshalText(b []byte) error {
	return s.Set(string(b))
}

// Byte returns the size in bytes
func (s Size) Byte() uint64 {
	return uint64(s)
}

// KiB returns the size in KiB
func (s Size) KiB() uint64 {
	return uint64(s) >> 10
}

// MiB returns the size in MiB
func (s Size) MiB() uint64 {
	return uint64(s) >> 20
}
