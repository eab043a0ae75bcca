// Package unit normalizes metric values between units of the same
// measurement family (bytes, bits, time, frequency, percent). Conversion
// between families is refused, never guessed; callers treat that as a
// no-op so a unit mismatch cannot block alert evaluation.
package unit

import (
	"fmt"
	"strings"
)

// factor tables per family, scaled to the family's base unit.
var families = map[string]map[string]float64{
	"byte": {
		"B": 1, "KB": 1e3, "MB": 1e6, "GB": 1e9, "TB": 1e12, "PB": 1e15,
		"KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30, "TiB": 1 << 40, "PiB": 1 << 50,
	},
	"bit": {
		"bit": 1, "Kbit": 1e3, "Mbit": 1e6, "Gbit": 1e9, "Tbit": 1e12,
		"Kibit": 1 << 10, "Mibit": 1 << 20, "Gibit": 1 << 30, "Tibit": 1 << 40,
	},
	"time": {
		"ns": 1e-9, "us": 1e-6, "ms": 1e-3, "s": 1, "min": 60, "h": 3600, "d": 86400,
	},
	"frequency": {
		"Hz": 1, "KHz": 1e3, "MHz": 1e6, "GHz": 1e9,
	},
	"percent": {
		"%": 1,
	},
	"byte_rate": {
		"B/s": 1, "KB/s": 1e3, "MB/s": 1e6, "GB/s": 1e9, "TB/s": 1e12,
		"KiB/s": 1 << 10, "MiB/s": 1 << 20, "GiB/s": 1 << 30, "TiB/s": 1 << 40,
	},
	"bit_rate": {
		"bit/s": 1, "Kbit/s": 1e3, "Mbit/s": 1e6, "Gbit/s": 1e9, "Tbit/s": 1e12,
		"Kibit/s": 1 << 10, "Mibit/s": 1 << 20, "Gibit/s": 1 << 30, "Tibit/s": 1 << 40,
	},
}

// spellings maps common unit spellings (lowercased) to canonical symbols.
var spellings = map[string]string{
	"byte": "B", "bytes": "B",
	"kb": "KB", "kilobyte": "KB", "kilobytes": "KB",
	"mb": "MB", "megabyte": "MB", "megabytes": "MB",
	"gb": "GB", "gigabyte": "GB", "gigabytes": "GB",
	"tb": "TB", "terabyte": "TB", "terabytes": "TB",
	"pb":  "PB",
	"kib": "KiB", "kibibyte": "KiB", "kibibytes": "KiB",
	"mib": "MiB", "mebibyte": "MiB", "mebibytes": "MiB",
	"gib": "GiB", "gibibyte": "GiB", "gibibytes": "GiB",
	"tib": "TiB", "tebibyte": "TiB", "tebibytes": "TiB",
	"pib":  "PiB",
	"kbit": "Kbit", "mbit": "Mbit", "gbit": "Gbit", "tbit": "Tbit",
	"kibit": "Kibit", "kibibit": "Kibit",
	"mibit": "Mibit", "mebibit": "Mibit",
	"gibit": "Gibit", "gibibit": "Gibit",
	"tibit": "Tibit", "tebibit": "Tibit",
	"nanosecond": "ns", "nanoseconds": "ns",
	"microsecond": "us", "microseconds": "us",
	"millisecond": "ms", "milliseconds": "ms",
	"second": "s", "seconds": "s", "sec": "s",
	"minute": "min", "minutes": "min",
	"hour": "h", "hours": "h",
	"day": "d", "days": "d",
	"hz": "Hz", "khz": "KHz", "mhz": "MHz", "ghz": "GHz",
	"percent": "%", "pct": "%",
}

// Normalize maps a raw unit string to its canonical symbol. Unknown
// units pass through trimmed.
func Normalize(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if canonical, ok := spellings[strings.ToLower(u)]; ok {
		return canonical
	}
	return u
}

// Category returns the measurement family of a unit.
func Category(u string) (string, bool) {
	n := Normalize(u)
	for name, table := range families {
		if _, ok := table[n]; ok {
			return name, true
		}
	}
	return "", false
}

// IsConvertible reports whether both units belong to the same family.
func IsConvertible(from, to string) bool {
	cf, ok := Category(from)
	if !ok {
		return false
	}
	ct, ok := Category(to)
	if !ok {
		return false
	}
	return cf == ct
}

// Convert translates a single value between convertible units.
func Convert(value float64, from, to string) (float64, error) {
	nf, nt := Normalize(from), Normalize(to)
	if nf == nt {
		return value, nil
	}
	cf, ok := Category(nf)
	if !ok {
		return 0, fmt.Errorf("unknown unit: %s", from)
	}
	ct, ok := Category(nt)
	if !ok {
		return 0, fmt.Errorf("unknown unit: %s", to)
	}
	if cf != ct {
		return 0, fmt.Errorf("units not convertible: %s -> %s", from, to)
	}
	table := families[cf]
	return value * table[nf] / table[nt], nil
}

// ConvertValues translates a slice of values between convertible units.
// The input slice is never mutated.
func ConvertValues(values []float64, from, to string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		c, err := Convert(v, from, to)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// DisplayUnit returns the human-facing label for a unit.
func DisplayUnit(u string) string { return Normalize(u) }
