package device

import (
	"strconv"
	"strings"
)

// Wire prefixes. A device segment on the broker is prefix+decimal id,
// e.g. "ST3" or "CAL5". Pond segments use "E".
const (
	PrefixTemperatureSensor = "ST"
	PrefixNitrateSensor     = "SN"
	PrefixHeater            = "CAL"
	PrefixCooler            = "ENF"
	PrefixRecirculationPump = "BR"
	PrefixPond              = "E"
)

// PrefixOrder is the order in which Decode tries prefixes. It is part of
// the codec contract: a prefix must never be a prefix of another prefix
// that is checked after it ("E" comes after "ENF"). New prefixes have to
// be inserted so that this still holds.
var PrefixOrder = []string{
	PrefixCooler,
	PrefixHeater,
	PrefixRecirculationPump,
	PrefixTemperatureSensor,
	PrefixNitrateSensor,
	PrefixPond,
}

var prefixKinds = map[string]Kind{
	PrefixTemperatureSensor: KindTemperatureSensor,
	PrefixNitrateSensor:     KindNitrateSensor,
	PrefixHeater:            KindHeater,
	PrefixCooler:            KindCooler,
	PrefixRecirculationPump: KindRecirculationPump,
	PrefixPond:              KindPond,
}

// Identifier is a backend integer id qualified by its kind.
type Identifier struct {
	Kind Kind
	ID   int
}

// Prefix returns the wire prefix for k, or "" for KindUnknown.
func (k Kind) Prefix() string {
	for prefix, kind := range prefixKinds {
		if kind == k {
			return prefix
		}
	}
	return ""
}

// Encode returns the wire form of (kind, id).
func Encode(kind Kind, id int) string {
	return kind.Prefix() + strconv.Itoa(id)
}

func (i Identifier) String() string {
	return Encode(i.Kind, i.ID)
}

// Decode strips the first matching prefix from raw (in PrefixOrder) and
// parses the remainder as a non-negative base-10 integer. It reports false
// for an empty string, an unknown prefix, a bare prefix without digits, or
// a remainder that is not made of digits only.
func Decode(raw string) (Identifier, bool) {
	if raw == "" {
		return Identifier{}, false
	}

	for _, prefix := range PrefixOrder {
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		id, ok := parseDigits(raw[len(prefix):])
		if !ok {
			return Identifier{}, false
		}
		return Identifier{Kind: prefixKinds[prefix], ID: id}, true
	}

	return Identifier{}, false
}

// DecodeID is Decode without the kind.
func DecodeID(raw string) (int, bool) {
	ident, ok := Decode(raw)
	return ident.ID, ok
}

// DecodePond decodes a pond segment such as "E7".
func DecodePond(raw string) (int, bool) {
	ident, ok := Decode(raw)
	if !ok || ident.Kind != KindPond {
		return 0, false
	}
	return ident.ID, true
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// overflow
		return 0, false
	}
	return n, true
}
