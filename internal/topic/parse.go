package topic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KevinKickass/aquanest/internal/device"
)

// MinSegments is the shortest topic that carries a pond segment.
const MinSegments = 3

var (
	ErrForeignNamespace = errors.New("topic outside namespace")
	ErrTooShort         = errors.New("topic too short")
	ErrBadPond          = errors.New("invalid pond segment")
)

// Shape tells the router what kind of message a topic carries.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeData
	ShapeAlert
	ShapeHeartbeat
	ShapeResponse
)

func (s Shape) String() string {
	switch s {
	case ShapeData:
		return "data"
	case ShapeAlert:
		return "alert"
	case ShapeHeartbeat:
		return "heartbeat"
	case ShapeResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Route is a parsed inbound topic.
type Route struct {
	Topic    string
	Segments []string
	PondID   int
	Shape    Shape
	// Device is the raw device segment, e.g. "ST3". Empty for ShapeUnknown.
	Device string
	// Subtype is the last segment of a data topic.
	Subtype string
}

// Parse validates the namespace and pond segment of t and classifies its
// shape. Device segments are not decoded here.
func Parse(namespace, t string) (Route, error) {
	parts := strings.Split(t, Separator)
	if parts[0] != namespace {
		return Route{}, fmt.Errorf("%w: %q", ErrForeignNamespace, t)
	}
	if len(parts) < MinSegments {
		return Route{}, fmt.Errorf("%w: %q", ErrTooShort, t)
	}

	pondID, ok := device.DecodePond(parts[1])
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrBadPond, parts[1])
	}

	r := Route{Topic: t, Segments: parts, PondID: pondID}
	n := len(parts)

	switch {
	case n == 5 && parts[3] == "data":
		r.Shape = ShapeData
		r.Device = parts[2]
		r.Subtype = parts[4]
	case n >= 5 && parts[n-2] == "alert" && parts[n-1] == "anomalous":
		r.Shape = ShapeAlert
		if n == 6 {
			r.Device = parts[3]
		} else {
			r.Device = parts[2]
		}
	case n == 5 && parts[3] == "heartbeat" && parts[4] == "error":
		r.Shape = ShapeHeartbeat
		r.Device = parts[2]
	case n == 4 && parts[3] == "response":
		r.Shape = ShapeResponse
		r.Device = parts[2]
	default:
		r.Shape = ShapeUnknown
	}

	return r, nil
}
