package device

// Kind identifies what a device is. The wire prefix of an identifier is
// derived from it.
type Kind int

const (
	KindUnknown Kind = iota
	KindTemperatureSensor
	KindNitrateSensor
	KindHeater
	KindCooler
	KindRecirculationPump
	KindPond
)

// Class groups kinds by role.
type Class string

const (
	ClassUnknown  Class = "device"
	ClassSensor   Class = "sensor"
	ClassActuator Class = "actuator"
	ClassPond     Class = "pond"
)

func (k Kind) String() string {
	switch k {
	case KindTemperatureSensor:
		return "temperature-sensor"
	case KindNitrateSensor:
		return "nitrate-sensor"
	case KindHeater:
		return "heater"
	case KindCooler:
		return "cooler"
	case KindRecirculationPump:
		return "recirculation-pump"
	case KindPond:
		return "pond"
	default:
		return "unknown"
	}
}

func (k Kind) Class() Class {
	switch k {
	case KindTemperatureSensor, KindNitrateSensor:
		return ClassSensor
	case KindHeater, KindCooler, KindRecirculationPump:
		return ClassActuator
	case KindPond:
		return ClassPond
	default:
		return ClassUnknown
	}
}

func (k Kind) IsSensor() bool   { return k.Class() == ClassSensor }
func (k Kind) IsActuator() bool { return k.Class() == ClassActuator }

// ParseKind is the inverse of Kind.String. It is used for URL path
// parameters such as /actuators/heater/toggle.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{
		KindTemperatureSensor,
		KindNitrateSensor,
		KindHeater,
		KindCooler,
		KindRecirculationPump,
		KindPond,
	} {
		if k.String() == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Actuators lists the actuator kinds a pond can own, at most one of each.
func Actuators() []Kind {
	return []Kind{KindHeater, KindCooler, KindRecirculationPump}
}
