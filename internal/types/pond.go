package types

import (
	"time"

	"github.com/KevinKickass/aquanest/internal/device"
)

// Device is a sensor or actuator as returned by the backend.
type Device struct {
	ID   int    `json:"id"`
	Tipo string `json:"tipo"`
	// Estado is only set for actuators ("ON"/"OFF").
	Estado string `json:"estado,omitempty"`
}

// Pond is the backend snapshot of a pond with its devices.
type Pond struct {
	ID          int      `json:"id"`
	Nombre      string   `json:"nombre"`
	Ubicacion   string   `json:"ubicacion,omitempty"`
	Dimensiones string   `json:"dimensiones,omitempty"`
	TipoAgua    string   `json:"tipoAgua,omitempty"`
	Especie     *Species `json:"especie,omitempty"`
	Sensores    []Device `json:"sensores"`
	Actuadores  []Device `json:"actuadores"`
}

// NewPond is the create request body.
type NewPond struct {
	Nombre      string `json:"nombre" binding:"required"`
	Ubicacion   string `json:"ubicacion"`
	Dimensiones string `json:"dimensiones"`
	TipoAgua    string `json:"tipoAgua"`
	EspecieID   int    `json:"especieId" binding:"required"`
}

type Species struct {
	ID                   int     `json:"id"`
	Nombre               string  `json:"nombre"`
	TemperaturaOptimaMin float64 `json:"temperaturaOptimaMin,omitempty"`
	TemperaturaOptimaMax float64 `json:"temperaturaOptimaMax,omitempty"`
	NitrateOptimoMin     float64 `json:"nitrateOptimoMin,omitempty"`
	NitrateOptimoMax     float64 `json:"nitrateOptimoMax,omitempty"`
}

// NewSpecies is the create-species body (POST /especies).
type NewSpecies struct {
	Nombre               string  `json:"nombre" binding:"required"`
	TemperaturaOptimaMin float64 `json:"temperaturaOptimaMin"`
	TemperaturaOptimaMax float64 `json:"temperaturaOptimaMax"`
	NitrateOptimoMin     float64 `json:"nitrateOptimoMin"`
	NitrateOptimoMax     float64 `json:"nitrateOptimoMax"`
}

// DeviceRef is the nested {id} reference used by alerts, logs and readings.
type DeviceRef struct {
	ID int `json:"id"`
}

// Alert is a historical sensor alert (GET /alerta).
type Alert struct {
	ID        int        `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Mensaje   string     `json:"mensaje"`
	Sensor    *DeviceRef `json:"sensor,omitempty"`
}

// LogEntry is a historical actuator log line (GET /log).
type LogEntry struct {
	ID        int        `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Accion    string     `json:"accion"`
	Resultado string     `json:"resultado"`
	Actuador  *DeviceRef `json:"actuador,omitempty"`
}

// Log actions the dashboard shows.
const (
	ActionHeartbeatError = "Heartbeat Error"
	ActionStatusUpdate   = "Status Update"
)

// SensorReading is one stored sensor value.
type SensorReading struct {
	Timestamp time.Time  `json:"timestamp"`
	Valor     float64    `json:"valor"`
	Sensor    *DeviceRef `json:"sensor,omitempty"`
}

// Credentials is the login body.
type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Registration is the register body.
type Registration struct {
	Nombre   string `json:"nombre" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Telefono string `json:"telefono,omitempty"`
}

// Profile is the signed-in user (GET /usuarios/me).
type Profile struct {
	ID     int    `json:"id,omitempty"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
}

// ProfileUpdate renames the signed-in user (PATCH /usuarios/me/name).
type ProfileUpdate struct {
	Nombre string `json:"nombre" binding:"required"`
}

// Sensor returns the first sensor of the given kind.
func (p *Pond) Sensor(kind device.Kind, catalog *device.Catalog) (Device, bool) {
	for _, s := range p.Sensores {
		if catalog.KindOf(s.Tipo) == kind {
			return s, true
		}
	}
	return Device{}, false
}

// Actuator returns the first actuator of the given kind.
func (p *Pond) Actuator(kind device.Kind, catalog *device.Catalog) (Device, bool) {
	for _, a := range p.Actuadores {
		if catalog.KindOf(a.Tipo) == kind {
			return a, true
		}
	}
	return Device{}, false
}

// SensorByID looks a sensor up by backend id.
func (p *Pond) SensorByID(id int) (Device, bool) {
	for _, s := range p.Sensores {
		if s.ID == id {
			return s, true
		}
	}
	return Device{}, false
}

// ActuatorByID looks an actuator up by backend id.
func (p *Pond) ActuatorByID(id int) (Device, bool) {
	for _, a := range p.Actuadores {
		if a.ID == id {
			return a, true
		}
	}
	return Device{}, false
}

func (p *Pond) SensorIDs() map[int]bool {
	ids := make(map[int]bool, len(p.Sensores))
	for _, s := range p.Sensores {
		ids[s.ID] = true
	}
	return ids
}

func (p *Pond) ActuatorIDs() map[int]bool {
	ids := make(map[int]bool, len(p.Actuadores))
	for _, a := range p.Actuadores {
		ids[a.ID] = true
	}
	return ids
}
