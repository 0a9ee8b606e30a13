package telemetry

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/topic"
	"github.com/KevinKickass/aquanest/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownActuator = errors.New("actuator not present in pond")
	ErrCommandPending  = errors.New("actuator command already pending")
	ErrNotConnected    = errors.New("broker not connected")
	ErrClosed          = errors.New("view closed")
)

// Config parameterizes a View.
type Config struct {
	PondID           int
	Namespace        string
	MaxDataPoints    int
	MaxNotifications int
	// CommandTimeout reverts a pending actuator after this long without a
	// response. Zero keeps it pending until a response or publish error.
	CommandTimeout time.Duration
	Catalog        *device.Catalog
}

// Hooks connect a View to its runtime. Zero values fall back to direct
// execution, the wall clock, uuid ids and no observer.
type Hooks struct {
	// Post runs fn on the goroutine that owns the View.
	Post      func(fn func())
	AfterFunc func(d time.Duration, fn func()) (stop func() bool)
	Now       func() time.Time
	NewID     func() string
	Observer  func(Event)
}

// View is the live state of one mounted pond dashboard. It is not safe for
// concurrent use: every method, including callbacks passed through
// Hooks.Post, must run on a single goroutine.
type View struct {
	pondID  int
	topics  topic.Deriver
	catalog *device.Catalog
	broker  Broker
	logger  *zap.Logger
	hooks   Hooks

	maxDataPoints  int
	commandTimeout time.Duration

	alive     bool
	connected bool
	pond      *types.Pond
	series    map[int]*Series
	log       *NotificationLog
	actuators map[device.Kind]*Actuator
	subs      *SubscriptionSet
	banner    Banner
}

func NewView(cfg Config, broker Broker, logger *zap.Logger, hooks Hooks) *View {
	if hooks.Post == nil {
		hooks.Post = func(fn func()) { fn() }
	}
	if hooks.AfterFunc == nil {
		hooks.AfterFunc = func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		}
	}
	if hooks.Now == nil {
		hooks.Now = time.Now
	}
	if hooks.NewID == nil {
		hooks.NewID = uuid.NewString
	}
	if cfg.Catalog == nil {
		cfg.Catalog = device.DefaultCatalog()
	}
	if cfg.MaxDataPoints <= 0 {
		cfg.MaxDataPoints = DefaultMaxDataPoints
	}

	return &View{
		pondID:         cfg.PondID,
		topics:         topic.NewDeriver(cfg.Namespace),
		catalog:        cfg.Catalog,
		broker:         broker,
		logger:         logger.With(zap.Int("pond_id", cfg.PondID)),
		hooks:          hooks,
		maxDataPoints:  cfg.MaxDataPoints,
		commandTimeout: cfg.CommandTimeout,
		alive:          true,
		series:         make(map[int]*Series),
		log:            NewNotificationLog(cfg.MaxNotifications),
		actuators:      make(map[device.Kind]*Actuator),
		subs:           NewSubscriptionSet(),
	}
}

func (v *View) PondID() int  { return v.pondID }
func (v *View) Alive() bool  { return v.alive }
func (v *View) Loaded() bool { return v.pond != nil }

// Pond returns the current roster snapshot, nil before it has loaded.
func (v *View) Pond() *types.Pond { return v.pond }

func (v *View) post(fn func()) { v.hooks.Post(fn) }

func (v *View) emit(typ EventType, data any) {
	if v.hooks.Observer == nil {
		return
	}
	v.hooks.Observer(Event{
		Type:      typ,
		PondID:    v.pondID,
		Timestamp: v.hooks.Now(),
		Data:      data,
	})
}

// SetPond replaces the roster and reconciles subscriptions against it.
// Actuators that are still present keep their control state.
func (v *View) SetPond(p *types.Pond) {
	if !v.alive || p == nil {
		return
	}
	v.pond = p

	sensors := make(map[int]bool)
	for _, s := range p.Sensores {
		if !v.catalog.KindOf(s.Tipo).IsSensor() {
			continue
		}
		sensors[s.ID] = true
		if _, ok := v.series[s.ID]; !ok {
			v.series[s.ID] = NewSeries(v.maxDataPoints)
		}
	}
	for id := range v.series {
		if !sensors[id] {
			delete(v.series, id)
		}
	}

	for _, kind := range device.Actuators() {
		d, ok := p.Actuator(kind, v.catalog)
		current := v.actuators[kind]
		switch {
		case !ok:
			if current != nil {
				current.cancelTimer()
				delete(v.actuators, kind)
			}
		case current == nil || current.ID != d.ID:
			if current != nil {
				current.cancelTimer()
			}
			v.actuators[kind] = newActuator(d.ID, kind, d.Estado)
		}
	}

	v.emit(EventRoster, v.actuatorSnapshots())
	v.Reconcile()
}

// SetHistory merges backend alerts and logs into the notification log.
func (v *View) SetHistory(alerts []types.Alert, logs []types.LogEntry) {
	if !v.alive || v.pond == nil {
		return
	}
	v.log.Merge(HistoricalNotifications(v.pond, alerts, logs))
	v.emit(EventNotifications, v.log.Items())
}

// SetLoadError and SetHistoryError surface REST failures.
func (v *View) SetLoadError(msg string) {
	v.banner.Load = msg
	v.emit(EventBanner, v.banner)
}

func (v *View) SetHistoryError(msg string) {
	v.banner.History = msg
	v.emit(EventBanner, v.banner)
}

// ConnectionChanged records a broker connection transition. A lost
// connection forgets all subscriptions (clean session); a new one
// triggers a full reconciliation.
func (v *View) ConnectionChanged(connected bool, err error) {
	if !v.alive {
		return
	}
	v.connected = connected

	data := ConnectionData{Connected: connected}
	if connected {
		v.banner.Connection = ""
	} else {
		v.subs.Reset()
		v.subs.NewSession()
		if err != nil {
			v.banner.Connection = "broker connection error: " + err.Error()
			data.Error = err.Error()
		}
	}
	v.emit(EventConnection, data)
	v.emit(EventBanner, v.banner)

	if connected {
		v.Reconcile()
	}
}

// Teardown unsubscribes every active topic and makes the View inert.
// Closing the connection is left to the owner of the broker.
func (v *View) Teardown() {
	if !v.alive {
		return
	}
	v.alive = false

	for _, t := range v.subs.Topics() {
		v.unsubscribe(t)
	}
	v.subs.Reset()

	for _, a := range v.actuators {
		a.cancelTimer()
	}
}

// Snapshot is the complete read model of a View.
type Snapshot struct {
	PondID        int                `json:"pond_id"`
	PondName      string             `json:"pond_name,omitempty"`
	Loaded        bool               `json:"loaded"`
	Connected     bool               `json:"connected"`
	Series        []SeriesSnapshot   `json:"series"`
	Notifications []Notification     `json:"notifications"`
	Actuators     []ActuatorSnapshot `json:"actuators"`
	Subscriptions map[string]string  `json:"subscriptions"`
	Banner        Banner             `json:"banner"`
}

type SeriesSnapshot struct {
	SensorID int      `json:"sensor_id"`
	Kind     string   `json:"kind"`
	Label    string   `json:"label"`
	Points   []Sample `json:"points"`
}

func (v *View) Snapshot() Snapshot {
	s := Snapshot{
		PondID:        v.pondID,
		Loaded:        v.pond != nil,
		Connected:     v.connected,
		Series:        make([]SeriesSnapshot, 0, len(v.series)),
		Notifications: v.log.Items(),
		Actuators:     v.actuatorSnapshots(),
		Subscriptions: v.subs.Active(),
		Banner:        v.banner,
	}
	if v.pond != nil {
		s.PondName = v.pond.Nombre
		for _, sensor := range v.pond.Sensores {
			series, ok := v.series[sensor.ID]
			if !ok {
				continue
			}
			kind := v.catalog.KindOf(sensor.Tipo)
			s.Series = append(s.Series, SeriesSnapshot{
				SensorID: sensor.ID,
				Kind:     kind.String(),
				Label:    v.catalog.Label(kind),
				Points:   series.Points(),
			})
		}
	}
	return s
}

// SeriesFor returns the ordered points of one sensor.
func (v *View) SeriesFor(sensorID int) []Sample {
	s, ok := v.series[sensorID]
	if !ok {
		return nil
	}
	return s.Points()
}

func (v *View) Notifications() []Notification { return v.log.Items() }

func (v *View) Banner() Banner { return v.banner }

// Actuator returns the actuator of kind, if the pond has one.
func (v *View) Actuator(kind device.Kind) (ActuatorSnapshot, bool) {
	a, ok := v.actuators[kind]
	if !ok {
		return ActuatorSnapshot{}, false
	}
	return v.actuatorSnapshot(a), true
}

func (v *View) actuatorSnapshot(a *Actuator) ActuatorSnapshot {
	return ActuatorSnapshot{
		ID:        a.ID,
		Kind:      a.Kind.String(),
		Label:     v.catalog.Label(a.Kind),
		Device:    a.Identifier().String(),
		State:     a.State,
		Confirmed: a.Confirmed,
	}
}

func (v *View) actuatorSnapshots() []ActuatorSnapshot {
	out := make([]ActuatorSnapshot, 0, len(v.actuators))
	for _, kind := range device.Actuators() {
		if a, ok := v.actuators[kind]; ok {
			out = append(out, v.actuatorSnapshot(a))
		}
	}
	return out
}

// deviceLabel describes a device for notification messages, looking it up
// in the roster by its class.
func (v *View) deviceLabel(ident device.Identifier, raw string) string {
	if v.pond != nil {
		var (
			d  types.Device
			ok bool
		)
		switch ident.Kind.Class() {
		case device.ClassSensor:
			d, ok = v.pond.SensorByID(ident.ID)
		case device.ClassActuator:
			d, ok = v.pond.ActuatorByID(ident.ID)
		}
		if ok {
			return v.catalog.Label(v.catalog.KindOf(d.Tipo)) + " (id " + strconv.Itoa(ident.ID) + ")"
		}
	}
	return "unknown device id " + strconv.Itoa(ident.ID) + " (raw " + raw + ")"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
