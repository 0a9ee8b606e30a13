package telemetry

import (
	"sort"
	"strconv"

	"github.com/KevinKickass/aquanest/internal/device"
	"go.uber.org/zap"
)

const (
	keyAlerts     = "alerts"
	keyHeartbeats = "heartbeats"
)

func sensorKey(id int) string            { return "sensor:" + strconv.Itoa(id) }
func actuatorKey(kind device.Kind) string { return "actuator-state:" + kind.String() }

// SubscriptionSet tracks which topic is active for each logical channel
// key, and which subscribe requests are still waiting for the broker.
// session numbers broker sessions; acks from an earlier session are stale.
type SubscriptionSet struct {
	active   map[string]string
	inflight map[string]string
	failed   map[string]error
	session  uint64
}

func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{
		active:   make(map[string]string),
		inflight: make(map[string]string),
		failed:   make(map[string]error),
	}
}

// NewSession invalidates acks of requests issued so far.
func (s *SubscriptionSet) NewSession() { s.session++ }

// Reset forgets everything. Used when the session is gone.
func (s *SubscriptionSet) Reset() {
	s.active = make(map[string]string)
	s.inflight = make(map[string]string)
	s.failed = make(map[string]error)
}

// Active returns a copy of key -> active topic.
func (s *SubscriptionSet) Active() map[string]string {
	out := make(map[string]string, len(s.active))
	for k, t := range s.active {
		out[k] = t
	}
	return out
}

// Topics returns the active topics in a stable order.
func (s *SubscriptionSet) Topics() []string {
	out := make([]string, 0, len(s.active))
	for _, t := range s.active {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *SubscriptionSet) Pending() int { return len(s.inflight) }

// desired derives the topic every channel key should be subscribed to from
// the current roster.
func (v *View) desired() map[string]string {
	want := make(map[string]string)
	if v.pond == nil {
		return want
	}

	for _, s := range v.pond.Sensores {
		kind := v.catalog.KindOf(s.Tipo)
		if !kind.IsSensor() {
			continue
		}
		want[sensorKey(s.ID)] = v.topics.Data(v.pondID, device.Identifier{Kind: kind, ID: s.ID})
	}
	for kind, a := range v.actuators {
		want[actuatorKey(kind)] = v.topics.Response(v.pondID, a.Identifier())
	}
	want[keyAlerts] = v.topics.Alerts(v.pondID)
	want[keyHeartbeats] = v.topics.Heartbeats(v.pondID)
	return want
}

// Reconcile brings the broker subscriptions in line with the roster. It
// only issues requests for keys whose desired topic differs from the
// active one, so repeated calls are free. Before the connection is up it
// does nothing; ConnectionChanged re-runs it.
func (v *View) Reconcile() {
	if !v.alive || !v.connected || v.pond == nil {
		return
	}

	want := v.desired()
	for k := range v.subs.failed {
		if _, ok := want[k]; !ok {
			delete(v.subs.failed, k)
		}
	}
	if len(v.subs.failed) == 0 && v.banner.Subscription != "" {
		v.banner.Subscription = ""
		v.emit(EventBanner, v.banner)
	}

	keys := make(map[string]string, len(want))
	for k, t := range want {
		keys[k] = t
	}
	for k := range v.subs.active {
		keys[k] = ""
	}

	for _, key := range sortedKeys(keys) {
		target := want[key]

		// The ack handler reconciles again once the request settles.
		if _, waiting := v.subs.inflight[key]; waiting {
			continue
		}

		current := v.subs.active[key]
		if current == target {
			continue
		}
		if current != "" {
			delete(v.subs.active, key)
			v.unsubscribe(current)
		}
		if target != "" {
			v.subs.inflight[key] = target
			v.subscribe(key, target)
		}
	}
}

func (v *View) subscribe(key, t string) {
	v.logger.Debug("Subscribing", zap.String("key", key), zap.String("topic", t))
	session := v.subs.session
	v.broker.Subscribe(t, func(err error) {
		v.post(func() { v.subscribed(key, t, session, err) })
	})
}

func (v *View) subscribed(key, t string, session uint64, err error) {
	if !v.alive {
		if err == nil {
			v.unsubscribe(t)
		}
		return
	}
	// Issued on a session that has since been dropped; the request of the
	// current session, if any, answers for itself.
	if session != v.subs.session || v.subs.inflight[key] != t {
		return
	}
	delete(v.subs.inflight, key)

	if err != nil {
		v.logger.Warn("Subscribe failed",
			zap.String("key", key),
			zap.String("topic", t),
			zap.Error(err))
		v.subs.failed[key] = err
		v.banner.Subscription = "could not subscribe to " + t + ": " + err.Error()
		v.emit(EventBanner, v.banner)
	} else {
		v.subs.active[key] = t
		delete(v.subs.failed, key)
		if len(v.subs.failed) == 0 && v.banner.Subscription != "" {
			v.banner.Subscription = ""
			v.emit(EventBanner, v.banner)
		}
	}

	// The roster may have moved on while the request was in flight.
	if v.desired()[key] != t {
		v.Reconcile()
	}
}

// unsubscribe is best effort: failures are logged only.
func (v *View) unsubscribe(t string) {
	logger := v.logger
	v.broker.Unsubscribe(t, func(err error) {
		if err != nil {
			logger.Warn("Unsubscribe failed", zap.String("topic", t), zap.Error(err))
		}
	})
}
