package telemetry

// Broker is the transport a View talks to. Completion callbacks may run on
// any goroutine; the View re-posts them onto its own.
type Broker interface {
	Connected() bool
	Subscribe(topic string, done func(error))
	Unsubscribe(topic string, done func(error))
	Publish(topic string, payload []byte, done func(error))
}
