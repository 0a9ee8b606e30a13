package broker

import (
	"github.com/KevinKickass/aquanest/internal/topic"
	"go.uber.org/zap"
)

// Notifier publishes fire-and-forget announcements on a shared connection.
type Notifier struct {
	client *Client
	topics topic.Deriver
	logger *zap.Logger
}

func NewNotifier(client *Client, namespace string, logger *zap.Logger) *Notifier {
	return &Notifier{
		client: client,
		topics: topic.NewDeriver(namespace),
		logger: logger,
	}
}

// PondDeleted announces a removed pond with an empty payload. Failures are
// only logged: the REST deletion has already happened.
func (n *Notifier) PondDeleted(pondID int) {
	t := n.topics.PondDeleted(pondID)
	n.client.Publish(t, []byte{}, func(err error) {
		if err != nil {
			n.logger.Warn("Pond delete notice not sent",
				zap.Int("pond_id", pondID),
				zap.String("topic", t),
				zap.Error(err))
			return
		}
		n.logger.Debug("Pond delete notice sent", zap.Int("pond_id", pondID))
	})
}

func (n *Notifier) Connected() bool {
	return n.client.Connected()
}
