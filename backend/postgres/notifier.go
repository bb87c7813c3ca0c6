package postgres

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/quayside-run/durabletask/api"
	"github.com/quayside-run/durabletask/backend"
)

// wakeNotifier publishes a best-effort fire-and-forget notification each
// time an instance gets new work, so idle pollers can shorten their next
// poll instead of waiting out a full idle backoff interval. Nothing reads
// these messages directly off the subject; subscribing is purely an
// optimization a worker process may opt into via Subscribe.
type wakeNotifier struct {
	conn    *nats.Conn
	subject string
	logger  backend.Logger
}

func newWakeNotifier(conn *nats.Conn, subject string, logger backend.Logger) *wakeNotifier {
	return &wakeNotifier{conn: conn, subject: subject, logger: logger}
}

// wake publishes instanceID's id to the wake subject. With a nil
// connection it does nothing; a publish error is logged and otherwise
// ignored: missing a wake-up costs a
// worker one idle poll interval, not correctness, since the work item is
// still sitting in its Redis queue regardless.
func (n *wakeNotifier) wake(ctx context.Context, instanceID api.InstanceID) {
	if n.conn == nil {
		return
	}
	if err := n.conn.Publish(n.subject, []byte(instanceID)); err != nil {
		if n.logger != nil {
			n.logger.Warnf("failed to publish wake notification for %v: %v", instanceID, err)
		}
	}
}

// Subscribe registers handler to run whenever any instance is woken. The
// returned unsubscribe func drains the subscription; callers typically
// defer it.
func (n *wakeNotifier) Subscribe(handler func(instanceID api.InstanceID)) (func() error, error) {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		handler(api.InstanceID(msg.Data))
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}
