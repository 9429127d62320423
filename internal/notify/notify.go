// Package notify is the outbound notification port. Real dispatch (email,
// push) is an external collaborator; the in-process implementation records
// the event in the log so failures stay observable without ever propagating
// into lifecycle logic.
package notify

import (
	"context"

	"go.uber.org/zap"
)

type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyOwner(ctx context.Context, tenderId, ownerId, event string) error {
	n.log.Info("owner notification",
		zap.String("tender", tenderId),
		zap.String("owner", ownerId),
		zap.String("event", event))
	return nil
}
