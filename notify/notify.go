/*
Package notify delivers member-facing notifications. The default
implementation logs them; a mail-backed implementation slots in behind the
same club.Notifier interface without touching the engine.
*/
package notify

import (
	"go.uber.org/zap"
)

// LogNotifier writes every notification to the structured log. Used in
// development and as the fallback when no mail transport is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) PreRegistrationReceived(name, email string) {
	n.log.Info("notify: pre-registration received",
		zap.String("name", name),
		zap.String("email", email))
}

func (n *LogNotifier) MemberApproved(name, email, memberNumber, tempPassword string) {
	// The temporary password is deliberately not logged.
	n.log.Info("notify: membership approved",
		zap.String("name", name),
		zap.String("email", email),
		zap.String("member_number", memberNumber))
}

func (n *LogNotifier) PreRegistrationRejected(name, email string) {
	n.log.Info("notify: pre-registration rejected",
		zap.String("name", name),
		zap.String("email", email))
}
