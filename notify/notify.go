// Package notify delivers invite notifications. Delivery is external to
// the core: the invite flow fires and forgets, and a failed send is
// logged without failing the invite.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"contracthub/models"
)

// LogSender "delivers" invites by logging the invite link. It stands in
// for a real mail sender in development and tests.
type LogSender struct {
	log     *zap.Logger
	baseURL string
}

func NewLogSender(log *zap.Logger, baseURL string) *LogSender {
	return &LogSender{log: log, baseURL: baseURL}
}

func (s *LogSender) SendInvite(ctx context.Context, invite *models.Invite, contractName string) error {
	s.log.Info("invite notification",
		zap.String("email", invite.Email),
		zap.String("contract", contractName),
		zap.String("role", string(invite.Role)),
		zap.String("link", fmt.Sprintf("%s/invites/%s", s.baseURL, invite.Token)),
	)
	return nil
}
