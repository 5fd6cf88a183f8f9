package notify

import (
	"sync"

	"github.com/oszuidwest/zwfm-videoencoder/internal/config"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
)

// ExitNotifier fans an unexpected encoder exit out to every configured
// channel. Each channel is delivered independently in its own goroutine,
// so a slow SMTP server never delays the webhook.
type ExitNotifier struct {
	cfg config.NotificationsConfig
	wg  sync.WaitGroup
}

// NewExitNotifier returns an ExitNotifier for the given settings.
func NewExitNotifier(cfg config.NotificationsConfig) *ExitNotifier {
	return &ExitNotifier{cfg: cfg}
}

// HandleExit triggers notifications for an exit event. It does not block.
func (n *ExitNotifier) HandleExit(event types.ExitEvent) {
	if n.cfg.HasWebhook() {
		n.send(func() error { return SendExitWebhook(n.cfg.WebhookURL, event) }, "Exit webhook")
	}
	if n.cfg.HasEmail() {
		n.send(func() error { return SendExitAlert(EmailConfigFrom(n.cfg.Email), event) }, "Exit email")
	}
	if n.cfg.HasLogPath() {
		n.send(func() error { return LogExit(n.cfg.LogPath, event) }, "Exit log")
	}
}

// Wait blocks until all pending deliveries have finished.
func (n *ExitNotifier) Wait() {
	n.wg.Wait()
}

// TestWebhook sends a test webhook.
func (n *ExitNotifier) TestWebhook() error {
	return SendTestWebhook(n.cfg.WebhookURL)
}

// TestEmail sends a test email.
func (n *ExitNotifier) TestEmail() error {
	return SendTestEmail(EmailConfigFrom(n.cfg.Email))
}

// TestLog writes a test entry to the event log.
func (n *ExitNotifier) TestLog() error {
	return WriteTestLog(n.cfg.LogPath)
}

func (n *ExitNotifier) send(fn func() error, notifyType string) {
	n.wg.Go(func() {
		util.LogNotifyResult(fn, notifyType, true)
	})
}
