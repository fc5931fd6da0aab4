package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "aquabot/pkg/logx"
)

// systemdNotifier speaks sd_notify when running under a Type=notify unit.
// Outside systemd every call is a no-op.
type systemdNotifier struct {
	log logx.Logger
}

func newSystemdNotifier(log logx.Logger) *systemdNotifier {
	return &systemdNotifier{log: log.With(logx.String("comp", "systemd"))}
}

func (n *systemdNotifier) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *systemdNotifier) Ready()    { n.notify(daemon.SdNotifyReady) }
func (n *systemdNotifier) Stopping() { n.notify(daemon.SdNotifyStopping) }

// Watchdog pings at half the configured WatchdogSec until ctx ends.
func (n *systemdNotifier) Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	n.log.Info("watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
