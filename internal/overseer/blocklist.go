package overseer

import (
	"context"
	"log/slog"
	"time"
)

// DefaultBlocklistPollInterval is the default admin-block poll interval,
// satisfying spec.md §4.5's "poll interval ≤ 5 s" requirement.
const DefaultBlocklistPollInterval = 5 * time.Second

// RunBlocklistPoller polls the user store for newly-blocked users and
// requests termination of all of their live streams. Runs until ctx is
// canceled. Grounded on the teacher's ticker-based polling idiom.
func (o *Overseer) RunBlocklistPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 || interval > DefaultBlocklistPollInterval {
		interval = DefaultBlocklistPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollBlocklist(ctx)
		}
	}
}

func (o *Overseer) pollBlocklist(ctx context.Context) {
	blocked, err := o.users.ListBlocked(ctx)
	if err != nil {
		o.logger.Warn("polling blocked users failed", slog.String("error", err.Error()))
		return
	}

	for _, userID := range blocked {
		for _, handle := range o.registry.ForUser(userID) {
			handle.RequestStop("admin block")
		}
	}
}
