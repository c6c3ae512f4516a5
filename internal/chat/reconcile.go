package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunReconciler periodically recounts unread counters from the message
// log. Mark-read touches two collections without a shared transaction
// boundary in every store, so a drifted counter is possible; the recount
// converges it.
func RunReconciler(ctx context.Context, store Store, rec Reconciler, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conversations, err := store.ListConversations(ctx, StatusActive)
			if err != nil {
				log.Error().Err(err).Msg("reconcile: list conversations")
				continue
			}
			for _, c := range conversations {
				count, err := rec.RecountUnread(ctx, c.VisitorID)
				if err != nil {
					log.Error().Err(err).Str("conversation_id", c.VisitorID).Msg("reconcile: recount")
					continue
				}
				if count != c.UnreadCount {
					log.Info().
						Str("conversation_id", c.VisitorID).
						Int("was", c.UnreadCount).
						Int("now", count).
						Msg("unread counter reconciled")
				}
			}
		}
	}
}
