package server

import (
	"context"
	"time"
)

// runJanitor periodically evicts authorization sessions past their TTL.
func (s *Server) runJanitor(ctx context.Context) {
	sweepTicker := time.NewTicker(s.cfg.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			expired := s.state.ExpireSessions(time.Now())
			if len(expired) > 0 {
				s.log.Info("expired stale sessions", "count", len(expired))
				s.publishState()
			}
		}
	}
}
