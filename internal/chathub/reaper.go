package chathub

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ReaperService periodically expires stale queue entries and stale
// pre-connect call sessions. Rooms clean themselves up and presence is
// connection-driven, so neither is touched here. Sweeps are posted to the
// hub's task channel and run on the hub loop.
type ReaperService struct {
	hub *ManagerService

	QueueTTL        time.Duration
	QueueSweepEvery time.Duration
	CallTTL         time.Duration
	CallSweepEvery  time.Duration
}

func NewReaperService(hub *ManagerService) *ReaperService {
	return &ReaperService{
		hub:             hub,
		QueueTTL:        5 * time.Minute,
		QueueSweepEvery: time.Minute,
		CallTTL:         5 * time.Minute,
		CallSweepEvery:  5 * time.Minute,
	}
}

func (r *ReaperService) Run(ctx context.Context) {
	log.Info().Str("module", "reaper").
		Dur("queue_ttl", r.QueueTTL).
		Dur("call_ttl", r.CallTTL).
		Msg("reaper started")

	queueTicker := time.NewTicker(r.QueueSweepEvery)
	callTicker := time.NewTicker(r.CallSweepEvery)
	defer queueTicker.Stop()
	defer callTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "reaper").Msg("reaper stopped")
			return
		case <-queueTicker.C:
			r.hub.TaskCh <- func() { r.hub.Matcher.ExpireStale(r.QueueTTL) }
		case <-callTicker.C:
			r.hub.TaskCh <- func() { r.hub.Calls.SweepStale(r.CallTTL) }
		}
	}
}
