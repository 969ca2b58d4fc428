package replication

import (
	"context"
	"time"
)

// backoffSteps is the exponential backoff schedule a peer's drain task
// walks through on repeated transport failure: 30s, 60s, 120s, then
// holds at 120s.
var backoffSteps = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// maxBatchSize bounds how many queued ops a single drain iteration sends
// to one peer.
const maxBatchSize = 50

// HealthSource reports whether a peer is currently healthy enough to
// drain to.
type HealthSource interface {
	IsHealthy(peerNodeID string) bool
}

// Drainer runs one peer's queue-drain task: while the peer is Healthy, it
// sends queued ops in order and advances the queue head on success; on
// transport failure it backs off before retrying the same head entry.
type Drainer struct {
	peerNodeID string
	engine     *Engine
	health     HealthSource
	sleep      func(time.Duration)
}

// NewDrainer creates a Drainer for one peer. sleep defaults to time.Sleep
// when nil; tests inject a fake to avoid real waits.
func NewDrainer(peerNodeID string, engine *Engine, health HealthSource, sleep func(time.Duration)) *Drainer {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Drainer{peerNodeID: peerNodeID, engine: engine, health: health, sleep: sleep}
}

// Run drains the peer's queue until ctx is cancelled. It runs as one
// long-lived goroutine per peer (cmd/solidbnode starts one for each
// --peers entry at startup) and is never restarted — Run itself idles
// (checking health) rather than exiting when the peer is unhealthy.
func (d *Drainer) Run(ctx context.Context) {
	backoffIdx := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !d.health.IsHealthy(d.peerNodeID) {
			d.sleep(time.Second)
			continue
		}

		entries, err := d.engine.queue.DrainQueue(d.peerNodeID, maxBatchSize)
		if err != nil || len(entries) == 0 {
			d.sleep(time.Second)
			continue
		}

		failed := false
		for _, entry := range entries {
			op := opFromQueueEntry(entry)
			if err := d.engine.transport.SendReplicate(ctx, d.peerNodeID, op); err != nil {
				failed = true
				break
			}
			_ = d.engine.queue.AckReplication(entry.ID)
		}

		if failed {
			wait := backoffSteps[backoffIdx]
			if backoffIdx < len(backoffSteps)-1 {
				backoffIdx++
			}
			d.sleep(wait)
			continue
		}
		backoffIdx = 0
	}
}
