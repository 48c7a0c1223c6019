// Package publish delivers snapshots to the shared medium that an external
// dashboard poller consumes. The file publisher writes atomically (temp
// file then rename) so a reader never observes a partially written payload;
// the websocket publisher pushes the same payload to connected consumers;
// the history writer appends published samples to a JSONL log.
package publish

import (
	"context"

	"github.com/hostpulse/hostpulse/telemetry"
)

// Publisher writes one internally consistent snapshot to a medium. A failed
// publish is reported to the caller but must leave any previously published
// payload intact.
type Publisher interface {
	Publish(ctx context.Context, snap telemetry.Snapshot) error
}
