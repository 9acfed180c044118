// Package guard holds checks that run before a topology snapshot replaces the
// published one.
package guard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/septivank/crm-topology-worker/internal/topology"
)

// ErrTopologyShrunk is returned when a snapshot lost too many clients.
var ErrTopologyShrunk = errors.New("topology shrank beyond the allowed ratio")

// PreviousCounter reports the client count of the last published snapshot.
type PreviousCounter interface {
	LatestClientCount(ctx context.Context) (int, bool, error)
}

// ShrinkGuard rejects snapshots whose client count dropped below a ratio of
// the previous one. A zero ratio disables the check.
type ShrinkGuard struct {
	minRatio float64
	previous PreviousCounter
	logger   *zap.Logger
}

// NewShrinkGuard creates a new shrink guard with the given ratio
func NewShrinkGuard(minRatio float64, previous PreviousCounter, logger *zap.Logger) *ShrinkGuard {
	return &ShrinkGuard{
		minRatio: minRatio,
		previous: previous,
		logger:   logger,
	}
}

// Exceeds checks whether current shrank too far from previous
func (g *ShrinkGuard) Exceeds(previous, current int) (bool, string) {
	if g.minRatio <= 0 || previous <= 0 {
		return false, ""
	}

	floor := g.minRatio * float64(previous)
	if float64(current) < floor {
		return true, fmt.Sprintf("client count %d is below %.2f x previous count %d",
			current, g.minRatio, previous)
	}

	return false, ""
}

// Publish implements topology.Sink.
func (g *ShrinkGuard) Publish(ctx context.Context, snap *topology.Snapshot) error {
	if g.minRatio <= 0 {
		return nil
	}

	previous, ok, err := g.previous.LatestClientCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to read previous client count: %w", err)
	}
	if !ok {
		return nil
	}

	if shrunk, reason := g.Exceeds(previous, len(snap.Clients)); shrunk {
		g.logger.Warn("refusing to publish topology", zap.String("reason", reason))
		return fmt.Errorf("%w: %s", ErrTopologyShrunk, reason)
	}
	return nil
}
