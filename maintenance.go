package main

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// idleCloser and pruner are the pieces of the shell and connection
// managers that periodic maintenance needs.
type idleCloser interface {
	CleanupIdle() int
}

type pruner interface {
	PruneDisconnected() int
}

// runMaintenance closes idle shells and forgets dropped connections.
func runMaintenance(shells idleCloser, conns pruner) (closed, pruned int) {
	closed = shells.CleanupIdle()
	pruned = conns.PruneDisconnected()
	if closed > 0 || pruned > 0 {
		log.Printf("Maintenance: closed %d idle shell(s), pruned %d dropped connection(s)", closed, pruned)
	}
	return closed, pruned
}

// scheduleMaintenance registers runMaintenance on a cron schedule such as
// "@every 10m". The returned scheduler is not started.
func scheduleMaintenance(schedule string, shells idleCloser, conns pruner) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { runMaintenance(shells, conns) }); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", schedule, err)
	}
	return c, nil
}
