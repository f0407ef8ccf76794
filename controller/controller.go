// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package controller implements the adaptive compaction controller
// (spec §4.E): a single long-lived goroutine that periodically ranks
// segments by recent read count and issues Compact/Uncompact per
// segment so that the cold tail of a workload stays narrow while the
// hot head stays at full width. Grounded on tenant/dcache/worker.go's
// goroutine-plus-channel shutdown shape: a done channel the loop
// selects on, and a WaitGroup the caller joins before returning from
// Close.
package controller

import (
	"sync"
	"time"
)

// Logger is satisfied by *log.Logger and by tenant/dcache.Logger;
// a nil Logger silently discards.
type Logger interface {
	Printf(f string, args ...interface{})
}

// Weighting selects how the controller accumulates "coldness" while
// walking the ascending-by-reads snapshot (spec §4.E step 3 and §9's
// open question: both variants are plausible and the choice is a
// tunable, not a correctness property).
type Weighting int

const (
	// EqualWeight increments the cumulative count by 1 per segment,
	// so the partition point is purely about rank, not magnitude.
	// This is the default: it is immune to a single very hot segment
	// skewing the whole partition, at the cost of reacting to a
	// sudden hot-spot shift only as fast as the segment count changes.
	EqualWeight Weighting = iota
	// ReadWeighted increments by the segment's num_reads, reacting
	// faster to sudden shifts but more prone to thrashing when one
	// segment dominates the read count.
	ReadWeighted
)

// Policy tunes one controller instance.
type Policy struct {
	// Rho (ρ) is the target compression rate: the fraction of
	// cumulative weight, scanned ascending by reads, that should end
	// up compacted. Default 0.90 per spec §4.E.
	Rho float64
	// Interval is the sleep between iterations. Default 10s.
	Interval time.Duration
	// Weight selects EqualWeight or ReadWeighted accumulation.
	Weight Weighting
}

// DefaultPolicy matches spec §4.E's literal numbers.
func DefaultPolicy() Policy {
	return Policy{Rho: 0.90, Interval: 10 * time.Second, Weight: EqualWeight}
}

// Ranked is one entry of a statistics snapshot, ascending by reads.
type Ranked struct {
	ID       [16]byte
	NumReads uint64
}

// Registry is the subset of segment.Catalog the controller needs:
// a ranked snapshot of recent reads, a way to reset counts for the
// next interval, and compact/uncompact actions keyed by identity.
// Defined as an interface so the controller can be tested against a
// fake without constructing real segments or a buffer manager.
type Registry interface {
	SnapshotRankedAscending() []Ranked
	ResetCounts()
	Compact(id [16]byte) error
	Uncompact(id [16]byte) error
}

// Controller runs Policy's partition decision every Interval against
// Registry, on its own goroutine, started lazily by Start and joined
// by Close (spec §5: "in-flight compact/uncompact calls must finish
// before shutdown proceeds").
type Controller struct {
	reg    Registry
	policy Policy
	Logger Logger

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a controller against reg, not yet running.
func New(reg Registry, policy Policy) *Controller {
	return &Controller{reg: reg, policy: policy, done: make(chan struct{})}
}

// Start launches the background loop if it is not already running.
// Safe to call more than once or from more than one goroutine;
// exactly one loop is ever started (spec: "exactly one such loop
// exists per database instance").
func (c *Controller) Start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.run()
	})
}

// Close stops the background loop and waits for any in-flight
// iteration to finish.
func (c *Controller) Close() {
	close(c.done)
	c.wg.Wait()
}

func (c *Controller) run() {
	defer c.wg.Done()
	t := time.NewTicker(c.policy.Interval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.iterate()
		}
	}
}

func (c *Controller) logf(f string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(f, args...)
	}
}

// iterate runs exactly one pass of spec §4.E's steps 1-4.
func (c *Controller) iterate() {
	snapshot := c.reg.SnapshotRankedAscending()
	r := len(snapshot)
	if r == 0 {
		return
	}

	var cum float64
	total := c.totalWeight(snapshot)
	for _, entry := range snapshot {
		switch c.policy.Weight {
		case ReadWeighted:
			cum += float64(entry.NumReads)
		default:
			cum++
		}

		var frac float64
		if c.policy.Weight == ReadWeighted {
			if total == 0 {
				frac = 1 // nothing read at all: treat everything as cold
			} else {
				frac = cum / total
			}
		} else {
			frac = cum / float64(r)
		}

		var err error
		if frac < c.policy.Rho {
			err = c.reg.Compact(entry.ID)
		} else {
			err = c.reg.Uncompact(entry.ID)
		}
		if err != nil {
			// A destroyed-mid-iteration segment or a codec error is
			// logged and skipped; the controller never abends the
			// process (spec §4.E failure semantics).
			c.logf("controller: segment %x: %v", entry.ID, err)
		}
	}
	c.reg.ResetCounts()
}

func (c *Controller) totalWeight(snapshot []Ranked) float64 {
	if c.policy.Weight != ReadWeighted {
		return float64(len(snapshot))
	}
	var total float64
	for _, e := range snapshot {
		total += float64(e.NumReads)
	}
	return total
}
