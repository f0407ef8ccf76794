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

// Command succinctd is a small demo/benchmark harness: it fills a
// catalog of Uncompressed segments with synthetic rows, starts the
// adaptive controller, drives a scan workload skewed toward a subset
// of segments, and reports how the data-size accounting responds.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/sneller-labs/succinct/bufmgr"
	"github.com/sneller-labs/succinct/controller"
	"github.com/sneller-labs/succinct/segment"
)

var (
	dashn    int
	dashs    int
	dashsize int
	dasha    bool
	dashd    time.Duration
	dashcfg  string
)

func init() {
	flag.IntVar(&dashn, "n", 20, "number of segments to create")
	flag.IntVar(&dashs, "s", 8192, "rows per segment")
	flag.IntVar(&dashsize, "segment-size", 64*1024, "reserved bytes per Uncompressed segment")
	flag.BoolVar(&dasha, "adaptive", true, "enable the adaptive controller instead of per-scan lazy compaction")
	flag.DurationVar(&dashd, "interval", 200*time.Millisecond, "controller iteration interval")
	flag.StringVar(&dashcfg, "config", "", "optional succinct.yaml tuning file (replaces -adaptive and the built-in segment options if given)")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func loadOpts() segment.Options {
	if dashcfg == "" {
		return segment.Options{
			SuccinctEnabled:                    true,
			AdaptiveSuccinctCompressionEnabled: dasha,
			PadToNextByte:                      false,
			ExtractPrefix:                      true,
		}
	}
	data, err := os.ReadFile(dashcfg)
	if err != nil {
		exitf("reading %s: %s", dashcfg, err)
	}
	opts, err := segment.LoadOptionsYAML(data)
	if err != nil {
		exitf("parsing %s: %s", dashcfg, err)
	}
	return opts
}

func fillSegment(s *segment.Segment, rng *rand.Rand, hot bool) {
	as, err := s.InitAppend()
	if err != nil {
		exitf("InitAppend: %s", err)
	}
	buf := make([]byte, dashs*8)
	for i := 0; i < dashs; i++ {
		var v uint64
		if hot {
			v = uint64(i) // sequential, narrow range once frame-of-reference kicks in
		} else {
			v = rng.Uint64() % (1 << 40)
		}
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	n, err := s.Append(&as, buf, 0, dashs, nil)
	if err != nil {
		exitf("Append: %s", err)
	}
	if _, err := s.FinalizeAppend(&as); err != nil {
		exitf("FinalizeAppend: %s", err)
	}
	if n != dashs {
		log.Printf("segment %s: appended %d/%d rows (capacity-limited)", s.ID(), n, dashs)
	}
}

func main() {
	flag.Parse()
	opts := loadOpts()

	bm := bufmgr.NewRefManager()
	cat := segment.NewCatalog(bm, opts)

	rng := rand.New(rand.NewSource(1))
	segs := make([]*segment.Segment, dashn)
	for i := range segs {
		s := cat.NewSegment(segment.U64, i*dashs, dashsize)
		fillSegment(s, rng, i%4 == 0)
		segs[i] = s
	}

	var ctl *controller.Controller
	if opts.SuccinctEnabled && opts.AdaptiveSuccinctCompressionEnabled {
		ctl = controller.New(cat, controller.Policy{
			Rho:      0.90,
			Interval: dashd,
			Weight:   controller.EqualWeight,
		})
		ctl.Logger = log.Default()
		ctl.Start()
		defer ctl.Close()
	}

	// drive a read-skewed workload: only the first quarter of segments
	// is scanned, so they rank hottest; each controller iteration keeps
	// the top of that ranking (from cumulative share rho=0.90 on)
	// Uncompressed and packs the rest down.
	hot := segs[:len(segs)/4]
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := hot[rng.Intn(len(hot))]
		st := s.InitScan()
		out := make([]byte, 64*8)
		s.ScanPartial(&st, 64, out, 0)
	}

	time.Sleep(dashd * 3) // give the controller a couple more iterations to settle

	var compacted int
	for _, s := range segs {
		if s.IsCompacted() {
			compacted++
		}
	}
	fmt.Printf("segments=%d compacted=%d total_data_size=%d bufmgr_data_size=%d\n",
		len(segs), compacted, cat.TotalDataSize(), bm.DataSize())
}
