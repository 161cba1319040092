// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package consensus calls threshold/IUPAC consensus sequences for BED regions
// across a directory of sample BAMs.
package consensus

import (
	"github.com/consensuskit/bio/encoding/bamprovider"
	"github.com/consensuskit/bio/encoding/fasta"
	"github.com/consensuskit/bio/interval"
	"github.com/consensuskit/bio/pileup"
	"github.com/grailbio/base/errors"
)

type Opts struct {
	// Commandline options.
	BedPath       string
	ReferencePath string
	BAMDir        string
	OutputDir     string

	// MinFraction is the minimum fraction of a position's counted bases a base
	// needs to be called.
	MinFraction float64
	// MinCoverage is the minimum number of counted bases at a position, and
	// the minimum average coverage of a region, for a call.
	MinCoverage int
	MinBaseQual int
	Mapq        int
	FlagExclude int
	// IgnoreOverlaps counts overlapping mates once per position.
	IgnoreOverlaps bool
	// IgnoreOrphans drops paired reads that are not in a proper pair.
	IgnoreOrphans bool
	// MultiBaseIUPAC emits the IUPAC code instead of the concatenated bases
	// when several bases reach MinFraction.
	MultiBaseIUPAC bool
	// Parallelism is the number of samples processed concurrently per region.
	Parallelism int
}

var DefaultOpts = Opts{
	MinFraction:    0.7,
	MinCoverage:    10,
	MinBaseQual:    pileup.DefaultOpts.MinBaseQual,
	Mapq:           pileup.DefaultOpts.Mapq,
	FlagExclude:    pileup.DefaultOpts.FlagExclude,
	IgnoreOverlaps: pileup.DefaultOpts.IgnoreOverlaps,
	IgnoreOrphans:  pileup.DefaultOpts.IgnoreOrphans,
	MultiBaseIUPAC: false,
	Parallelism:    1,
}

func (o *Opts) pileupOpts() *pileup.Opts {
	return &pileup.Opts{
		MinBaseQual:    o.MinBaseQual,
		Mapq:           o.Mapq,
		FlagExclude:    o.FlagExclude,
		IgnoreOverlaps: o.IgnoreOverlaps,
		IgnoreOrphans:  o.IgnoreOrphans,
	}
}

// Result is the consensus of one sample over one region.
type Result struct {
	// Seq is the consensus sequence.  It is empty unless Retained.
	Seq string
	// Retained is set iff AvgCoverage >= Opts.MinCoverage.
	Retained bool
	// AvgCoverage is the number of counted bases over the region divided by
	// the reference length of the region.
	AvgCoverage float64
}

// callColumn returns the consensus symbol(s) for one position.
func callColumn(c *Counter, opts *Opts) []byte {
	total := c.Total()
	if total == 0 || total < opts.MinCoverage {
		return []byte{'N'}
	}
	var called []byte
	var s baseSet
	for b, n := range c {
		if float64(n)/float64(total) >= opts.MinFraction {
			called = append(called, pileup.EnumToASCIITable[b])
			s |= 1 << uint(b)
		}
	}
	switch {
	case len(called) == 0:
		return []byte{ResolveIUPAC(*c)}
	case len(called) > 1 && opts.MultiBaseIUPAC:
		return []byte{s.iupac()}
	}
	return called
}

// caller accumulates the consensus of a region one column at a time.
type caller struct {
	opts          *Opts
	seq           []byte
	totalCoverage int
}

func (c *caller) add(col pileup.Column) {
	var counter Counter
	for _, r := range col.Reads {
		if r.IsDel || r.IsRefSkip {
			continue
		}
		counter.Add(r.Base)
	}
	c.totalCoverage += counter.Total()
	c.seq = append(c.seq, callColumn(&counter, c.opts)...)
}

func (c *caller) result(refLen int) Result {
	var res Result
	if refLen > 0 {
		res.AvgCoverage = float64(c.totalCoverage) / float64(refLen)
	}
	if res.AvgCoverage >= float64(c.opts.MinCoverage) {
		res.Seq = string(c.seq)
		res.Retained = true
	}
	return res
}

// CallColumns computes the consensus of cols, the pileup of a region whose
// reference sequence has length refLen.  Positions without a column are
// skipped, so the sequence can be shorter than refLen.
func CallColumns(cols []pileup.Column, refLen int, opts *Opts) Result {
	c := caller{opts: opts, seq: make([]byte, 0, len(cols))}
	for _, col := range cols {
		c.add(col)
	}
	return c.result(refLen)
}

// ReferenceLength returns the length of the reference sequence under region,
// clamped to the end of the contig.
func ReferenceLength(ref fasta.Fasta, region interval.Region) (int, error) {
	n, err := ref.Len(region.Contig)
	if err != nil {
		return 0, errors.E(errors.NotExist, err, "reference sequence for", region.String())
	}
	start, end := uint64(region.Start), uint64(region.End)
	if end > n {
		end = n
	}
	if start >= end {
		return 0, nil
	}
	return int(end - start), nil
}

// CallProvider computes the consensus of the reads p has over region.
func CallProvider(p bamprovider.Provider, region interval.Region, refLen int, opts *Opts) (Result, error) {
	c := caller{opts: opts}
	err := pileup.Stream(p, region.Contig, region.Start, region.End, opts.pileupOpts(), func(col pileup.Column) error {
		c.add(col)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return c.result(refLen), nil
}

// Call computes the consensus of one sample over region.  Errors from ref are
// reported as errors.NotExist; everything else comes from the alignments.
func Call(p bamprovider.Provider, ref fasta.Fasta, region interval.Region, opts *Opts) (Result, error) {
	refLen, err := ReferenceLength(ref, region)
	if err != nil {
		return Result{}, err
	}
	return CallProvider(p, region, refLen, opts)
}
