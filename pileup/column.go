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
package pileup

import (
	"fmt"

	"github.com/consensuskit/bio/encoding/bamprovider"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// Read is a single read's observation at a pileup column.
type Read struct {
	// Base is the ASCII base called by the read; it is zero for deletions and
	// reference skips.
	Base byte
	// Qual is the base quality of Base, after overlapping mates have been
	// reconciled.
	Qual      byte
	IsDel     bool
	IsRefSkip bool
}

// Column is the read evidence at one reference position.
type Column struct {
	Pos   PosType
	Reads []Read
}

// Opts controls which reads and bases enter the pileup.
type Opts struct {
	// MinBaseQual drops aligned bases with a lower base quality.  The read
	// still counts as covering the position.
	MinBaseQual int
	// Mapq drops reads with a lower mapping quality.
	Mapq int
	// FlagExclude drops reads with a FLAG bit intersecting this value.
	FlagExclude int
	// IgnoreOverlaps reconciles the bases of overlapping mates so that a
	// fragment is counted once per position.
	IgnoreOverlaps bool
	// IgnoreOrphans drops paired reads that are not in a proper pair.
	IgnoreOrphans bool
}

// DefaultOpts matches the default samtools mpileup read filter.
var DefaultOpts = Opts{
	MinBaseQual:    20,
	Mapq:           0,
	FlagExclude:    int(sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate),
	IgnoreOverlaps: true,
	IgnoreOrphans:  true,
}

// maxOverlapQual caps the summed quality of agreeing mates.
const maxOverlapQual = 200

// pendingColumn is a position that reads may still add to.
type pendingColumn struct {
	covered bool
	reads   []Read
}

// firstMate remembers where the bases of a read landed, until its overlapping
// mate arrives.
type firstMate struct {
	flags sam.Flags
	// base is the position of readIdx[0].
	base PosType
	// readIdx[i] is the index of the read's base in the column at base+i, or
	// -1 if the read has no base there.
	readIdx []int
}

// columnBuilder turns coordinate-sorted reads into columns over [start, end).
// Only positions that a future read can still reach are kept in memory.
type columnBuilder struct {
	start, end PosType
	opts       *Opts
	emit       func(Column) error

	// pending[i] is the column at position base+i.
	base    PosType
	pending []pendingColumn
	// lastPos is the position of the last read added, to check sorting.
	lastPos PosType
	mates   map[string]*firstMate
}

func newColumnBuilder(start, end PosType, opts *Opts, emit func(Column) error) *columnBuilder {
	return &columnBuilder{
		start:   start,
		end:     end,
		opts:    opts,
		emit:    emit,
		lastPos: -1,
		mates:   make(map[string]*firstMate),
	}
}

func (cb *columnBuilder) slot(pos PosType) *pendingColumn {
	if len(cb.pending) == 0 {
		cb.base = pos
	}
	for int(pos-cb.base) >= len(cb.pending) {
		cb.pending = append(cb.pending, pendingColumn{})
	}
	return &cb.pending[pos-cb.base]
}

// flush emits every pending column before limit.
func (cb *columnBuilder) flush(limit PosType) error {
	n := 0
	for n < len(cb.pending) && cb.base+PosType(n) < limit {
		pc := &cb.pending[n]
		if pc.covered {
			col := Column{Pos: cb.base + PosType(n)}
			for _, r := range pc.reads {
				if r.IsDel || r.IsRefSkip || int(r.Qual) >= cb.opts.MinBaseQual {
					col.Reads = append(col.Reads, r)
				}
			}
			if err := cb.emit(col); err != nil {
				return err
			}
		}
		n++
	}
	if n == 0 {
		return nil
	}
	m := copy(cb.pending, cb.pending[n:])
	for i := m; i < len(cb.pending); i++ {
		cb.pending[i] = pendingColumn{}
	}
	cb.pending = cb.pending[:m]
	cb.base += PosType(n)
	for name, fm := range cb.mates {
		if fm.base+PosType(len(fm.readIdx)) <= cb.base {
			// The mate never showed up inside the overlap.
			delete(cb.mates, name)
		}
	}
	return nil
}

// overlapsMate returns true iff samr is the leftmost of two mapped mates whose
// alignments overlap.
func overlapsMate(samr *sam.Record) bool {
	if samr.Flags&sam.Paired == 0 || samr.Flags&sam.MateUnmapped != 0 {
		return false
	}
	if samr.MateRef.ID() != samr.Ref.ID() || samr.MatePos < samr.Pos {
		return false
	}
	return samr.MatePos < samr.End()
}

// reconcileMates adjusts the qualities of two overlapping mates that both
// have a base at one position, the way samtools does: agreeing bases are
// counted once with the summed quality; otherwise the better base is kept
// with 80% of its quality.
func reconcileMates(cur, mate *Read) {
	if cur.Base == mate.Base {
		q := int(cur.Qual) + int(mate.Qual)
		if q > maxOverlapQual {
			q = maxOverlapQual
		}
		cur.Qual = byte(q)
		mate.Qual = 0
		return
	}
	if cur.Qual >= mate.Qual {
		cur.Qual = byte(int(cur.Qual) * 4 / 5)
		mate.Qual = 0
		return
	}
	mate.Qual = byte(int(mate.Qual) * 4 / 5)
	cur.Qual = 0
}

// addRecord walks the CIGAR of samr and records every observation that falls
// inside [start, end).
func (cb *columnBuilder) addRecord(samr *sam.Record) error {
	pos0 := PosType(samr.Pos)
	if pos0 < cb.lastPos {
		return errors.E(errors.Invalid, fmt.Sprintf("pileup: read %s at %d follows position %d; input must be coordinate-sorted", samr.Name, pos0, cb.lastPos))
	}
	cb.lastPos = pos0
	if err := cb.flush(pos0); err != nil {
		return err
	}

	var (
		mate  *firstMate // the earlier, overlapping mate of samr
		track *firstMate // set when samr's own mate is still to come
	)
	if cb.opts.IgnoreOverlaps && samr.Flags&sam.Paired != 0 {
		if fm, ok := cb.mates[samr.Name]; ok && fm.flags&(sam.Read1|sam.Read2) != samr.Flags&(sam.Read1|sam.Read2) {
			mate = fm
			delete(cb.mates, samr.Name)
		} else if overlapsMate(samr) {
			track = &firstMate{flags: samr.Flags, base: -1}
		}
	}

	seq := samr.Seq.Expand()
	qual := samr.Qual
	posInRef := pos0
	posInRead := 0
	for _, co := range samr.Cigar {
		// Iterate over one CIGAR operation at a time.
		cLen := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < cLen; i++ {
				pos := posInRef + PosType(i)
				if pos < cb.start || pos >= cb.end {
					continue
				}
				readIdx := posInRead + i
				if readIdx >= len(seq) {
					return errors.E(errors.Invalid, fmt.Sprintf("pileup: read %s has CIGAR %v longer than its sequence (%d)", samr.Name, samr.Cigar, len(seq)))
				}
				// A missing quality string is stored as 0xff bytes and passes.
				var q byte = 0xff
				if readIdx < len(qual) {
					q = qual[readIdx]
				}
				r := Read{Base: seq[readIdx], Qual: q}
				pc := cb.slot(pos)
				pc.covered = true
				if mate != nil {
					if off := int(pos - mate.base); off >= 0 && off < len(mate.readIdx) && mate.readIdx[off] >= 0 {
						reconcileMates(&r, &pc.reads[mate.readIdx[off]])
					}
				}
				if track != nil {
					if track.base < 0 {
						track.base = pos
					}
					for int(pos-track.base) > len(track.readIdx) {
						track.readIdx = append(track.readIdx, -1)
					}
					track.readIdx = append(track.readIdx, len(pc.reads))
				}
				pc.reads = append(pc.reads, r)
			}
			posInRef += PosType(cLen)
			posInRead += cLen
		case sam.CigarDeletion, sam.CigarSkipped:
			isDel := co.Type() == sam.CigarDeletion
			for i := 0; i < cLen; i++ {
				pos := posInRef + PosType(i)
				if pos < cb.start || pos >= cb.end {
					continue
				}
				pc := cb.slot(pos)
				pc.covered = true
				pc.reads = append(pc.reads, Read{IsDel: isDel, IsRefSkip: !isDel})
			}
			posInRef += PosType(cLen)
		case sam.CigarInsertion, sam.CigarSoftClipped:
			// Insertions are ignored; only the read position advances.
			posInRead += cLen
		case sam.CigarHardClipped, sam.CigarPadded:
			// do nothing
		default:
			return errors.E(errors.Invalid, fmt.Sprintf("pileup: unexpected CIGAR code %v in read %s", co, samr.Name))
		}
		if posInRef >= cb.end {
			break
		}
	}
	if track != nil && track.base >= 0 {
		cb.mates[samr.Name] = track
	}
	return nil
}

// skipRecord returns true iff samr fails the read-level filters in opts.
func skipRecord(samr *sam.Record, opts *Opts) bool {
	if (opts.FlagExclude&int(samr.Flags) != 0) || (opts.Mapq > int(samr.MapQ)) || (len(samr.Cigar) == 0) || samr.Seq.Length == 0 {
		return true
	}
	return opts.IgnoreOrphans && samr.Flags&sam.Paired != 0 && samr.Flags&sam.ProperPair == 0
}

// Stream calls fn on each pileup column of [start, end) on refName, in
// ascending position order.  A column exists for every position overlapped by
// at least one read that passes the filters in opts; positions without reads
// are skipped.  Reads must arrive coordinate-sorted.  Memory is bounded by the
// reference span of the reads, not by the length of the range.
func Stream(p bamprovider.Provider, refName string, start, end PosType, opts *Opts, fn func(Column) error) (err error) {
	if end <= start {
		return errors.E(errors.Invalid, fmt.Sprintf("pileup: empty range %s:%d-%d", refName, start, end))
	}
	iter := bamprovider.NewRefIterator(p, refName, int(start), int(end))
	defer func() {
		if e := iter.Close(); e != nil && err == nil {
			err = e
		}
	}()
	cb := newColumnBuilder(start, end, opts, fn)
	nRead, nSkipped := 0, 0
	for iter.Scan() {
		samr := iter.Record()
		// -flag_exclude, -min_mapq, orphan, and blank-read filters
		if skipRecord(samr, opts) {
			nSkipped++
			continue
		}
		if err = cb.addRecord(samr); err != nil {
			return
		}
		nRead++
	}
	if err = iter.Err(); err != nil {
		return
	}
	if err = cb.flush(end); err != nil {
		return
	}
	log.Debug.Printf("pileup %s:%d-%d: %d read(s) used, %d skipped", refName, start, end, nRead, nSkipped)
	return
}

// Pileup returns the columns Stream produces.
func Pileup(p bamprovider.Provider, refName string, start, end PosType, opts *Opts) (cols []Column, err error) {
	err = Stream(p, refName, start, end, opts, func(col Column) error {
		cols = append(cols, col)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cols, nil
}
