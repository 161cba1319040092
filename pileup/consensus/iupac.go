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
package consensus

import (
	"github.com/consensuskit/bio/pileup"
)

// Counter holds per-base observation counts at one position, indexed by
// pileup.BaseA..pileup.BaseT.
type Counter [pileup.NBase]int

// Add counts base (ASCII, either case).  Bases outside {A,C,G,T} are ignored
// and Add returns false for them.
func (c *Counter) Add(base byte) bool {
	e := pileup.ASCIIToEnumTable[base]
	if e >= pileup.NBase {
		return false
	}
	c[e]++
	return true
}

// Total returns the number of counted bases.
func (c *Counter) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// baseSet is a bitset over pileup.BaseA..pileup.BaseT.
type baseSet uint8

// iupacTable maps a set of two or more bases to its IUPAC ambiguity code.
// Zero entries (the empty set and single bases) resolve to 'N'.
var iupacTable = [1 << pileup.NBase]byte{
	1<<pileup.BaseA | 1<<pileup.BaseC:                                     'M',
	1<<pileup.BaseA | 1<<pileup.BaseG:                                     'R',
	1<<pileup.BaseA | 1<<pileup.BaseT:                                     'W',
	1<<pileup.BaseC | 1<<pileup.BaseG:                                     'S',
	1<<pileup.BaseC | 1<<pileup.BaseT:                                     'Y',
	1<<pileup.BaseG | 1<<pileup.BaseT:                                     'K',
	1<<pileup.BaseA | 1<<pileup.BaseC | 1<<pileup.BaseG:                   'V',
	1<<pileup.BaseA | 1<<pileup.BaseC | 1<<pileup.BaseT:                   'H',
	1<<pileup.BaseA | 1<<pileup.BaseG | 1<<pileup.BaseT:                   'D',
	1<<pileup.BaseC | 1<<pileup.BaseG | 1<<pileup.BaseT:                   'B',
	1<<pileup.BaseA | 1<<pileup.BaseC | 1<<pileup.BaseG | 1<<pileup.BaseT: 'N',
}

func (s baseSet) iupac() byte {
	if code := iupacTable[s]; code != 0 {
		return code
	}
	return 'N'
}

// ResolveIUPAC returns the IUPAC code of the bases tied at the maximum count.
// A single winning base, or no observations at all, yields 'N': the code
// describes ties only.
func ResolveIUPAC(c Counter) byte {
	max := 0
	for _, n := range c {
		if n > max {
			max = n
		}
	}
	var s baseSet
	for b, n := range c {
		if n == max {
			s |= 1 << uint(b)
		}
	}
	return s.iupac()
}
