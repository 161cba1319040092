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
	"github.com/consensuskit/bio/interval"
)

// Common pileup components.

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// These constants double as indexes into per-base count arrays, in A,C,G,T
// order.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

// NBase is the number of regular base types.
const NBase = 4

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnumTable maps an ASCII base to A/C/G/T/X.  Lower case is accepted.
var ASCIIToEnumTable = func() (t [256]byte) {
	for i := range t {
		t[i] = BaseX
	}
	for e, c := range EnumToASCIITable[:NBase] {
		t[c] = byte(e)
		t[c+'a'-'A'] = byte(e)
	}
	return
}()
