package interval

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// PosType is the type used to represent interval coordinates.  int32 should be
// wide enough for some time to come, since that's what BAM is limited to.
type PosType int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// Strand is the orientation label of a region.  It is carried through to
// output file names only; sequences are never reverse-complemented.
type Strand byte

const (
	// StrandFwd is the '+' strand.
	StrandFwd Strand = '+'
	// StrandRev is the '-' strand.
	StrandRev Strand = '-'
)

// Suffix returns the output-file suffix for the strand: "_F" for '+', "_R"
// for '-'.
func (s Strand) Suffix() string {
	if s == StrandFwd {
		return "_F"
	}
	return "_R"
}

// String implements fmt.Stringer.
func (s Strand) String() string {
	return string([]byte{byte(s)})
}

// Region is one record of a region list, with 0-based half-open coordinates.
type Region struct {
	Contig string
	Start  PosType
	End    PosType
	// Label is the gene/feature name.  It names the per-gene output files.
	Label  string
	Strand Strand
}

// String returns the region formatted as contig:start-end(strand), with
// 0-based coordinates.
func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d(%v)", r.Contig, r.Start, r.End, r.Strand)
}

// nRegionCol is the number of leading columns a region line must have.  Any
// further columns are ignored.
const nRegionCol = 5

// getTabTokens identifies up to the first len(tokens) tab-separated tokens
// from curLine, returning the number of tokens saved.  Trailing '\r' is
// stripped.
func getTabTokens(tokens [][]byte, curLine []byte) int {
	lineLen := len(curLine)
	for lineLen > 0 && (curLine[lineLen-1] == '\r' || curLine[lineLen-1] == '\n') {
		lineLen--
	}
	pos := 0
	for tokenIdx := range tokens {
		if pos > lineLen {
			return tokenIdx
		}
		posEnd := pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] == '\t' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
		pos = posEnd + 1
	}
	return len(tokens)
}

// isBlank returns true iff line consists only of whitespace.
func isBlank(line []byte) bool {
	for _, c := range line {
		if c > ' ' {
			return false
		}
	}
	return true
}

func parsePos(token []byte, lineIdx int, what string) (PosType, error) {
	v, err := strconv.Atoi(gunsafe.BytesToString(token))
	if err != nil {
		return 0, errors.E(errors.Invalid, err, fmt.Sprintf("interval: line %d: bad %s coordinate %q", lineIdx, what, token))
	}
	if v < 0 || v >= PosTypeMax {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("interval: line %d: %s coordinate %d out of range", lineIdx, what, v))
	}
	return PosType(v), nil
}

// NewRegions reads a region list.  Blank lines are skipped; every other line
// must carry at least five tab-separated columns.
func NewRegions(reader io.Reader) (regions []Region, err error) {
	scanner := bufio.NewScanner(reader)
	var tokens [nRegionCol][]byte
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if isBlank(curLine) {
			continue
		}
		if nToken := getTabTokens(tokens[:], curLine); nToken != nRegionCol {
			err = errors.E(errors.Invalid, fmt.Sprintf("interval: line %d has %d column(s), at least %d expected", lineIdx, nToken, nRegionCol))
			return
		}
		var r Region
		// Copy; curLine is overwritten by the next Scan().
		r.Contig = string(tokens[0])
		if r.Start, err = parsePos(tokens[1], lineIdx, "start"); err != nil {
			return
		}
		if r.End, err = parsePos(tokens[2], lineIdx, "end"); err != nil {
			return
		}
		if r.End <= r.Start {
			err = errors.E(errors.Invalid, fmt.Sprintf("interval: line %d: end %d is not past start %d", lineIdx, r.End, r.Start))
			return
		}
		r.Label = string(tokens[3])
		if r.Contig == "" || r.Label == "" {
			err = errors.E(errors.Invalid, fmt.Sprintf("interval: line %d: empty contig or label", lineIdx))
			return
		}
		switch strand := gunsafe.BytesToString(tokens[4]); strand {
		case "+":
			r.Strand = StrandFwd
		case "-":
			r.Strand = StrandRev
		default:
			err = errors.E(errors.Invalid, fmt.Sprintf("interval: line %d: strand must be '+' or '-', got %q", lineIdx, strand))
			return
		}
		regions = append(regions, r)
	}
	err = scanner.Err()
	return
}

// NewRegionsFromPath is a wrapper for NewRegions that takes a path instead of
// an io.Reader.  Gzipped files are recognized by their extension.
func NewRegionsFromPath(path string) (regions []Region, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer gz.Close()
		reader = gz
	}
	if regions, err = NewRegions(reader); err != nil {
		err = errors.E(err, path)
		return
	}
	log.Printf("%s: %d region(s) loaded", path, len(regions))
	return
}
