package bamprovider

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grailbio/hts/sam"
)

// BAMSuffix is the extension that identifies a BAM file.
const BAMSuffix = ".bam"

// IndexSuffix is appended to a BAM path to locate its index.  A missing index
// is not an error; the BAM is then scanned from the beginning for every region.
const IndexSuffix = ".bai"

// Shard is the half-open genomic range [Start, End) on Ref.
type Shard struct {
	Ref   *sam.Reference
	Start int
	End   int
}

// String returns the shard in the form refname:start-end.
func (s Shard) String() string {
	return fmt.Sprintf("%s:%d-%d", s.Ref.Name(), s.Start, s.End)
}

// overlaps returns true iff rec is mapped to s.Ref and its alignment overlaps
// [s.Start, s.End).
func (s Shard) overlaps(rec *sam.Record) bool {
	if rec.Ref.ID() != s.Ref.ID() || rec.Pos >= s.End {
		return false
	}
	return rec.End() > s.Start
}

// Provider allows reading a BAM file region by region.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over the records whose alignment overlaps
	// the shard.
	//
	// REQUIRES: Close has not been called.
	NewIterator(shard Shard) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in a particular genomic range. Thread
// compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// IsBAMPath returns true iff path names a BAM file.
func IsBAMPath(path string) bool {
	return strings.HasSuffix(path, BAMSuffix)
}

// SampleName returns the sample identifier for a BAM path: the file name with
// its directory and extension removed.
func SampleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewProvider creates a Provider for the BAM file at path.
func NewProvider(path string) Provider {
	return &BAMProvider{Path: path}
}
