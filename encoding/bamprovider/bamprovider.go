package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files.  Both BAM and the index
// filenames are allowed to be S3 URLs, in which case the data will be read from
// S3. Otherwise the data will be read from the local filesystem.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	err  errors.Once

	mu      sync.Mutex
	nActive int
	header  *sam.Header
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	// chunks is non-nil when the index narrowed the read down to a set of
	// bgzf chunks.
	chunks *bam.Iterator
	shard  Shard
	// sorted allows the sequential scan to stop at the first record past the
	// shard.
	sorted bool

	err  error
	rec  *sam.Record
	done bool
}

func (b *BAMProvider) indexPath() string {
	return b.Path + IndexSuffix
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx)
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		err = errors.E(errors.Invalid, err, b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close()
	b.header = bamReader.Header()
	return b.header, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	return b.err.Err()
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(shard Shard) Iterator {
	b.mu.Lock()
	b.nActive++
	b.mu.Unlock()
	iter := &bamIterator{provider: b, shard: shard}
	iter.err = iter.open()
	return iter
}

func (i *bamIterator) open() (err error) {
	if i.shard.Ref == nil || i.shard.Start >= i.shard.End {
		return errors.E(errors.Invalid, fmt.Sprintf("bamprovider: invalid shard %+v", i.shard))
	}
	ctx := vcontext.Background()
	b := i.provider
	if i.in, err = file.Open(ctx, b.Path); err != nil {
		return
	}
	if i.reader, err = bam.NewReader(i.in.Reader(ctx), 1); err != nil {
		return errors.E(errors.Invalid, err, b.Path)
	}
	i.sorted = i.reader.Header().SortOrder == sam.Coordinate

	indexIn, err := file.Open(ctx, b.indexPath())
	if err != nil {
		if !errors.Is(errors.NotExist, err) {
			return
		}
		vlog.VI(1).Infof("%v: no index at %v, scanning %v sequentially", b.Path, b.indexPath(), i.shard)
		return nil
	}
	defer file.CloseAndReport(ctx, indexIn, &err)
	var idx *bam.Index
	if idx, err = bam.ReadIndex(indexIn.Reader(ctx)); err != nil {
		return errors.E(errors.Invalid, err, b.indexPath())
	}
	chunks, err := idx.Chunks(i.shard.Ref, i.shard.Start, i.shard.End)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		// No reads for this interval.
		i.done = true
		return nil
	}
	if err != nil {
		return
	}
	i.chunks, err = bam.NewIterator(i.reader, chunks)
	return
}

// next reads the next record, either from the index chunks or sequentially.
func (i *bamIterator) next() (*sam.Record, error) {
	if i.chunks != nil {
		if !i.chunks.Next() {
			if err := i.chunks.Error(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return i.chunks.Record(), nil
	}
	return i.reader.Read()
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if i.err != nil || i.done {
		return false
	}
	for {
		i.rec, i.err = i.next()
		if i.err != nil {
			return false
		}
		if i.shard.overlaps(i.rec) {
			return true
		}
		if i.sorted && i.chunks == nil && i.pastShard(i.rec) {
			i.done = true
			return false
		}
	}
}

// pastShard returns true iff no record after rec can overlap the shard in a
// coordinate-sorted BAM.
func (i *bamIterator) pastShard(rec *sam.Record) bool {
	refID := rec.Ref.ID()
	if refID < 0 {
		// Unmapped reads are stored last.
		return true
	}
	return refID > i.shard.Ref.ID() || (refID == i.shard.Ref.ID() && rec.Pos >= i.shard.End)
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.rec
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	ctx := vcontext.Background()
	if i.chunks != nil {
		if err := i.chunks.Close(); err != nil && i.Err() == nil {
			i.err = err
		}
		i.chunks = nil
	}
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.Err() == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(ctx); err != nil && i.Err() == nil {
			i.err = err
		}
		i.in = nil
	}
	err := i.Err()
	b := i.provider
	b.err.Set(err)
	b.mu.Lock()
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
	return err
}
