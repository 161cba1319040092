package bamprovider

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
	err    error
}

type fakeIterator struct {
	recs  []*sam.Record
	rec   *sam.Record
	shard Shard
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and those of recs that overlap the requested shard from
// NewIterator calls, in the given order.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header: header, recs: recs}
}

// NewFailingProvider creates a provider whose every operation fails with err,
// emulating an unreadable BAM file.
func NewFailingProvider(err error) Provider {
	return &fakeProvider{err: errors.E(errors.Invalid, err)}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(shard Shard) Iterator {
	if b.err != nil {
		return NewErrorIterator(b.err)
	}
	return &fakeIterator{recs: b.recs, shard: shard}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return nil
}

func (i *fakeIterator) Scan() bool {
	for len(i.recs) > 0 {
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if i.shard.overlaps(i.rec) {
			return true
		}
	}
	return false
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
