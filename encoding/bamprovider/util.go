package bamprovider

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// RefByName finds a sam.Reference with the given name. It returns nil if a
// reference is not found.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// NewRefIterator creates an iterator for half-open range [refName:start,
// refName:limit). Start and limit are both base zero.  The iterator will yield
// reads whose alignments overlap the given range.
func NewRefIterator(p Provider, refName string, start, limit int) Iterator {
	h, err := p.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := RefByName(h, refName)
	if ref == nil {
		return NewErrorIterator(errors.E(errors.NotExist, "bamprovider.NewRefIterator: reference '"+refName+"' not found"))
	}
	if start < 0 || limit <= start {
		return NewErrorIterator(errors.E(errors.Invalid, "bamprovider.NewRefIterator: empty range"))
	}
	return p.NewIterator(Shard{Ref: ref, Start: start, End: limit})
}
