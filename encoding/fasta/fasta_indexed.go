package fasta

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

type indexEntry struct {
	name      string
	length    uint64
	offset    uint64
	lineBase  uint64
	lineWidth uint64
}

type indexedFasta struct {
	seqs      map[string]indexEntry
	seqNames  []string // returned by SeqNames()
	reader    io.ReadSeeker
	bufOff    int64
	buf       []byte // caches file contents starting at bufOff.
	resultBuf []byte // temp for concatenating multi-line sequences.
	mutex     sync.Mutex
}

// parseIndex reads a .fai index.  Entries are returned in file-offset order.
func parseIndex(index io.Reader) ([]indexEntry, error) {
	var entries []indexEntry
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(index)
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		matches := indexRegExp.FindStringSubmatch(scanner.Text())
		if len(matches) != 6 {
			return nil, errors.Errorf("invalid index line %d: %s", lineIdx, scanner.Text())
		}
		ent := indexEntry{name: matches[1]}
		ent.length, _ = strconv.ParseUint(matches[2], 10, 64)
		ent.offset, _ = strconv.ParseUint(matches[3], 10, 64)
		ent.lineBase, _ = strconv.ParseUint(matches[4], 10, 64)
		ent.lineWidth, _ = strconv.ParseUint(matches[5], 10, 64)
		if ent.length > 0 && (ent.lineBase == 0 || ent.lineWidth < ent.lineBase) {
			return nil, errors.Errorf("invalid line geometry for %s on index line %d", ent.name, lineIdx)
		}
		if seen[ent.name] {
			return nil, errors.Errorf("duplicate sequence name in index: %s", ent.name)
		}
		seen[ent.name] = true
		entries = append(entries, ent)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA index")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].offset < entries[j].offset
	})
	return entries, nil
}

// NewIndexed creates a new Fasta that can perform efficient random lookups
// using the provided index, without reading the data into memory.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	f := &indexedFasta{seqs: make(map[string]indexEntry, len(entries)), reader: fasta}
	for _, ent := range entries {
		f.seqs[ent.name] = ent
		f.seqNames = append(f.seqNames, ent.name)
	}
	return f, nil
}

// FaiToReferenceLengths reads in a fasta fai file and returns a map of
// reference name to reference length. This doesn't require reading in the fasta
// itself.
func FaiToReferenceLengths(index io.Reader) (map[string]uint64, error) {
	entries, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	lengths := make(map[string]uint64, len(entries))
	for _, ent := range entries {
		lengths[ent.name] = ent.length
	}
	return lengths, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found in index: %s", seqName)
	}
	return ent.length, nil
}

// Read range [off, off+n) from the underlying fasta file.
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off < f.bufOff || limit > f.bufOff+int64(len(f.buf)) {
		if newOffset, err := f.reader.Seek(off, io.SeekStart); err != nil || newOffset != off {
			return nil, errors.Errorf("failed to seek to offset %d: %d, %v", off, newOffset, err)
		}
		bufSize := 8192
		if bufSize < n {
			bufSize = n
		}
		f.resizeBuf(&f.buf, bufSize)
		bytesRead, err := io.ReadAtLeast(f.reader, f.buf, n)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, err
		}
		if bytesRead < n {
			return nil, errors.Errorf("encountered unexpected end of file (bad index? file doesn't end in newline?)")
		}
		f.bufOff = off
		f.buf = f.buf[:bytesRead]
	}
	return f.buf[off-f.bufOff : limit-f.bufOff], nil
}

func (f *indexedFasta) resizeBuf(buf *[]byte, n int) {
	if cap(*buf) < n {
		*buf = make([]byte, n)
	} else {
		*buf = (*buf)[0:n]
	}
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start uint64, end uint64) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	ent, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found in index: %s", seqName)
	}
	if end > ent.length {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, ent.length)
	}

	// Start the read at a byte offset allowing for the presence of newline
	// characters.
	charsPerNewline := ent.lineWidth - ent.lineBase
	offset := ent.offset + start + charsPerNewline*(start/ent.lineBase)

	// Figure out how many characters (including newlines) we should read,
	// and read them.
	firstLineBases := ent.lineBase - (start % ent.lineBase)
	newlinesToRead := uint64(0)
	if end-start > firstLineBases {
		newlinesToRead = 1 + (end-start-firstLineBases)/ent.lineBase
	}
	// The last line of a sequence may be missing its terminator, so never ask
	// for more than the bases themselves plus the interior line breaks.
	capacity := end - start + newlinesToRead*charsPerNewline
	if (end-start-firstLineBases)%ent.lineBase == 0 && newlinesToRead > 0 {
		capacity -= charsPerNewline
	}

	buffer, err := f.read(int64(offset), int(capacity))
	if err != nil {
		return "", err
	}

	// Traverse the bytes we just read and copy the non-newline characters
	// to the result.
	f.resizeBuf(&f.resultBuf, int(end-start))
	linePos := (offset - ent.offset) % ent.lineWidth
	resultPos := 0
	for i := range buffer {
		if linePos < ent.lineBase && resultPos < len(f.resultBuf) {
			f.resultBuf[resultPos] = buffer[i]
			resultPos++
		}
		linePos++
		if linePos == ent.lineWidth {
			linePos = 0
		}
	}
	return string(f.resultBuf), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}
