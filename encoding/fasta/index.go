package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex generates an index (*.fai) from FASTA.  The index can be later
// passed to NewIndexed() to random-access the FASTA file quickly.
//
// The index format is defined by "samtool faidx"
// (http://www.htslib.org/doc/faidx.html).  As with samtools, every line of a
// sequence except the last must have the same width.
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	var (
		tsvOut      = tsv.NewWriter(out)
		r           = bufio.NewReader(in)
		seqName     string
		seqStartOff int64
		totalBases  int
		lineBases   int
		lineWidth   int
		shortLine   bool // a line narrower than lineBases was seen
		cumByte     int64
		eof         bool
	)

	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	flush := func() {
		if seqName == "" {
			return
		}
		tsvOut.WriteString(seqName)
		tsvOut.WriteInt64(int64(totalBases))
		tsvOut.WriteInt64(seqStartOff)
		tsvOut.WriteInt64(int64(lineBases))
		tsvOut.WriteInt64(int64(lineWidth))
		setErr(tsvOut.EndLine())
	}
	for !eof && err == nil {
		fullLine, e := r.ReadBytes('\n')
		if e == io.EOF { // Process fullLine, then exit the loop
			eof = true
		} else if e != nil {
			setErr(e)
			break
		}
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			flush()
			seqName = string(bytes.SplitN(line[1:], []byte(" "), 2)[0])
			if seqName == "" {
				setErr(errors.E(errors.Invalid, "malformed FASTA file: empty sequence name"))
			}
			seqStartOff = cumByte
			lineWidth = 0
			lineBases = 0
			totalBases = 0
			shortLine = false
			continue
		}
		if seqName == "" {
			setErr(errors.E(errors.Invalid, "malformed FASTA file: sequence data before first header"))
			break
		}
		if lineWidth == 0 {
			lineWidth = len(fullLine)
			lineBases = len(line)
		} else if shortLine || len(line) > lineBases {
			setErr(errors.E(errors.Invalid, fmt.Sprintf("different line length in sequence %s", seqName)))
			break
		}
		if len(line) < lineBases {
			shortLine = true
		}
		totalBases += len(line)
	}
	if err == nil {
		flush()
	}
	setErr(tsvOut.Flush())
	if cumByte == 0 {
		setErr(errors.E(errors.Invalid, "empty FASTA file"))
	}
	return
}
