package fasta

import (
	"bufio"
	"io"
	"os"
)

// WriteRecord writes a single FASTA record with the sequence on one line.
func WriteRecord(w io.Writer, name, seq string) error {
	bw := bufio.NewWriterSize(w, len(name)+len(seq)+3)
	bw.WriteByte('>')
	bw.WriteString(name)
	bw.WriteByte('\n')
	bw.WriteString(seq)
	bw.WriteByte('\n')
	return bw.Flush()
}

// AppendRecord appends a record to the local FASTA file at path, creating the
// file if needed.  Existing records are never truncated.
func AppendRecord(path, name, seq string) (err error) {
	var out *os.File
	if out, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err != nil {
		return
	}
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return WriteRecord(out, name, seq)
}
