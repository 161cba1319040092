package fasta

import (
	"context"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
)

// IndexSuffix is appended to a FASTA path to locate its index.
const IndexSuffix = ".fai"

// File is a Fasta read from a path.  Close must be called once the sequences
// are no longer needed.
type File struct {
	Fasta
	in file.File // nil unless lookups go through an index
}

// Close releases the underlying file, if any.
func (f *File) Close(ctx context.Context) error {
	if f.in == nil {
		return nil
	}
	err := f.in.Close(ctx)
	f.in = nil
	return err
}

// Open loads the FASTA at path.  If an uncompressed FASTA has a "<path>.fai"
// companion, sequences are looked up through the index and the data stays on
// disk.  Otherwise the whole file (gzip allowed) is read into memory.
func Open(ctx context.Context, path string) (fa *File, err error) {
	if fileio.DetermineType(path) != fileio.Gzip {
		var idx file.File
		idx, err = file.Open(ctx, path+IndexSuffix)
		switch {
		case err == nil:
			return openIndexed(ctx, path, idx)
		case !errors.Is(errors.NotExist, err):
			return nil, errors.E(err, "fasta: opening index of", path)
		}
		log.Debug.Printf("fasta: %s has no index, loading it into memory", path)
	}
	return openInMemory(ctx, path)
}

func openIndexed(ctx context.Context, path string, idx file.File) (fa *File, err error) {
	defer file.CloseAndReport(ctx, idx, &err)
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	var f Fasta
	if f, err = NewIndexed(in.Reader(ctx), idx.Reader(ctx)); err != nil {
		_ = in.Close(ctx)
		return nil, errors.E(err, path+IndexSuffix)
	}
	return &File{Fasta: f, in: in}, nil
}

func openInMemory(ctx context.Context, path string) (fa *File, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var f Fasta
	if f, err = New(reader); err != nil {
		err = errors.E(err, path)
		return
	}
	return &File{Fasta: f}, nil
}
