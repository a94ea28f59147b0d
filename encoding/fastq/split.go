package fastq

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// Open opens path and returns a reader that transparently decompresses
// gzipped input, along with a cleanup function.
func Open(ctx context.Context, path string) (io.Reader, func() error, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	var r io.Reader = in.Reader(ctx)
	if u, ok := compress.NewReaderPath(r, in.Name()); ok {
		r = u
	}
	return r, func() error { return in.Close(ctx) }, nil
}

// Split distributes the reads of the input FASTQ round-robin across the
// given output paths: read i goes to shard i mod len(paths). Output shards
// are gzip-compressed when their path ends in ".gz".
func Split(ctx context.Context, inputPath string, shardPaths []string) (nReads int, err error) {
	e := errors.Once{}
	defer func() { err = e.Err() }()

	r, closeIn, err := Open(ctx, inputPath)
	if err != nil {
		e.Set(err)
		return
	}
	defer func() { e.Set(closeIn()) }()

	outs := make([]file.File, len(shardPaths))
	writers := make([]*Writer, len(shardPaths))
	gzips := make([]*gzip.Writer, len(shardPaths))
	for i, path := range shardPaths {
		out, createErr := file.Create(ctx, path)
		if createErr != nil {
			e.Set(createErr)
			return
		}
		outs[i] = out
		var w io.Writer = out.Writer(ctx)
		if strings.HasSuffix(path, ".gz") {
			gzips[i] = gzip.NewWriter(w)
			w = gzips[i]
		}
		writers[i] = NewWriter(w)
	}
	defer func() {
		for i := range outs {
			if outs[i] == nil {
				continue
			}
			if gzips[i] != nil {
				e.Set(gzips[i].Close())
			}
			e.Set(outs[i].Close(ctx))
		}
	}()

	sc := NewScanner(r, All)
	var read Read
	for sc.Scan(&read) {
		e.Set(writers[nReads%len(writers)].Write(&read))
		nReads++
		if e.Err() != nil {
			return
		}
	}
	e.Set(sc.Err())
	return
}
