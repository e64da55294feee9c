package fastq

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/bio/errs"
	"github.com/klauspost/compress/gzip"
)

// fileReader wraps a file.File opened for reading, transparently
// gunzipping it when its path ends in ".gz". Closing it closes both the
// gzip reader (if any) and the underlying file.File.
type fileReader struct {
	ctx context.Context
	f   file.File
	gz  *gzip.Reader
	r   io.Reader
}

func (r *fileReader) Read(p []byte) (int, error) { return r.r.Read(p) }

func (r *fileReader) Close() error {
	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if cerr := r.f.Close(r.ctx); err == nil {
		err = cerr
	}
	return err
}

// OpenInput opens path for reading, transparently gunzipping it when path
// ends in ".gz". Errors are reported as *errs.ReaderError.
func OpenInput(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, &errs.ReaderError{Filename: path, Err: err}
	}
	raw := f.Reader(ctx)
	if !strings.HasSuffix(path, ".gz") {
		return &fileReader{ctx: ctx, f: f, r: raw}, nil
	}
	gz, err := gzip.NewReader(raw)
	if err != nil {
		_ = f.Close(ctx)
		return nil, &errs.ReaderError{Filename: path, Err: err}
	}
	return &fileReader{ctx: ctx, f: f, gz: gz, r: gz}, nil
}

// fileWriter wraps a file.File opened for writing, transparently gzipping
// it when its path ends in ".gz". Closing it flushes and closes the gzip
// writer (if any) before closing the underlying file.File.
type fileWriter struct {
	ctx context.Context
	f   file.File
	gz  *gzip.Writer
	w   io.Writer
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.w.Write(p) }

func (w *fileWriter) Close() error {
	var err error
	if w.gz != nil {
		err = w.gz.Close()
	}
	if cerr := w.f.Close(w.ctx); err == nil {
		err = cerr
	}
	return err
}

// CreateOutput creates path for writing, transparently gzipping it when
// path ends in ".gz". Errors are reported as *errs.WriterError.
func CreateOutput(ctx context.Context, path string) (io.WriteCloser, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, &errs.WriterError{Filename: path, Err: err}
	}
	raw := f.Writer(ctx)
	if !strings.HasSuffix(path, ".gz") {
		return &fileWriter{ctx: ctx, f: f, w: raw}, nil
	}
	gz := gzip.NewWriter(raw)
	return &fileWriter{ctx: ctx, f: f, gz: gz, w: gz}, nil
}

// CheckCompressionGroup verifies that every path in a group (e.g. "input"
// or "output") agrees on whether it is gzip-compressed, as indicated by a
// ".gz" suffix. Input paths and output paths are each their own group: the
// pipeline requires every input to share one compression choice and every
// output to share one compression choice, but the two groups are
// independent of each other. A group of fewer than two paths is always
// consistent.
func CheckCompressionGroup(label string, paths ...string) error {
	if len(paths) < 2 {
		return nil
	}
	gz := strings.HasSuffix(paths[0], ".gz")
	for _, p := range paths[1:] {
		if strings.HasSuffix(p, ".gz") != gz {
			return &errs.ConfigError{Reason: "mismatched compression among " + label + " files: " + strings.Join(paths, ", ")}
		}
	}
	return nil
}
