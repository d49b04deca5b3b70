// Package checkpoint materialises pipeline stage outputs as Parquet files
// so that each stage can be re-run from the previous stage's output.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const readBatch = 8192

// Writer writes rows of one checkpoint type to a Parquet file.
type Writer[T any] struct {
	file   *os.File
	writer *parquet.GenericWriter[T]
	count  int
}

// NewWriter creates a Parquet writer for checkpoint rows:
//
//	ZSTD compression at the default level: checkpoints are re-read by the
//	next stage, so decode speed matters as much as size. Timestamp and
//	label columns repeat heavily within a source and compress well.
//
//	Page statistics on every column: min/max per page lets readers skip
//	pages when a checkpoint is queried outside the pipeline, for example
//	filtering earliest events by status or delay.
func NewWriter[T any](filename string) (*Writer[T], error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("anticoag", "1.0", ""),
	)

	return &Writer[T]{
		file:   file,
		writer: writer,
	}, nil
}

// Write writes a batch of rows.
func (w *Writer[T]) Write(rows []T) (int, error) {
	n, err := w.writer.Write(rows)
	w.count += n
	if err != nil {
		return n, fmt.Errorf("write parquet rows: %w", err)
	}
	return n, nil
}

// Close flushes the final row group and closes the file.
func (w *Writer[T]) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the total number of rows written.
func (w *Writer[T]) Count() int {
	return w.count
}

// WriteFile writes rows to filename in one call.
func WriteFile[T any](filename string, rows []T) error {
	w, err := NewWriter[T](filename)
	if err != nil {
		return err
	}
	for start := 0; start < len(rows); start += readBatch {
		end := min(start+readBatch, len(rows))
		if _, err := w.Write(rows[start:end]); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// ReadFile reads every row of a Parquet file written by Writer.
func ReadFile[T any](filename string) ([]T, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	out := make([]T, 0, reader.NumRows())
	for {
		// fresh buffer per batch: rows keep pointers into it
		buf := make([]T, readBatch)
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}
