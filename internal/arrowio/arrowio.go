// Package arrowio stores gdalframe records as Arrow IPC and GeoParquet files.
package arrowio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// ErrUnknownExtension is returned when a path has no recognised extension.
var ErrUnknownExtension = errors.New("arrowio: unknown file extension (want .arrow, .feather, .ipc or .parquet)")

// Format is an on-disk record format.
type Format int

const (
	IPC Format = iota
	Parquet
)

func (f Format) String() string {
	if f == Parquet {
		return "Parquet"
	}
	return "Arrow IPC"
}

// FormatOf picks the format from the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".arrow", ".feather", ".ipc", ".arrows":
		return IPC, nil
	case ".parquet", ".geoparquet", ".pq":
		return Parquet, nil
	}
	return IPC, fmt.Errorf("%w: %s", ErrUnknownExtension, path)
}

// WriteFile writes rec to path in the format its extension names.
func WriteFile(path string, rec arrow.Record) (err error) {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		// the Parquet writer closes f itself
		if cerr := f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
			err = cerr
		}
	}()

	if format == Parquet {
		return WriteParquet(f, rec, nil)
	}
	return WriteIPC(f, rec)
}

// ReadFile reads the record stored at path. The caller releases it.
func ReadFile(ctx context.Context, path string, mem memory.Allocator) (arrow.Record, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if format == Parquet {
		return ReadParquet(ctx, f, mem)
	}
	return ReadIPC(f, mem)
}

// WriteIPC writes rec as an Arrow IPC file. The file footer needs a
// seekable destination.
func WriteIPC(w io.WriteSeeker, rec arrow.Record) error {
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(rec.Schema()))
	if err != nil {
		return fmt.Errorf("arrowio: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("arrowio: write batch: %w", err)
	}
	return fw.Close()
}

// WriteStream writes rec in the Arrow IPC streaming format, the format
// served over HTTP.
func WriteStream(w io.Writer, rec arrow.Record) error {
	sw := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := sw.Write(rec); err != nil {
		sw.Close()
		return fmt.Errorf("arrowio: write batch: %w", err)
	}
	return sw.Close()
}

// ReadIPC reads every batch of an Arrow IPC file into one record.
func ReadIPC(r ipc.ReadAtSeeker, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("arrowio: %w", err)
	}
	defer fr.Close()

	batches := make([]arrow.Record, 0, fr.NumRecords())
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	for i := 0; i < fr.NumRecords(); i++ {
		b, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("arrowio: batch %d: %w", i, err)
		}
		b.Retain()
		batches = append(batches, b)
	}
	return concat(fr.Schema(), batches, mem)
}

// concat merges batches sharing schema into a single record.
func concat(schema *arrow.Schema, batches []arrow.Record, mem memory.Allocator) (arrow.Record, error) {
	if len(batches) == 1 {
		batches[0].Retain()
		return batches[0], nil
	}

	cols := make([]arrow.Array, schema.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	var rows int64
	for _, b := range batches {
		rows += b.NumRows()
	}
	for i := range cols {
		if len(batches) == 0 {
			cols[i] = array.MakeArrayOfNull(mem, schema.Field(i).Type, 0)
			continue
		}
		parts := make([]arrow.Array, len(batches))
		for j, b := range batches {
			parts[j] = b.Column(i)
		}
		c, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, fmt.Errorf("arrowio: column %q: %w", schema.Field(i).Name, err)
		}
		cols[i] = c
	}
	return array.NewRecord(schema, cols, rows), nil
}
