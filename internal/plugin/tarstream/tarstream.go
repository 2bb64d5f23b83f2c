// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package tarstream wraps tar archives in the compression codecs the
// built-in plugins support: parallel gzip (pgzip), zstd, or none.
package tarstream

import (
	"archive/tar"
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Format is an archive container format
type Format string

const (
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
	Tar    Format = "tar"
)

// Level is a codec-independent compression level
type Level string

const (
	LevelDefault Level = "default"
	LevelFastest Level = "fastest"
	LevelBetter  Level = "better"
	LevelBest    Level = "best"
)

const bufferSize = 256 * 1024

// ParseFormat maps a compression setting (gzip, zstd, none) to a Format
func ParseFormat(compression string) (Format, error) {
	switch strings.ToLower(compression) {
	case "", "gzip":
		return TarGz, nil
	case "zstd":
		return TarZst, nil
	case "none":
		return Tar, nil
	default:
		return "", fmt.Errorf("unknown compression %q", compression)
	}
}

// FormatFromPath infers the format from an artifact file name
func FormatFromPath(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return TarGz, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return TarZst, nil
	case strings.HasSuffix(name, ".tar"):
		return Tar, nil
	default:
		return "", fmt.Errorf("cannot infer archive format from %q", name)
	}
}

// Extension returns the file suffix for a format, including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// Writer is a tar writer over a compressor over a buffered destination.
// Close flushes every layer in order.
type Writer struct {
	*tar.Writer
	closers []func() error
}

// NewWriter layers tar over the codec selected by format onto dst
func NewWriter(dst io.Writer, format Format, level Level) (*Writer, error) {
	buf := bufio.NewWriterSize(dst, bufferSize)
	w := &Writer{}

	var compressed io.Writer = buf
	switch format {
	case TarZst:
		enc, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressed = enc
		w.closers = append(w.closers, enc.Close)
	case TarGz:
		gz, err := pgzip.NewWriterLevel(buf, gzipLevel(level))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		compressed = gz
		w.closers = append(w.closers, gz.Close)
	case Tar:
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
	w.closers = append(w.closers, buf.Flush)

	w.Writer = tar.NewWriter(compressed)
	return w, nil
}

// Close finishes the tar stream, the compressor and the buffer, returning
// the first error.
func (w *Writer) Close() error {
	firstErr := w.Writer.Close()
	for _, c := range w.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AddFile writes one regular file or symlink into the archive under name
//
//nolint:gosec // G304: path comes from walking a configured source directory
func (w *Writer) AddFile(path, name string, info os.FileInfo) error {
	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", path, err)
		}
		link = target
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", name, err)
	}
	header.Name = filepath.ToSlash(name)
	if info.IsDir() {
		header.Name += "/"
	}

	if err := w.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to copy %s to archive: %w", path, err)
	}
	return nil
}

// AddBytes writes an in-memory entry
func (w *Writer) AddBytes(name string, data []byte, header *tar.Header) error {
	if header == nil {
		header = &tar.Header{Mode: 0o640}
	}
	header.Name = filepath.ToSlash(name)
	header.Size = int64(len(data))
	header.Typeflag = tar.TypeReg
	if err := w.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Reader is a tar reader over the decompressor selected by format
type Reader struct {
	*tar.Reader
	close  func() error
	digest *digestReader
}

// NewReader opens src for reading as an archive of the given format
func NewReader(src io.Reader, format Format) (*Reader, error) {
	r := &Reader{close: func() error { return nil }}
	var plain io.Reader = bufio.NewReaderSize(src, bufferSize)

	switch format {
	case TarZst:
		dec, err := zstd.NewReader(plain)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		plain = dec
		r.close = func() error { dec.Close(); return nil }
	case TarGz:
		gz, err := pgzip.NewReader(plain)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		plain = gz
		r.close = gz.Close
	case Tar:
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}

	r.Reader = tar.NewReader(plain)
	return r, nil
}

// Open opens the archive file at path, choosing the codec from its
// extension. Close also closes the file.
func Open(path string) (*Reader, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	digest := &digestReader{r: f, hasher: sha256.New()}
	r, err := NewReader(digest, format)
	if err != nil {
		f.Close() //nolint:errcheck // read-only
		return nil, err
	}
	r.digest = digest
	release := r.close
	r.close = func() error {
		err := release()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return r, nil
}

// Close releases the decompressor. It closes the source only for readers
// returned by Open.
func (r *Reader) Close() error {
	return r.close()
}

// Digest consumes the rest of the archive file and returns its size and
// hex SHA-256. It is only available on readers returned by Open.
func (r *Reader) Digest() (int64, string, error) {
	if r.digest == nil {
		return 0, "", errors.New("archive was not opened from a file")
	}
	if _, err := io.Copy(io.Discard, r.digest); err != nil {
		return 0, "", fmt.Errorf("failed to read archive: %w", err)
	}
	return r.digest.n, hex.EncodeToString(r.digest.hasher.Sum(nil)), nil
}

// digestReader hashes and counts the raw bytes read through it
type digestReader struct {
	r      io.Reader
	hasher hash.Hash
	n      int64
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	d.hasher.Write(p[:n]) //nolint:errcheck // hash writes never fail
	d.n += int64(n)
	return n, err
}

// SafeJoin joins an archive entry name onto dir, rejecting names that would
// escape it.
func SafeJoin(dir, name string) (string, error) {
	clean := filepath.Clean(dir)
	target := filepath.Join(clean, filepath.FromSlash(name))
	if target != clean && !strings.HasPrefix(target, clean+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return target, nil
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch l {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBetter:
		return zstd.SpeedBetterCompression
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func gzipLevel(l Level) int {
	switch l {
	case LevelFastest:
		return pgzip.BestSpeed
	case LevelBetter:
		return 6
	case LevelBest:
		return pgzip.BestCompression
	default:
		return pgzip.DefaultCompression
	}
}
