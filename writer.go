// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"
)

var (
	// defaultPackWriterPool reuses default-sized bufio writers between Pack calls.
	defaultPackWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
)

// packPlan is the fully indexed tree produced before any output is written.
type packPlan struct {
	root *Directory
	// unpackCopies lists entries selected by Unpack rules that must be copied to "<dst>.unpacked".
	unpackCopies []string
	// unpacked lists every externally stored entry in index order.
	unpacked []string
	files    int
	dirs     int
	dataSize int64
}

// indexer walks a source tree and assigns offsets.
type indexer struct {
	fsys       fs.FS
	log        *slog.Logger
	ignore     *pathMatcher
	executable *pathMatcher
	unpack     *pathMatcher
	execExact  map[string]struct{}
	external   map[string]struct{}
	plan       *packPlan
	opts       BuildOptions
	offset     int64
}

// Pack indexes fsys and writes header followed by inline payloads to out.
// Files matched by ExternalPaths or Unpack rules are recorded as unpacked and not written.
func Pack(ctx context.Context, fsys fs.FS, out io.Writer, opts BuildOptions) (*BuildResult, error) {
	if out == nil {
		return nil, ErrNilWriter
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	startedAt := time.Now()

	plan, err := buildPackPlan(ctx, fsys, opts)
	if err != nil {
		return nil, err
	}

	res, err := writePackPlan(ctx, fsys, out, plan, opts)
	if err != nil {
		return nil, err
	}

	res.Duration = time.Since(startedAt)
	return res, nil
}

// PackDir packs srcDir into dstPath. A missing source directory fails before the
// output file is created. A failure during the payload pass leaves a partial file
// at dstPath which must be treated as invalid.
func PackDir(ctx context.Context, srcDir string, dstPath string, opts BuildOptions) (*BuildResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := os.Stat(srcDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: source directory %s", ErrNotFound, srcDir)
		}

		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, srcDir)
	}

	opts.applyDefaults()
	startedAt := time.Now()
	unpackedDir := dstPath + UnpackedDirSuffix

	if opts.ScanUnpackedDir {
		found, err := scanUnpackedDir(unpackedDir)
		if err != nil {
			return nil, err
		}

		opts.ExternalPaths = append(opts.ExternalPaths, found...)
	}

	fsys := os.DirFS(srcDir)
	plan, err := buildPackPlan(ctx, fsys, opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("packing", slog.String("source", srcDir), slog.String("destination", dstPath))

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	res, err := writePackPlan(ctx, fsys, f, plan, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sync archive: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	for _, rel := range plan.unpackCopies {
		if err := copyFileCreatingDirs(
			filepath.Join(srcDir, filepath.FromSlash(rel)),
			filepath.Join(unpackedDir, filepath.FromSlash(rel)),
		); err != nil {
			return nil, fmt.Errorf("copy unpacked %s: %w", rel, err)
		}
	}

	res.Duration = time.Since(startedAt)
	opts.Logger.Info("pack completed",
		slog.Int("files", res.Files),
		slog.Int64("header_size", res.HeaderSize),
		slog.Int64("data_size", res.DataSize),
	)

	return res, nil
}

// buildPackPlan runs the indexing pass over fsys.
func buildPackPlan(ctx context.Context, fsys fs.FS, opts BuildOptions) (*packPlan, error) {
	if fsys == nil {
		return nil, ErrNilReader
	}

	ignore, err := newPatternMatcher(opts.Ignore, opts.MatcherOptions)
	if err != nil {
		return nil, fmt.Errorf("compile ignore patterns: %w", err)
	}

	executable, err := newSelectionMatcher(opts.ExecutablePaths, opts.MatcherOptions)
	if err != nil {
		return nil, fmt.Errorf("compile executable patterns: %w", err)
	}

	unpack, err := newPathMatcher(opts.Unpack, opts.MatcherOptions)
	if err != nil {
		return nil, fmt.Errorf("compile unpack rules: %w", err)
	}

	if opts.Integrity {
		if _, err := lookupHashAlgorithm(opts.DigestAlgorithm); err != nil {
			return nil, err
		}
	}

	ix := &indexer{
		fsys:       fsys,
		log:        opts.Logger,
		ignore:     ignore,
		executable: executable,
		unpack:     unpack,
		execExact:  pathSet(opts.ExecutablePaths),
		external:   pathSet(opts.ExternalPaths),
		plan:       &packPlan{root: NewDirectory()},
		opts:       opts,
	}

	if err := ix.indexDir(ctx, ".", "", ix.plan.root); err != nil {
		return nil, err
	}

	ix.plan.dataSize = ix.offset
	return ix.plan, nil
}

// indexDir records files of one directory first, then descends into subdirectories.
func (ix *indexer) indexDir(ctx context.Context, fsPath string, relPath string, dir *Directory) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	items, err := fs.ReadDir(ix.fsys, fsPath)
	if err != nil {
		return wrapSourceError(fsPath, err)
	}

	subdirs := make([]string, 0, len(items))
	for _, item := range items {
		name := item.Name()
		rel := joinArchivePath(relPath, name)
		itemPath := path.Join(fsPath, name)

		isDir, isRegular, err := ix.resolveType(itemPath, item)
		if err != nil {
			return err
		}

		if isDir {
			if ix.ignore.MatchDir(rel) {
				ix.log.Debug("ignored directory", slog.String("path", rel))
				continue
			}

			subdirs = append(subdirs, name)
			continue
		}

		if !isRegular {
			ix.log.Debug("skipped non-regular file", slog.String("path", rel))
			continue
		}

		if ix.ignore.Match(rel) {
			ix.log.Debug("ignored file", slog.String("path", rel))
			continue
		}

		entry, err := ix.indexFile(itemPath, rel)
		if err != nil {
			return err
		}

		dir.Set(name, entry)
	}

	for _, name := range subdirs {
		entry := newDirEntry()
		dir.Set(name, entry)
		ix.plan.dirs++

		if err := ix.indexDir(ctx, path.Join(fsPath, name), joinArchivePath(relPath, name), entry.Files); err != nil {
			return err
		}
	}

	return nil
}

// resolveType classifies directory item, following symlinks.
func (ix *indexer) resolveType(itemPath string, item fs.DirEntry) (bool, bool, error) {
	if item.Type()&fs.ModeSymlink == 0 {
		return item.IsDir(), item.Type().IsRegular(), nil
	}

	st, err := fs.Stat(ix.fsys, itemPath)
	if err != nil {
		return false, false, wrapSourceError(itemPath, err)
	}

	return st.IsDir(), st.Mode().IsRegular(), nil
}

// indexFile builds file entry and assigns its offset.
func (ix *indexer) indexFile(itemPath string, rel string) (*Entry, error) {
	st, err := fs.Stat(ix.fsys, itemPath)
	if err != nil {
		return nil, wrapSourceError(itemPath, err)
	}

	entry := newFileEntry(st.Size())
	if ix.opts.Integrity {
		integrity, err := ix.fileIntegrity(itemPath)
		if err != nil {
			return nil, err
		}

		entry.Integrity = integrity
	}

	_, external := ix.external[rel]
	switch {
	case external:
		entry.Unpacked = true
		ix.plan.unpacked = append(ix.plan.unpacked, rel)
	case ix.unpack.Match(rel):
		entry.Unpacked = true
		ix.plan.unpacked = append(ix.plan.unpacked, rel)
		ix.plan.unpackCopies = append(ix.plan.unpackCopies, rel)
	default:
		entry.Offset = ix.offset
		entry.HasOffset = true
		ix.offset += entry.Size
	}

	if _, exact := ix.execExact[rel]; exact || ix.executable.Match(rel) {
		entry.Executable = true
	} else if ix.opts.DetectExecutable && st.Mode().Perm()&0o111 != 0 {
		entry.Executable = true
	}

	ix.plan.files++
	return entry, nil
}

// fileIntegrity hashes one source file.
func (ix *indexer) fileIntegrity(itemPath string) (*Integrity, error) {
	f, err := ix.fsys.Open(itemPath)
	if err != nil {
		return nil, wrapSourceError(itemPath, err)
	}
	defer func() { _ = f.Close() }()

	integrity, err := ComputeIntegrityFromReader(f, ix.opts.DigestAlgorithm, ix.opts.HashBlockSize)
	if err != nil {
		if errors.Is(err, ErrUnsupportedAlgorithm) {
			return nil, fmt.Errorf("integrity %s: %w", itemPath, err)
		}

		return nil, wrapSourceError(itemPath, err)
	}

	return integrity, nil
}

// writePackPlan writes header and then streams inline payloads in offset order.
func writePackPlan(ctx context.Context, fsys fs.FS, out io.Writer, plan *packPlan, opts BuildOptions) (*BuildResult, error) {
	header, err := encodeHeader(plan.root)
	if err != nil {
		return nil, err
	}

	w, releaseWriter := acquirePackWriter(out, opts.WriterBufferSize)
	defer releaseWriter()

	if _, err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	copyBuf := make([]byte, opts.ChunkSize)
	var written int64
	for _, ref := range collectFiles(plan.root) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		progress := BuildEntryProgress{Path: ref.path, Offset: -1, Size: ref.entry.Size, Unpacked: ref.entry.Unpacked}
		if ref.entry.IsInline() {
			if ref.entry.Offset != written {
				return nil, fmt.Errorf("entry %s: offset %d does not follow %d", ref.path, ref.entry.Offset, written)
			}

			if err := writeSourcePayload(w, fsys, ref, copyBuf); err != nil {
				return nil, err
			}

			written += ref.entry.Size
			progress.Offset = ref.entry.Offset
		}

		opts.Logger.Debug("added", slog.String("path", ref.path), slog.Int64("size", ref.entry.Size), slog.Bool("unpacked", ref.entry.Unpacked))
		if opts.OnEntryDone != nil {
			opts.OnEntryDone(progress)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush payloads: %w", err)
	}

	if written != plan.dataSize {
		return nil, fmt.Errorf("content region size %d does not match index %d", written, plan.dataSize)
	}

	return &BuildResult{
		UnpackedPaths: plan.unpacked,
		Files:         plan.files,
		Directories:   plan.dirs,
		HeaderSize:    int64(len(header)),
		DataSize:      written,
	}, nil
}

// writeSourcePayload copies exactly entry.Size bytes of one source file.
func writeSourcePayload(dst io.Writer, fsys fs.FS, ref fileRef, buf []byte) error {
	fsPath := ref.path
	f, err := fsys.Open(fsPath)
	if err != nil {
		return wrapSourceError(fsPath, err)
	}
	defer func() { _ = f.Close() }()

	written, err := copyPayloadBounded(dst, f, ref.entry.Size, buf)
	if err != nil {
		if errors.Is(err, ErrSizeOverflow) {
			return fmt.Errorf("%w: %s grew during pack", ErrSizeMismatch, ref.path)
		}

		return fmt.Errorf("stream %s: %w", ref.path, err)
	}

	if written != ref.entry.Size {
		return fmt.Errorf("%w: %s shrank during pack (%d/%d)", ErrSizeMismatch, ref.path, written, ref.entry.Size)
	}

	return nil
}

// acquirePackWriter returns a buffered writer and release callback.
func acquirePackWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultPackWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultPackWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// copyPayloadBounded streams payload from src to dst and enforces strict size limit.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}
	if limit < 0 {
		return 0, ErrSizeOverflow
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		remaining := limit - written
		if int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}

			continue
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return written, readErr
		}
	}

	// If we consumed exactly the limit, read one extra byte to ensure source is not longer.
	if written == limit {
		var extra [1]byte
		n, err := src.Read(extra[:])
		if n > 0 {
			return written, ErrSizeOverflow
		}
		if err != nil && err != io.EOF {
			return written, err
		}
	}

	return written, nil
}

// scanUnpackedDir lists files already present in the external storage directory.
func scanUnpackedDir(dir string) ([]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var found []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		found = append(found, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan unpacked dir: %w", err)
	}

	return found, nil
}

// copyFileCreatingDirs copies src to dst creating parent directories.
func copyFileCreatingDirs(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return wrapSourceError(src, err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), extractDirMode); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, extractFileMode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

// pathSet builds lookup set of normalized relative paths.
func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if normalized := NormalizePath(p); normalized != "" {
			set[normalized] = struct{}{}
		}
	}

	return set
}

// wrapSourceError maps missing or unreadable source files to ErrNotFound naming the path.
func wrapSourceError(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	return fmt.Errorf("%w: %s unreadable: %w", ErrNotFound, p, err)
}
