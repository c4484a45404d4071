// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
)

// Editor is a read-write session that patches an archive in place.
// No operation changes the archive length or moves any stored payload.
type Editor struct {
	r        *Reader
	log      *slog.Logger
	textExt  map[string]struct{}
	path     string
	opts     EditOptions
	backedUp bool
}

// OpenEditor opens archive for in-place header and content patching.
func OpenEditor(archivePath string, opts EditOptions) (*Editor, error) {
	trimmedPath := strings.TrimSpace(archivePath)
	if trimmedPath == "" {
		return nil, ErrInvalidEntryPath
	}

	opts.applyDefaults()

	r, err := openArchive(trimmedPath, os.O_RDWR)
	if err != nil {
		return nil, err
	}

	textExt := make(map[string]struct{}, len(opts.TextExtensions))
	for _, ext := range opts.TextExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		textExt[ext] = struct{}{}
	}

	return &Editor{
		r:       r,
		log:     opts.Logger,
		textExt: textExt,
		path:    trimmedPath,
		opts:    opts,
	}, nil
}

// Reader returns the session reader; it reflects every committed patch.
func (e *Editor) Reader() *Reader {
	if e == nil {
		return nil
	}

	return e.r
}

// Close releases the archive file.
func (e *Editor) Close() error {
	if e == nil || e.r == nil {
		return nil
	}

	return e.r.Close()
}

// isText reports whether entry path has a text extension.
func (e *Editor) isText(p string) bool {
	_, ok := e.textExt[strings.ToLower(path.Ext(p))]
	return ok
}

// beforeMutation creates backup once per session before the first write.
func (e *Editor) beforeMutation() error {
	if err := e.r.checkOpen(); err != nil {
		return err
	}

	if e.r.file == nil {
		return ErrReadOnly
	}

	if e.backedUp || e.opts.BackupKeep == 0 {
		return nil
	}

	backupPath := e.path + ".bak"
	if err := prepareBackupSlot(backupPath, e.opts.BackupKeep); err != nil {
		return err
	}

	if err := e.copyArchiveTo(backupPath); err != nil {
		_ = removeIfExists(backupPath)
		return fmt.Errorf("create backup: %w", err)
	}

	e.backedUp = true
	e.log.Info("backup created", slog.String("path", backupPath))
	return nil
}

// copyArchiveTo copies current archive bytes to dst.
func (e *Editor) copyArchiveTo(dst string) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, io.NewSectionReader(e.r.file, 0, e.r.size)); err != nil {
		_ = out.Close()
		return err
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

// writeAt writes p at absolute offset and syncs archive file.
func (e *Editor) writeAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > e.r.size {
		return fmt.Errorf("%w: write [%d,%d) outside archive of %d bytes", ErrSizeOverflow, off, off+int64(len(p)), e.r.size)
	}

	n, err := e.r.file.WriteAt(p, off)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}

	return e.r.file.Sync()
}

// prepareBackupSlot rotates/removes existing backup generations before new backup.
func prepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return removeIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		return renameIfExists(backupPath, backupPath+".1")
	}
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(p string) error {
	err := os.Remove(p)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", p, err)
}
