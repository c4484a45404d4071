// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"log/slog"
	"time"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout constants.
const (
	headerPrefixSize = 16 // signature + total size + wrapper size + json size
	headerSignature  = 4  // first u32 of every archive
)

// UnpackedDirSuffix is appended to archive path to form the external storage directory.
const UnpackedDirSuffix = ".unpacked"

// Default tuning values.
const (
	DefaultChunkSize     = 4 * 1024 * 1024
	DefaultHashBlockSize = 4 * 1024 * 1024
	DefaultWriteBuffer   = 4 * 1024 * 1024
	// MaxBlockSize clamps integrity block size used as extraction chunk size.
	MaxBlockSize = 512 * 1024 * 1024
	// DefaultPadByte fills shortened text replacements up to original slot size.
	DefaultPadByte byte = ' '
)

// DefaultIgnorePatterns lists common junk files and directories skipped when packing.
var DefaultIgnorePatterns = []string{
	"desktop.ini", // Windows folder settings
	".DS_Store",   // macOS folder settings
	"Thumbs.db",   // Windows Explorer thumbnails
	"._*",         // macOS resource forks
	"~$*",         // Office lock files
	"*.tmp",
	"*.temp",
	"*.bak",
	"*.old",
	".vs",
	"__pycache__",
	".git",
}

// DefaultTextExtensions are file extensions whose replacement may be shorter than the slot.
var DefaultTextExtensions = []string{
	".txt", ".json", ".js", ".mjs", ".cjs", ".ts", ".map", ".css", ".html", ".htm",
	".xml", ".svg", ".md", ".csv", ".yml", ".yaml", ".ini", ".cfg", ".log",
}

// BuildOptions configures archive packing.
type BuildOptions struct {
	// Logger receives structured progress records; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnEntryDone is called after one file entry is written or recorded as external.
	OnEntryDone func(entry BuildEntryProgress) `json:"-" yaml:"-"`
	// Ignore are glob patterns; files or directories whose name or relative path matches are skipped.
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
	// ExecutablePaths are root-relative paths or globs flagged executable; globs starting
	// with a wildcard match at any depth.
	ExecutablePaths []string `json:"executable_paths,omitempty" yaml:"executable_paths,omitempty"`
	// ExternalPaths are relative paths already stored in the "<dst>.unpacked" directory.
	ExternalPaths []string `json:"external_paths,omitempty" yaml:"external_paths,omitempty"`
	// Unpack defines ordered path rules for files stored outside the archive.
	Unpack []pathrules.Rule `json:"unpack,omitempty" yaml:"unpack,omitempty"`
	// DigestAlgorithm selects integrity algorithm; default SHA256.
	DigestAlgorithm string `json:"digest_algorithm,omitempty" yaml:"digest_algorithm,omitempty"`
	// MatcherOptions control Ignore, ExecutablePaths and Unpack matching.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// HashBlockSize is integrity block size in bytes.
	HashBlockSize int64 `json:"hash_block_size,omitempty" yaml:"hash_block_size,omitempty"`
	// ChunkSize bounds one payload copy read in bytes.
	ChunkSize int `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
	// Integrity enables per-file integrity records.
	Integrity bool `json:"integrity,omitempty" yaml:"integrity,omitempty"`
	// DetectExecutable flags files with any exec permission bit set.
	DetectExecutable bool `json:"detect_executable,omitempty" yaml:"detect_executable,omitempty"`
	// ScanUnpackedDir treats every file found under "<dst>.unpacked" as externally stored.
	ScanUnpackedDir bool `json:"scan_unpacked_dir,omitempty" yaml:"scan_unpacked_dir,omitempty"`
}

// BuildEntryProgress contains one completed entry event from pack flow.
type BuildEntryProgress struct {
	// Path is archive-relative path.
	Path string `json:"path" yaml:"path"`
	// Offset is payload offset relative to content region; -1 for external entries.
	Offset int64 `json:"offset" yaml:"offset"`
	// Size is file size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// Unpacked reports whether entry is stored externally.
	Unpacked bool `json:"unpacked,omitempty" yaml:"unpacked,omitempty"`
}

// BuildResult contains pack output statistics.
type BuildResult struct {
	// UnpackedPaths lists entries stored externally, in index order.
	UnpackedPaths []string `json:"unpacked_paths,omitempty" yaml:"unpacked_paths,omitempty"`
	// Files is number of file entries in index.
	Files int `json:"files" yaml:"files"`
	// Directories is number of directory entries in index.
	Directories int `json:"directories" yaml:"directories"`
	// HeaderSize is header region length in bytes.
	HeaderSize int64 `json:"header_size" yaml:"header_size"`
	// DataSize is total inline payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// Duration is end-to-end pack duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// Logger receives structured records including warnings; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// OnEntryDone is called after one file is fully written to disk.
	OnEntryDone func(entry EntryInfo, written int64, outputPath string) `json:"-" yaml:"-"`
	// Prefix limits extraction to one subtree or file.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// UnpackedDir overrides "<archive>.unpacked" lookup directory.
	UnpackedDir string `json:"unpacked_dir,omitempty" yaml:"unpacked_dir,omitempty"`
	// ChunkSize is copy chunk for entries without integrity block size.
	ChunkSize int `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
}

// ExtractResult summarizes one extraction run.
type ExtractResult struct {
	// Skipped lists external entries whose source file was missing.
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Files is number of files written.
	Files int `json:"files" yaml:"files"`
	// Directories is number of directories ensured.
	Directories int `json:"directories" yaml:"directories"`
	// Bytes is total bytes written.
	Bytes int64 `json:"bytes" yaml:"bytes"`
}

// EditOptions configures in-place archive edit session.
type EditOptions struct {
	// Logger receives structured records; nil discards them.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// MatcherOptions control selection pattern matching.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// TextExtensions overrides DefaultTextExtensions for replacement size policy.
	TextExtensions []string `json:"text_extensions,omitempty" yaml:"text_extensions,omitempty"`
	// BackupKeep controls how many backup generations are kept before first mutation.
	// 0 disables backups, 1 keeps only `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
	// ChunkSize bounds one replacement copy read in bytes.
	ChunkSize int `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	// PadByte fills shortened text replacements; zero value means DefaultPadByte.
	PadByte byte `json:"pad_byte,omitempty" yaml:"pad_byte,omitempty"`
	// SkipIntegrityRefresh keeps stale integrity records after content replacement.
	SkipIntegrityRefresh bool `json:"skip_integrity_refresh,omitempty" yaml:"skip_integrity_refresh,omitempty"`
}

// ExternalizeOptions configures Editor.Externalize.
type ExternalizeOptions struct {
	// CopyToUnpacked writes each selected entry's bytes into "<archive>.unpacked" before flipping it.
	CopyToUnpacked bool `json:"copy_to_unpacked,omitempty" yaml:"copy_to_unpacked,omitempty"`
}

// PatchResult summarizes a batch of header or content edits.
type PatchResult struct {
	// Patched lists entries changed successfully.
	Patched []string `json:"patched,omitempty" yaml:"patched,omitempty"`
	// Failed lists per-entry failures; batch continues past them.
	Failed []*EntryError `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Count returns number of successful entries.
func (r *PatchResult) Count() int {
	if r == nil {
		return 0
	}

	return len(r.Patched)
}

// applyDefaults fills zero-valued build options with defaults.
func (opts *BuildOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}

	if opts.DigestAlgorithm == "" {
		opts.DigestAlgorithm = DefaultDigestAlgorithm
	}

	if opts.HashBlockSize <= 0 {
		opts.HashBlockSize = DefaultHashBlockSize
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}

	opts.MatcherOptions = matcherOptionsOrDefault(opts.MatcherOptions)
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
}

// applyDefaults fills zero-valued edit options with defaults.
func (opts *EditOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}

	if opts.PadByte == 0 {
		opts.PadByte = DefaultPadByte
	}

	if opts.TextExtensions == nil {
		opts.TextExtensions = DefaultTextExtensions
	}

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	opts.MatcherOptions = matcherOptionsOrDefault(opts.MatcherOptions)
}

// discardLogger returns logger dropping every record.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
