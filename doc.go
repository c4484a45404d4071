// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

/*
Package asar provides pack, read, extract, and in-place edit operations for
ASAR archives. An archive is a 16-byte size prefix, a JSON index padded to a
4-byte boundary, and the concatenated bytes of every inline file at offsets
recorded in that index.

Header layout (little-endian u32 fields):
  - offset 0: constant 4;
  - offset 4: aligned JSON length + 8;
  - offset 8: aligned JSON length + 4;
  - offset 12: raw JSON length;
  - offset 16: JSON index, NUL padded; file offsets are relative to its end.

# Reading

Open an archive and list or read entries:

	r, err := asar.Open("app.asar")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    data, _ := r.ReadEntry(e.Path)
	    // use data
	}

For metadata-only scans:

	entries, err := asar.ListEntries("app.asar")
	raw, err := asar.ReadRawHeader("app.asar")

Integrity records can be verified block by block:

	if err := r.VerifyEntry("dist/main.js"); errors.Is(err, asar.ErrIntegrityMismatch) {
	    // stored bytes were modified
	}

# Extracting

Extraction is sequential and overwrites existing files. Entries stored in the
sibling "app.asar.unpacked" directory are copied from there; missing ones are
logged and listed in ExtractResult.Skipped:

	res, err := r.Extract(ctx, "app/", asar.ExtractOptions{
	    Logger: slog.Default(),
	    Prefix: "dist",
	})

# Packing

Pack a directory with integrity records, keeping native modules outside:

	res, err := asar.PackDir(ctx, "app", "app.asar", asar.BuildOptions{
	    Ignore:    asar.DefaultIgnorePatterns,
	    Integrity: true,
	    Unpack: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.node"},
	    },
	})

Pack accepts any fs.FS and io.Writer; files selected by Unpack rules are only
recorded in the index and must be placed by the caller.

# Editing

Editor patches an existing archive without changing its length. Externalize
rewrites selected entry fragments to "unpacked" form; Replace overwrites
stored bytes of one entry keeping its offset and size:

	ed, err := asar.OpenEditor("app.asar", asar.EditOptions{BackupKeep: 1})
	if err != nil {
	    return err
	}
	defer ed.Close()
	res, err := ed.Externalize([]string{"*.node", "re:^assets/.*\\.bin$"}, asar.ExternalizeOptions{
	    CopyToUnpacked: true,
	})
	if err := ed.Replace("dist/config.json", "patched/config.json"); err != nil {
	    return err
	}
*/
package asar
