// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Integrity holds whole-file and per-block digests of one archived file.
type Integrity struct {
	// Algorithm is canonical upper-case digest name, e.g. SHA256.
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	// Hash is hex digest over the whole file.
	Hash string `json:"hash" yaml:"hash"`
	// Blocks are hex digests of consecutive BlockSize chunks; the final block may be shorter.
	Blocks []string `json:"blocks" yaml:"blocks"`
	// BlockSize is chunk size in bytes used for Blocks.
	BlockSize int64 `json:"blockSize" yaml:"blockSize"`
}

// ComputeIntegrity streams file at path and returns its integrity record.
// Memory use is bounded by blockSize; zero blockSize selects DefaultHashBlockSize.
func ComputeIntegrity(path string, algorithm string, blockSize int64) (*Integrity, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return ComputeIntegrityFromReader(f, algorithm, blockSize)
}

// ComputeIntegrityFromReader hashes r until EOF in blockSize chunks.
func ComputeIntegrityFromReader(r io.Reader, algorithm string, blockSize int64) (*Integrity, error) {
	if r == nil {
		return nil, ErrNilReader
	}

	algo, err := lookupHashAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	buf, err := integrityBlockBuffer(blockSize)
	if err != nil {
		return nil, err
	}

	whole := algo.newHash()
	block := algo.newHash()
	blocks := make([]string, 0, 4)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			_, _ = whole.Write(chunk)

			block.Reset()
			_, _ = block.Write(chunk)
			blocks = append(blocks, hex.EncodeToString(block.Sum(nil)))
		}

		if readErr == nil {
			continue
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}

		return nil, fmt.Errorf("read block %d: %w", len(blocks), readErr)
	}

	return &Integrity{
		Algorithm: algo.name,
		Hash:      hex.EncodeToString(whole.Sum(nil)),
		BlockSize: int64(len(buf)),
		Blocks:    blocks,
	}, nil
}

// Digest returns whole-file digest in "algorithm:hex" form.
// Algorithms known to go-digest use their registered identifiers.
func (i *Integrity) Digest() digest.Digest {
	if i == nil {
		return ""
	}

	if algo, ok := hashAlgorithms[canonicalAlgorithmName(i.Algorithm)]; ok && algo.oci != "" {
		return digest.NewDigestFromEncoded(algo.oci, i.Hash)
	}

	return digest.Digest(strings.ToLower(i.Algorithm) + ":" + i.Hash)
}

// Equal reports whether two integrity records describe identical digests.
func (i *Integrity) Equal(other *Integrity) bool {
	if i == nil || other == nil {
		return i == other
	}

	if canonicalAlgorithmName(i.Algorithm) != canonicalAlgorithmName(other.Algorithm) ||
		!strings.EqualFold(i.Hash, other.Hash) ||
		i.BlockSize != other.BlockSize ||
		len(i.Blocks) != len(other.Blocks) {
		return false
	}

	for idx := range i.Blocks {
		if !strings.EqualFold(i.Blocks[idx], other.Blocks[idx]) {
			return false
		}
	}

	return true
}

// verifyIntegrity re-hashes r and returns ErrIntegrityMismatch naming the first bad block.
func verifyIntegrity(r io.Reader, want *Integrity) error {
	if want == nil {
		return nil
	}

	got, err := ComputeIntegrityFromReader(r, want.Algorithm, want.BlockSize)
	if err != nil {
		return err
	}

	limit := min(len(got.Blocks), len(want.Blocks))
	for idx := 0; idx < limit; idx++ {
		if !strings.EqualFold(got.Blocks[idx], want.Blocks[idx]) {
			return fmt.Errorf("%w: block %d", ErrIntegrityMismatch, idx)
		}
	}

	if len(got.Blocks) != len(want.Blocks) {
		return fmt.Errorf("%w: block count %d, want %d", ErrIntegrityMismatch, len(got.Blocks), len(want.Blocks))
	}

	if !strings.EqualFold(got.Hash, want.Hash) {
		return fmt.Errorf("%w: whole-file hash", ErrIntegrityMismatch)
	}

	return nil
}

// integrityBlockBuffer allocates one reusable block buffer with validated size.
func integrityBlockBuffer(blockSize int64) ([]byte, error) {
	if blockSize <= 0 {
		blockSize = DefaultHashBlockSize
	}

	if blockSize > MaxBlockSize {
		return nil, fmt.Errorf("%w: block size %d exceeds %d", ErrSizeOverflow, blockSize, MaxBlockSize)
	}

	return make([]byte, blockSize), nil
}
