// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // test vector for legacy algorithm
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

func TestComputeIntegrityFromReader_Blocks(t *testing.T) {
	t.Parallel()

	got, err := ComputeIntegrityFromReader(bytes.NewReader([]byte("abcde")), "sha256", 2)
	if err != nil {
		t.Fatalf("ComputeIntegrityFromReader: %v", err)
	}

	want := []string{sha256Hex("ab"), sha256Hex("cd"), sha256Hex("e")}
	if !slices.Equal(got.Blocks, want) {
		t.Fatalf("Blocks=%v, want %v", got.Blocks, want)
	}

	if got.Hash != sha256Hex("abcde") {
		t.Fatalf("Hash=%s, want %s", got.Hash, sha256Hex("abcde"))
	}

	if got.Algorithm != "SHA256" || got.BlockSize != 2 {
		t.Fatalf("Algorithm=%s BlockSize=%d", got.Algorithm, got.BlockSize)
	}

	if got.Digest() != digest.FromString("abcde") {
		t.Fatalf("Digest=%s, want %s", got.Digest(), digest.FromString("abcde"))
	}
}

func TestComputeIntegrityFromReader_Empty(t *testing.T) {
	t.Parallel()

	got, err := ComputeIntegrityFromReader(bytes.NewReader(nil), "", 0)
	if err != nil {
		t.Fatalf("ComputeIntegrityFromReader: %v", err)
	}

	if got.Blocks == nil || len(got.Blocks) != 0 {
		t.Fatalf("Blocks=%#v, want empty non-nil", got.Blocks)
	}

	if got.Hash != sha256Hex("") || got.BlockSize != DefaultHashBlockSize {
		t.Fatalf("Hash=%s BlockSize=%d", got.Hash, got.BlockSize)
	}
}

func TestComputeIntegrity_StableAndSensitive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "data.bin")
	payload := bytes.Repeat([]byte("0123456789"), 100)
	if err := os.WriteFile(p, payload, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	first, err := ComputeIntegrity(p, "SHA256", 64)
	if err != nil {
		t.Fatalf("ComputeIntegrity: %v", err)
	}

	second, err := ComputeIntegrity(p, "SHA256", 64)
	if err != nil {
		t.Fatalf("ComputeIntegrity: %v", err)
	}

	if !first.Equal(second) {
		t.Fatal("integrity of unchanged file differs between runs")
	}

	payload[100] ^= 0xff
	if err := os.WriteFile(p, payload, 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	third, err := ComputeIntegrity(p, "SHA256", 64)
	if err != nil {
		t.Fatalf("ComputeIntegrity: %v", err)
	}

	if third.Hash == first.Hash {
		t.Fatal("whole-file hash did not change after one-byte edit")
	}

	changed := 0
	for i := range first.Blocks {
		if first.Blocks[i] != third.Blocks[i] {
			changed++
			if i != 1 {
				t.Fatalf("block %d changed, want only block 1", i)
			}
		}
	}
	if changed != 1 {
		t.Fatalf("changed blocks=%d, want 1", changed)
	}
}

func TestComputeIntegrity_NotFound(t *testing.T) {
	t.Parallel()

	_, err := ComputeIntegrity(filepath.Join(t.TempDir(), "missing"), "SHA256", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestComputeIntegrity_UnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	_, err := ComputeIntegrityFromReader(bytes.NewReader([]byte("x")), "CRC32", 0)
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("err=%v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestComputeIntegrity_BlockSizeOverflow(t *testing.T) {
	t.Parallel()

	_, err := ComputeIntegrityFromReader(bytes.NewReader([]byte("x")), "SHA256", MaxBlockSize+1)
	if !errors.Is(err, ErrSizeOverflow) {
		t.Fatalf("err=%v, want ErrSizeOverflow", err)
	}
}

func TestComputeIntegrity_Algorithms(t *testing.T) {
	t.Parallel()

	data := []byte("asar integrity")
	sha1Sum := sha1.Sum(data) //nolint:gosec // test vector
	blake2bSum := blake2b.Sum512(data)
	sha3Sum := sha3.Sum256(data)

	cases := []struct {
		algorithm string
		canonical string
		want      string
	}{
		{algorithm: "sha-1", canonical: "SHA1", want: hex.EncodeToString(sha1Sum[:])},
		{algorithm: "blake2b", canonical: "BLAKE2B", want: hex.EncodeToString(blake2bSum[:])},
		{algorithm: "sha3-256", canonical: "SHA3_256", want: hex.EncodeToString(sha3Sum[:])},
	}

	for _, tc := range cases {
		t.Run(tc.algorithm, func(t *testing.T) {
			t.Parallel()

			got, err := ComputeIntegrityFromReader(bytes.NewReader(data), tc.algorithm, 0)
			if err != nil {
				t.Fatalf("ComputeIntegrityFromReader: %v", err)
			}

			if got.Algorithm != tc.canonical {
				t.Fatalf("Algorithm=%s, want %s", got.Algorithm, tc.canonical)
			}

			if got.Hash != tc.want {
				t.Fatalf("Hash=%s, want %s", got.Hash, tc.want)
			}
		})
	}
}

func TestComputeIntegrity_XXH64(t *testing.T) {
	t.Parallel()

	data := []byte("asar integrity")
	got, err := ComputeIntegrityFromReader(bytes.NewReader(data), "XXH64", 0)
	if err != nil {
		t.Fatalf("ComputeIntegrityFromReader: %v", err)
	}

	sum := xxhash.New()
	_, _ = sum.Write(data)
	if want := hex.EncodeToString(sum.Sum(nil)); got.Hash != want {
		t.Fatalf("Hash=%s, want %s", got.Hash, want)
	}

	if got.Digest().String() != "xxh64:"+got.Hash {
		t.Fatalf("Digest=%s", got.Digest())
	}
}

func TestVerifyIntegrity(t *testing.T) {
	t.Parallel()

	want, err := ComputeIntegrityFromReader(bytes.NewReader([]byte("aaaabbbbcc")), "SHA512", 4)
	if err != nil {
		t.Fatalf("ComputeIntegrityFromReader: %v", err)
	}

	if err := verifyIntegrity(bytes.NewReader([]byte("aaaabbbbcc")), want); err != nil {
		t.Fatalf("verify unchanged: %v", err)
	}

	err = verifyIntegrity(bytes.NewReader([]byte("aaaabxbbcc")), want)
	if !errors.Is(err, ErrIntegrityMismatch) {
		t.Fatalf("err=%v, want ErrIntegrityMismatch", err)
	}

	if got := err.Error(); !bytes.Contains([]byte(got), []byte("block 1")) {
		t.Fatalf("err=%q, want first bad block 1", got)
	}

	err = verifyIntegrity(bytes.NewReader([]byte("aaaabbbbccd")), want)
	if !errors.Is(err, ErrIntegrityMismatch) {
		t.Fatalf("longer payload err=%v, want ErrIntegrityMismatch", err)
	}
}

func TestSupportedAlgorithms(t *testing.T) {
	t.Parallel()

	got := SupportedAlgorithms()
	for _, name := range []string{"SHA256", "SHA512", "BLAKE2B", "BLAKE2S", "SHA3_256", "XXH64"} {
		if !slices.Contains(got, name) {
			t.Fatalf("SupportedAlgorithms()=%v, missing %s", got, name)
		}
	}

	if !slices.IsSorted(got) {
		t.Fatalf("SupportedAlgorithms()=%v, want sorted", got)
	}
}

// sha256Hex returns hex SHA-256 of s.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
