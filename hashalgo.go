// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"crypto/md5"  //nolint:gosec // Legacy integrity records may use MD5.
	"crypto/sha1" //nolint:gosec // Legacy integrity records may use SHA1.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"hash"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// DefaultDigestAlgorithm is the integrity algorithm used by Electron tooling.
const DefaultDigestAlgorithm = "SHA256"

// hashAlgorithm describes one supported integrity digest.
type hashAlgorithm struct {
	newHash func() hash.Hash
	// oci is set for algorithms registered in go-digest.
	oci  digest.Algorithm
	name string
}

var (
	// hashAlgorithms maps canonical upper-case names to digest constructors.
	hashAlgorithms = map[string]hashAlgorithm{
		"SHA256":   {name: "SHA256", oci: digest.SHA256, newHash: digest.SHA256.Hash},
		"SHA384":   {name: "SHA384", oci: digest.SHA384, newHash: digest.SHA384.Hash},
		"SHA512":   {name: "SHA512", oci: digest.SHA512, newHash: digest.SHA512.Hash},
		"SHA1":     {name: "SHA1", newHash: sha1.New},
		"MD5":      {name: "MD5", newHash: md5.New},
		"SHA3_256": {name: "SHA3_256", newHash: sha3.New256},
		"SHA3_512": {name: "SHA3_512", newHash: sha3.New512},
		"BLAKE2B":  {name: "BLAKE2B", newHash: newBLAKE2b},
		"BLAKE2S":  {name: "BLAKE2S", newHash: newBLAKE2s},
		"XXH64":    {name: "XXH64", newHash: func() hash.Hash { return xxhash.New() }},
	}
	// hashAlgorithmAliases maps alternative spellings to canonical names.
	hashAlgorithmAliases = map[string]string{
		"SHA_256":    "SHA256",
		"SHA_384":    "SHA384",
		"SHA_512":    "SHA512",
		"SHA_1":      "SHA1",
		"SHA3256":    "SHA3_256",
		"SHA3512":    "SHA3_512",
		"BLAKE2B512": "BLAKE2B",
		"BLAKE2S256": "BLAKE2S",
		"XXHASH":     "XXH64",
		"XXHASH64":   "XXH64",
	}
)

// SupportedAlgorithms returns canonical names of all integrity digest algorithms.
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(hashAlgorithms))
	for name := range hashAlgorithms {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// lookupHashAlgorithm resolves case-insensitive algorithm name.
func lookupHashAlgorithm(name string) (hashAlgorithm, error) {
	canonical := canonicalAlgorithmName(name)
	if canonical == "" {
		canonical = DefaultDigestAlgorithm
	}

	if alias, ok := hashAlgorithmAliases[canonical]; ok {
		canonical = alias
	}

	algo, ok := hashAlgorithms[canonical]
	if !ok {
		return hashAlgorithm{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}

	if algo.oci != "" && !algo.oci.Available() {
		return hashAlgorithm{}, fmt.Errorf("%w: %q is not linked", ErrUnsupportedAlgorithm, name)
	}

	return algo, nil
}

// canonicalAlgorithmName upper-cases name and unifies separators.
func canonicalAlgorithmName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.ReplaceAll(name, "-", "_")
}

// newBLAKE2b returns unkeyed BLAKE2b-512.
func newBLAKE2b() hash.Hash {
	h, _ := blake2b.New512(nil) // only fails for oversized keys
	return h
}

// newBLAKE2s returns unkeyed BLAKE2s-256.
func newBLAKE2s() hash.Hash {
	h, _ := blake2s.New256(nil) // only fails for oversized keys
	return h
}
