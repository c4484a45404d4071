// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asar

package asar

import (
	"errors"
	"slices"
	"testing"
)

func TestDirectoryWalkSkipDir(t *testing.T) {
	t.Parallel()

	root, err := decodeIndex([]byte(`{"files":{` +
		`"a.txt":{"size":1,"offset":"0"},` +
		`"skip":{"files":{"x.txt":{"size":1,"offset":"1"},"deep":{"files":{"y.txt":{"size":1,"offset":"2"}}}}},` +
		`"keep":{"files":{"z.txt":{"size":1,"offset":"3"}}}}}`))
	if err != nil {
		t.Fatalf("decodeIndex: %v", err)
	}

	var visited []string
	err = root.Walk(func(p string, e *Entry) error {
		visited = append(visited, p)
		if p == "skip" || p == "a.txt" {
			return SkipDir
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := []string{"a.txt", "skip", "keep", "keep/z.txt"}
	if !slices.Equal(visited, want) {
		t.Fatalf("visited=%v, want %v", visited, want)
	}
}

func TestDirectoryWalkStopsOnError(t *testing.T) {
	t.Parallel()

	root, err := decodeIndex([]byte(`{"files":{"a":{"size":1,"offset":"0"},"b":{"size":1,"offset":"1"}}}`))
	if err != nil {
		t.Fatalf("decodeIndex: %v", err)
	}

	errStop := errors.New("stop")
	calls := 0
	err = root.Walk(func(string, *Entry) error {
		calls++
		return errStop
	})
	if !errors.Is(err, errStop) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
