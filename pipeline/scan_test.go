// Copyright (c) 2013 Uwe Hoffmann. All rights reserved.

/*
Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are
met:

   * Redistributions of source code must retain the above copyright
notice, this list of conditions and the following disclaimer.
   * Redistributions in binary form must reproduce the above
copyright notice, this list of conditions and the following disclaimer
in the documentation and/or other materials provided with the
distribution.
   * Neither the name of Google Inc. nor the names of its
contributors may be used to endorse or promote products derived from
this software without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
"AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
OWNER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
(INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.
*/

package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeFixtureFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanFindsAllFiles(t *testing.T) {
	root := t.TempDir()
	writeFixtureFile(t, filepath.Join(root, "world", "level.dat"))
	writeFixtureFile(t, filepath.Join(root, "world", "regions", "r.0.0.mca"))
	writeFixtureFile(t, filepath.Join(root, "world", "DIM-1", "regions", "r.0.0.mca"))

	bus := NewBus(16)
	files, err := Scan([]string{filepath.Join(root, "world")}, NoPrune, bus)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.ArchiveName
	}
	sort.Strings(names)

	want := []string{
		"world/DIM-1/regions/r.0.0.mca",
		"world/level.dat",
		"world/regions/r.0.0.mca",
	}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestScanPrunesDirectories(t *testing.T) {
	root := t.TempDir()
	writeFixtureFile(t, filepath.Join(root, "world", "level.dat"))
	writeFixtureFile(t, filepath.Join(root, "world", "regions", "r.0.0.mca"))
	writeFixtureFile(t, filepath.Join(root, "world", "entities", "e.0.0.mca"))
	writeFixtureFile(t, filepath.Join(root, "world", "poi", "p.0.0.mca"))

	prune := func(dirPath, dirName, parentName string) bool {
		return parentName == "world" && (dirName == "regions" || dirName == "entities" || dirName == "poi")
	}

	bus := NewBus(16)
	files, err := Scan([]string{filepath.Join(root, "world")}, prune, bus)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 1 || files[0].ArchiveName != "world/level.dat" {
		t.Fatalf("expected only world/level.dat to survive pruning, got %v", files)
	}
}

func TestScanMultipleRootsPreservesOrder(t *testing.T) {
	root := t.TempDir()
	writeFixtureFile(t, filepath.Join(root, "world", "level.dat"))
	writeFixtureFile(t, filepath.Join(root, "world_nether", "level.dat"))

	bus := NewBus(16)
	files, err := Scan([]string{
		filepath.Join(root, "world"),
		filepath.Join(root, "world_nether"),
	}, NoPrune, bus)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].ArchiveName != "world/level.dat" {
		t.Fatalf("expected first root's file first, got %v", files[0])
	}
	if files[1].ArchiveName != "world_nether/level.dat" {
		t.Fatalf("expected second root's file second, got %v", files[1])
	}
}
