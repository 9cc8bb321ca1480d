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
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeNamedFixture(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRunZipDeflateRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeNamedFixture(t, filepath.Join(root, "world", "level.dat"), "level data")
	writeNamedFixture(t, filepath.Join(root, "world", "regions", "r.0.0.mca"), "region data")

	outputPath := filepath.Join(t.TempDir(), "world.zip")
	opts := ArchiveOptions{
		Roots:            []string{filepath.Join(root, "world")},
		Format:           FormatZipDeflate,
		CompressionLevel: 6,
		Threads:          2,
		OutputPath:       outputPath,
	}

	bus := NewBus(64)
	go func() {
		for range bus.Events() {
		}
	}()

	if err := Run(opts, NoPrune, bus); err != nil {
		t.Fatalf("Run: %v", err)
	}
	bus.Close()

	zr, err := zip.OpenReader(outputPath)
	if err != nil {
		t.Fatalf("opening produced zip: %v", err)
	}
	defer zr.Close()

	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading entry %s: %v", f.Name, err)
		}
		got[f.Name] = string(data)
	}

	want := map[string]string{
		"world/level.dat":         "level data",
		"world/regions/r.0.0.mca": "region data",
	}
	if len(got) != len(want) {
		t.Fatalf("got entries %v, want %v", got, want)
	}
	for name, contents := range want {
		if got[name] != contents {
			t.Fatalf("entry %s: got %q, want %q", name, got[name], contents)
		}
	}
}

func TestAssembleZipOrdersByIndexRegardlessOfCompletionOrder(t *testing.T) {
	root := t.TempDir()
	var files []InputFile
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("file_%d.bin", i)
		path := filepath.Join(root, name)
		writeNamedFixture(t, path, fmt.Sprintf("contents-%d", i))
		files = append(files, InputFile{SourcePath: path, ArchiveName: name})
	}

	scratch, err := newScratchDir()
	if err != nil {
		t.Fatalf("newScratchDir: %v", err)
	}
	defer scratch.cleanup()

	bus := NewBus(64)
	go func() {
		for range bus.Events() {
		}
	}()

	// Compress out of order to simulate nondeterministic worker completion,
	// but keep each unit's Index tied to its true position.
	order := []int{3, 1, 4, 0, 2}
	var results []ZipResultUnit
	for _, idx := range order {
		unit := ZipWorkUnit{Index: idx, File: files[idx]}
		r, err := compressZipUnit(0, unit, scratch, 6, bus)
		if err != nil {
			t.Fatalf("compressZipUnit: %v", err)
		}
		results = append(results, r)
	}

	outputPath := filepath.Join(t.TempDir(), "out.zip")
	if err := assembleZip(results, files, outputPath, bus); err != nil {
		t.Fatalf("assembleZip: %v", err)
	}
	bus.Close()

	zr, err := zip.OpenReader(outputPath)
	if err != nil {
		t.Fatalf("opening assembled zip: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if !sort.StringsAreSorted(names) {
		// Names happen to sort the same as index order here (file_0..file_4),
		// so a sorted check doubles as an index-order check.
		t.Fatalf("expected entries in index order, got %v", names)
	}
	for i, name := range names {
		want := fmt.Sprintf("file_%d.bin", i)
		if name != want {
			t.Fatalf("entry %d: got %s, want %s", i, name, want)
		}
	}
}
