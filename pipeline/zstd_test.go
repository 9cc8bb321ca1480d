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
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func readTarZstd(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	got := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading entry %s: %v", hdr.Name, err)
		}
		got[hdr.Name] = string(data)
	}
	return got
}

func TestRunZstdSequentialRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeNamedFixture(t, filepath.Join(root, "world", "level.dat"), "level data")
	writeNamedFixture(t, filepath.Join(root, "world", "regions", "r.0.0.mca"), "region data")

	outputPath := filepath.Join(t.TempDir(), "world.zst")
	opts := ArchiveOptions{
		Roots:            []string{filepath.Join(root, "world")},
		Format:           FormatTarZstd,
		CompressionLevel: -7,
		Threads:          1,
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

	got := readTarZstd(t, outputPath)
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

func TestRunZstdParallelRoundTrip(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 6; i++ {
		writeNamedFixture(t, filepath.Join(root, "world", fmt.Sprintf("f%d.dat", i)), fmt.Sprintf("data-%d", i))
	}

	outputPath := filepath.Join(t.TempDir(), "world.zst")
	opts := ArchiveOptions{
		Roots:            []string{filepath.Join(root, "world")},
		Format:           FormatTarZstd,
		CompressionLevel: -7,
		Threads:          4,
		MemoryLimitMiB:   512,
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

	got := readTarZstd(t, outputPath)
	if len(got) != 6 {
		t.Fatalf("got %d entries, want 6: %v", len(got), got)
	}
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("world/f%d.dat", i)
		want := fmt.Sprintf("data-%d", i)
		if got[name] != want {
			t.Fatalf("entry %s: got %q, want %q", name, got[name], want)
		}
	}
}

func TestBatchThresholdClampsToRange(t *testing.T) {
	cases := []struct {
		totalBytes uint64
		threads    int
		want       uint64
	}{
		{totalBytes: 4 * 1024 * 1024, threads: 1, want: minBatchThresholdBytes},
		{totalBytes: 4096 * 1024 * 1024, threads: 1, want: maxBatchThresholdBytes},
		{totalBytes: 800 * 1024 * 1024, threads: 4, want: 200 * 1024 * 1024},
		{totalBytes: 100, threads: 0, want: minBatchThresholdBytes},
	}
	for _, c := range cases {
		got := batchThreshold(c.totalBytes, c.threads)
		if got != c.want {
			t.Fatalf("batchThreshold(%d, %d) = %d, want %d", c.totalBytes, c.threads, got, c.want)
		}
	}
}

func TestBuildZstdBatchesRespectsThreshold(t *testing.T) {
	files := []statFile{
		{file: InputFile{ArchiveName: "a"}, size: 40},
		{file: InputFile{ArchiveName: "b"}, size: 40},
		{file: InputFile{ArchiveName: "c"}, size: 40},
	}
	units := buildZstdBatches(files, 50)

	if len(units) != 3 {
		t.Fatalf("expected each file in its own batch once adding it would exceed 50 bytes, got %d batches", len(units))
	}
	for i, u := range units {
		if u.Index != i {
			t.Fatalf("batch %d has Index %d", i, u.Index)
		}
		if len(u.Batch) != 1 {
			t.Fatalf("batch %d: expected 1 file, got %d", i, len(u.Batch))
		}
	}
}

func TestBuildZstdBatchesPacksUnderThreshold(t *testing.T) {
	files := []statFile{
		{file: InputFile{ArchiveName: "a"}, size: 10},
		{file: InputFile{ArchiveName: "b"}, size: 10},
		{file: InputFile{ArchiveName: "c"}, size: 10},
	}
	units := buildZstdBatches(files, 100)

	if len(units) != 1 {
		t.Fatalf("expected all files to pack into a single batch under threshold, got %d batches", len(units))
	}
	if len(units[0].Batch) != 3 {
		t.Fatalf("expected 3 files in the single batch, got %d", len(units[0].Batch))
	}
	if units[0].UncompressedBytes != 30 {
		t.Fatalf("expected UncompressedBytes 30, got %d", units[0].UncompressedBytes)
	}
}

func TestCompressZstdBatchSpillsToDiskWhenOverLimit(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "big.dat")
	writeNamedFixture(t, path, "some bytes of data that get compressed")

	scratch, err := newScratchDir()
	if err != nil {
		t.Fatalf("newScratchDir: %v", err)
	}
	defer scratch.cleanup()

	accountant := NewAccountant(1) // budget of 1 byte: nothing fits in memory
	defer accountant.Stop()

	bus := NewBus(16)
	go func() {
		for range bus.Events() {
		}
	}()

	unit := ZstdWorkUnit{
		Index:             0,
		Batch:             []InputFile{{SourcePath: path, ArchiveName: "big.dat"}},
		UncompressedBytes: 39,
	}
	result, err := compressZstdBatch(0, unit, scratch, accountant, -7, bus)
	bus.Close()
	if err != nil {
		t.Fatalf("compressZstdBatch: %v", err)
	}
	if result.Location != PayloadDisk {
		t.Fatalf("expected PayloadDisk for a batch larger than the memory limit, got %v", result.Location)
	}
	if _, err := os.Stat(result.DiskPath); err != nil {
		t.Fatalf("expected spilled file to exist at %s: %v", result.DiskPath, err)
	}
}

func TestCompressZstdBatchAlwaysSpillsWhenMemoryLimitIsZero(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "any.dat")
	writeNamedFixture(t, path, "small enough to fit in memory under any real budget")

	scratch, err := newScratchDir()
	if err != nil {
		t.Fatalf("newScratchDir: %v", err)
	}
	defer scratch.cleanup()

	// memory_limit_mib=0: every batch holding at least one byte must spill
	// straight to disk, never sitting in a bytes.Buffer first.
	accountant := NewAccountant(0)
	defer accountant.Stop()

	bus := NewBus(16)
	go func() {
		for range bus.Events() {
		}
	}()

	unit := ZstdWorkUnit{
		Index:             0,
		Batch:             []InputFile{{SourcePath: path, ArchiveName: "any.dat"}},
		UncompressedBytes: 1,
	}
	result, err := compressZstdBatch(0, unit, scratch, accountant, -7, bus)
	bus.Close()
	if err != nil {
		t.Fatalf("compressZstdBatch: %v", err)
	}
	if result.Location != PayloadDisk {
		t.Fatalf("expected PayloadDisk with a zero memory limit, got %v", result.Location)
	}
	if result.Memory != nil {
		t.Fatalf("expected no in-memory payload to have been built at all, got %d bytes", len(result.Memory))
	}
	if _, err := os.Stat(result.DiskPath); err != nil {
		t.Fatalf("expected spilled file to exist at %s: %v", result.DiskPath, err)
	}
}

func TestCompressZstdBatchKeepsInMemoryWithinBudget(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "small.dat")
	writeNamedFixture(t, path, "tiny")

	scratch, err := newScratchDir()
	if err != nil {
		t.Fatalf("newScratchDir: %v", err)
	}
	defer scratch.cleanup()

	accountant := NewAccountant(512 * 1024 * 1024)
	defer accountant.Stop()

	bus := NewBus(16)
	go func() {
		for range bus.Events() {
		}
	}()

	unit := ZstdWorkUnit{
		Index:             0,
		Batch:             []InputFile{{SourcePath: path, ArchiveName: "small.dat"}},
		UncompressedBytes: 4,
	}
	result, err := compressZstdBatch(0, unit, scratch, accountant, -7, bus)
	bus.Close()
	if err != nil {
		t.Fatalf("compressZstdBatch: %v", err)
	}
	if result.Location != PayloadMemory {
		t.Fatalf("expected PayloadMemory within a generous budget, got %v", result.Location)
	}
	if len(result.Memory) == 0 {
		t.Fatalf("expected non-empty in-memory payload")
	}
}
