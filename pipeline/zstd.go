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
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"

	"github.com/golang/glog"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// Batch sizing bounds, mirroring the clamp the source applies to the
// per-worker batch threshold before it ever looks at the actual total size.
const (
	minBatchThresholdBytes uint64 = 64 * 1024 * 1024
	maxBatchThresholdBytes uint64 = 512 * 1024 * 1024
)

// zstdLevel maps the spec's full zstd -7..22 level range onto the four
// discrete presets klauspost/compress/zstd exposes. The library does not
// support the real zstd CLI's fine-grained integer levels, so levels are
// bucketed: non-positive (the "fast" range) to SpeedFastest, 1-3 to the
// library default, 4-9 to SpeedBetterCompression, and 10 and above to
// SpeedBestCompression.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 9:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// runZstdSequential drives a single continuous tar+zstd stream directly to
// the output file: no scratch directory, no accountant, no assembler. It is
// selected whenever the resolved thread count is 1.
func runZstdSequential(opts ArchiveOptions, files []InputFile, bus *Bus) error {
	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return AssemblyIOError.Wrap(err)
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstdLevel(opts.CompressionLevel)))
	if err != nil {
		out.Close()
		return CompressionIOError.Wrap(err)
	}
	tw := tar.NewWriter(enc)

	// Both StartCompression and StartWriting fire up front: this path
	// interleaves compression and writing in one pass, so both totals are
	// announced before the first per-file event rather than only one.
	bus.StartCompression(uint64(len(files)))
	bus.StartWriting(uint64(len(files)))

	for _, f := range files {
		bus.Compressing(0, f.ArchiveName)
		if err := writeTarEntry(tw, f); err != nil {
			tw.Close()
			enc.Close()
			out.Close()
			return err
		}
		bus.FileCompressed(0, f.ArchiveName)
		bus.WritingFile(f.ArchiveName)
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		out.Close()
		return AssemblyIOError.Wrap(err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return CompressionIOError.Wrap(err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return AssemblyIOError.Wrap(err)
	}

	info, err := out.Stat()
	if err != nil {
		out.Close()
		return AssemblyIOError.Wrap(err)
	}
	finalSize := uint64(info.Size())

	if err := out.Close(); err != nil {
		return AssemblyIOError.Wrap(err)
	}

	bus.Complete(finalSize)
	return nil
}

// writeTarEntry writes one GNU tar header plus its file content (with
// stdlib archive/tar handling the 512-byte block padding).
func writeTarEntry(tw *tar.Writer, f InputFile) error {
	in, err := os.Open(f.SourcePath)
	if err != nil {
		return ScanIOError.Wrap(err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return ScanIOError.Wrap(err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return CompressionIOError.Wrap(err)
	}
	hdr.Name = f.ArchiveName
	hdr.Format = tar.FormatGNU

	if err := tw.WriteHeader(hdr); err != nil {
		return CompressionIOError.Wrap(err)
	}
	if _, err := io.Copy(tw, in); err != nil {
		return CompressionIOError.Wrap(err)
	}
	return nil
}

// batchThreshold computes the per-batch byte budget used to group files for
// the parallel path: totalBytes divided evenly across threads, clamped to
// [minBatchThresholdBytes, maxBatchThresholdBytes].
func batchThreshold(totalBytes uint64, threads int) uint64 {
	if threads < 1 {
		threads = 1
	}
	t := totalBytes / uint64(threads)
	if t < minBatchThresholdBytes {
		return minBatchThresholdBytes
	}
	if t > maxBatchThresholdBytes {
		return maxBatchThresholdBytes
	}
	return t
}

type statFile struct {
	file InputFile
	size uint64
}

func statFiles(files []InputFile) ([]statFile, uint64, error) {
	out := make([]statFile, 0, len(files))
	var total uint64
	for _, f := range files {
		info, err := os.Stat(f.SourcePath)
		if err != nil {
			return nil, 0, ScanIOError.Wrap(err)
		}
		size := uint64(info.Size())
		out = append(out, statFile{file: f, size: size})
		total += size
	}
	return out, total, nil
}

// buildZstdBatches groups files into work units whose cumulative
// uncompressed size does not exceed threshold, except a lone file already
// larger than threshold, which gets its own batch.
func buildZstdBatches(files []statFile, threshold uint64) []ZstdWorkUnit {
	var units []ZstdWorkUnit
	var current []InputFile
	var currentBytes uint64

	flush := func() {
		if len(current) == 0 {
			return
		}
		units = append(units, ZstdWorkUnit{
			Index:             len(units),
			Batch:             current,
			UncompressedBytes: currentBytes,
		})
		current = nil
		currentBytes = 0
	}

	for _, sf := range files {
		if currentBytes > 0 && currentBytes+sf.size > threshold {
			flush()
		}
		current = append(current, sf.file)
		currentBytes += sf.size
	}
	flush()

	return units
}

// runZstdParallel drives the batched Zstandard strategy: files are grouped
// into size-bounded batches, each batch compressed independently into a
// self-contained tar+zstd frame (no end-of-archive marker), with the
// Accountant gating whether a frame stays in memory or spills to scratch.
// The Assembler concatenates the frames in order and appends one global
// 1024-zero-byte trailer frame.
func runZstdParallel(opts ArchiveOptions, files []InputFile, scratch *scratchDir, bus *Bus) error {
	threads := opts.resolvedThreads(runtime.NumCPU())

	statted, totalBytes, err := statFiles(files)
	if err != nil {
		return err
	}
	threshold := batchThreshold(totalBytes, threads)
	units := buildZstdBatches(statted, threshold)

	accountant := NewAccountant(opts.memoryLimitBytes())
	defer accountant.Stop()

	bus.StartCompression(uint64(len(files)))

	workCh := make(chan ZstdWorkUnit, threads)
	type zstdOutcome struct {
		result ZstdResultUnit
		err    error
	}
	resultCh := make(chan zstdOutcome, len(units))

	var g errgroup.Group
	for w := 0; w < threads; w++ {
		workerID := w
		g.Go(func() error {
			for unit := range workCh {
				result, err := compressZstdBatch(workerID, unit, scratch, accountant, opts.CompressionLevel, bus)
				resultCh <- zstdOutcome{result: result, err: err}
			}
			return nil
		})
	}

	go func() {
		for _, u := range units {
			workCh <- u
		}
		close(workCh)
	}()

	results := make([]ZstdResultUnit, 0, len(units))
	var firstErr error
	for i := 0; i < len(units); i++ {
		outcome := <-resultCh
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}
			glog.Errorf("zstd worker error: %v", outcome.err)
			continue
		}
		results = append(results, outcome.result)
	}

	_ = g.Wait()

	if firstErr != nil {
		return firstErr
	}

	return assembleZstd(results, opts, bus)
}

func compressZstdBatch(workerID int, unit ZstdWorkUnit, scratch *scratchDir, accountant *Accountant, level int, bus *Bus) (ZstdResultUnit, error) {
	directToDisk := unit.UncompressedBytes > accountant.limit

	var sink io.Writer
	var diskPath string
	var diskFile *os.File
	var buf *bytes.Buffer

	if directToDisk {
		diskPath = scratch.filePath(fmt.Sprintf("batch_%d.zst", unit.Index))
		f, err := os.Create(diskPath)
		if err != nil {
			return ZstdResultUnit{}, CompressionIOError.Wrap(err)
		}
		diskFile = f
		sink = f
	} else {
		buf = &bytes.Buffer{}
		sink = buf
	}

	enc, err := zstd.NewWriter(sink, zstd.WithEncoderLevel(zstdLevel(level)), zstd.WithEncoderConcurrency(1))
	if err != nil {
		if diskFile != nil {
			diskFile.Close()
		}
		return ZstdResultUnit{}, CompressionIOError.Wrap(err)
	}
	tw := tar.NewWriter(enc)

	for _, f := range unit.Batch {
		bus.Compressing(workerID, f.ArchiveName)
		if err := writeTarEntry(tw, f); err != nil {
			if diskFile != nil {
				diskFile.Close()
			}
			return ZstdResultUnit{}, err
		}
		bus.FileCompressed(workerID, f.ArchiveName)
	}

	// Flush (not Close) the tar writer: it finishes the last entry's block
	// padding without emitting the two-zero-block end-of-archive marker,
	// which only the Assembler's single global trailer may do.
	if err := tw.Flush(); err != nil {
		if diskFile != nil {
			diskFile.Close()
		}
		return ZstdResultUnit{}, CompressionIOError.Wrap(err)
	}
	if err := enc.Close(); err != nil {
		if diskFile != nil {
			diskFile.Close()
		}
		return ZstdResultUnit{}, CompressionIOError.Wrap(err)
	}

	if directToDisk {
		if err := diskFile.Close(); err != nil {
			return ZstdResultUnit{}, CompressionIOError.Wrap(err)
		}
		return ZstdResultUnit{Index: unit.Index, Location: PayloadDisk, DiskPath: diskPath}, nil
	}

	compressed := buf.Bytes()
	if accountant.RequestAllocation(uint64(len(compressed))) {
		return ZstdResultUnit{Index: unit.Index, Location: PayloadMemory, Memory: compressed}, nil
	}

	// Accountant denied the in-memory budget: spill to scratch instead.
	diskPath = scratch.filePath(fmt.Sprintf("batch_%d.zst", unit.Index))
	if err := os.WriteFile(diskPath, compressed, 0o644); err != nil {
		return ZstdResultUnit{}, CompressionIOError.Wrap(err)
	}
	return ZstdResultUnit{Index: unit.Index, Location: PayloadDisk, DiskPath: diskPath}, nil
}

// assembleZstd concatenates each batch's frame in ascending index order and
// appends a final zstd frame containing 1024 zero bytes, matching the
// decoder-visible tar end-of-archive marker that sequential mode gets for
// free from a single continuous tar stream.
func assembleZstd(results []ZstdResultUnit, opts ArchiveOptions, bus *Bus) error {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	bus.StartWriting(uint64(len(results)))

	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return AssemblyIOError.Wrap(err)
	}

	for _, r := range results {
		bus.WritingFile(fmt.Sprintf("batch %d", r.Index))
		switch r.Location {
		case PayloadMemory:
			if _, err := out.Write(r.Memory); err != nil {
				out.Close()
				return AssemblyIOError.Wrap(err)
			}
		case PayloadDisk:
			if err := appendFile(out, r.DiskPath); err != nil {
				out.Close()
				return err
			}
		}
	}

	if err := appendZeroTrailer(out, opts.CompressionLevel); err != nil {
		out.Close()
		return err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return AssemblyIOError.Wrap(err)
	}

	info, err := out.Stat()
	if err != nil {
		out.Close()
		return AssemblyIOError.Wrap(err)
	}
	finalSize := uint64(info.Size())

	if err := out.Close(); err != nil {
		return AssemblyIOError.Wrap(err)
	}

	bus.Complete(finalSize)
	return nil
}

func appendFile(dst *os.File, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return AssemblyIOError.Wrap(err)
	}
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return AssemblyIOError.Wrap(err)
	}
	return nil
}

func appendZeroTrailer(dst *os.File, level int) error {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return CompressionIOError.Wrap(err)
	}
	if _, err := enc.Write(make([]byte, 1024)); err != nil {
		enc.Close()
		return CompressionIOError.Wrap(err)
	}
	if err := enc.Close(); err != nil {
		return CompressionIOError.Wrap(err)
	}
	if _, err := dst.Write(buf.Bytes()); err != nil {
		return AssemblyIOError.Wrap(err)
	}
	return nil
}
