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
	"runtime"
	"sort"

	"github.com/golang/glog"
	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"
)

// newZipWriter returns a zip.Writer whose DEFLATE entries are produced by
// klauspost/compress/flate at the given level instead of the standard
// library's fixed-level compressor. Registering the compressor on the
// Writer instance (rather than globally via zip.RegisterCompressor) keeps
// this safe to call from concurrent workers each building their own
// scratch zip.
func newZipWriter(w io.Writer, level int) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return zw
}

// runZipDeflate drives the full ZIP strategy: one work unit per file,
// compressed in parallel into per-file scratch zips, then spliced
// raw-copy into the final archive in ascending index order.
func runZipDeflate(opts ArchiveOptions, files []InputFile, scratch *scratchDir, bus *Bus) error {
	threads := opts.resolvedThreads(runtime.NumCPU())
	bus.StartCompression(uint64(len(files)))

	workCh := make(chan ZipWorkUnit, threads)
	type zipOutcome struct {
		result ZipResultUnit
		err    error
	}
	resultCh := make(chan zipOutcome, len(files))

	var g errgroup.Group
	for w := 0; w < threads; w++ {
		workerID := w
		g.Go(func() error {
			for unit := range workCh {
				result, err := compressZipUnit(workerID, unit, scratch, opts.CompressionLevel, bus)
				resultCh <- zipOutcome{result: result, err: err}
			}
			return nil
		})
	}

	go func() {
		for i, f := range files {
			workCh <- ZipWorkUnit{Index: i, File: f}
		}
		close(workCh)
	}()

	results := make([]ZipResultUnit, 0, len(files))
	var firstErr error
	for i := 0; i < len(files); i++ {
		outcome := <-resultCh
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}
			glog.Errorf("zip worker error: %v", outcome.err)
			continue
		}
		results = append(results, outcome.result)
	}

	_ = g.Wait()

	if firstErr != nil {
		return firstErr
	}

	return assembleZip(results, files, opts.OutputPath, bus)
}

func compressZipUnit(workerID int, unit ZipWorkUnit, scratch *scratchDir, level int, bus *Bus) (ZipResultUnit, error) {
	bus.Compressing(workerID, unit.File.ArchiveName)

	scratchPath := scratch.filePath(fmt.Sprintf("file_%d.zip", unit.Index))
	out, err := os.Create(scratchPath)
	if err != nil {
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}

	in, err := os.Open(unit.File.SourcePath)
	if err != nil {
		out.Close()
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}

	zw := newZipWriter(out, level)

	info, err := in.Stat()
	if err != nil {
		in.Close()
		out.Close()
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		in.Close()
		out.Close()
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}
	hdr.Name = unit.File.ArchiveName
	hdr.Method = zip.Deflate
	// Go's archive/zip transparently upgrades an entry (and the archive)
	// to the ZIP64 extension when the written size demands it, so no
	// explicit "large file" flag needs to be set here; it is implied by
	// using CreateHeader/Write rather than pre-declaring sizes.

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		in.Close()
		out.Close()
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}

	if _, err := io.Copy(w, in); err != nil {
		in.Close()
		out.Close()
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}

	if err := in.Close(); err != nil {
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}
	if err := zw.Close(); err != nil {
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}
	if err := out.Close(); err != nil {
		return ZipResultUnit{}, CompressionIOError.Wrap(err)
	}

	bus.FileCompressed(workerID, unit.File.ArchiveName)

	return ZipResultUnit{Index: unit.Index, ScratchZipPath: scratchPath}, nil
}

// assembleZip collects the per-file scratch zips, sorts them by index, and
// splices their single raw entry into the final archive without
// re-compressing.
func assembleZip(results []ZipResultUnit, files []InputFile, outputPath string, bus *Bus) error {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	bus.StartWriting(uint64(len(results)))

	out, err := os.Create(outputPath)
	if err != nil {
		return AssemblyIOError.Wrap(err)
	}
	zw := zip.NewWriter(out)

	for _, r := range results {
		label := r.ScratchZipPath
		if r.Index >= 0 && r.Index < len(files) {
			label = files[r.Index].ArchiveName
		}
		bus.WritingFile(label)

		if err := spliceZipEntry(zw, r.ScratchZipPath); err != nil {
			out.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
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

func spliceZipEntry(dst *zip.Writer, scratchZipPath string) error {
	zr, err := zip.OpenReader(scratchZipPath)
	if err != nil {
		return AssemblyIOError.Wrap(err)
	}
	defer zr.Close()

	if len(zr.File) != 1 {
		return FormatError.New("expected exactly one entry in scratch zip %s, got %d", scratchZipPath, len(zr.File))
	}
	entry := zr.File[0]

	rawReader, err := entry.OpenRaw()
	if err != nil {
		return AssemblyIOError.Wrap(err)
	}

	rawWriter, err := dst.CreateRaw(&entry.FileHeader)
	if err != nil {
		return AssemblyIOError.Wrap(err)
	}

	if _, err := io.Copy(rawWriter, rawReader); err != nil {
		return AssemblyIOError.Wrap(err)
	}
	return nil
}
