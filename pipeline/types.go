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

import "fmt"

// Format selects the output container produced by the pipeline.
type Format int

const (
	FormatZipDeflate Format = iota
	FormatTarZstd
)

func (f Format) String() string {
	switch f {
	case FormatZipDeflate:
		return "zip"
	case FormatTarZstd:
		return "tar.zst"
	default:
		return "unknown"
	}
}

// Extension is the canonical file extension for the format, without a
// leading dot, matching the CLI's output-path inference rules.
func (f Format) Extension() string {
	switch f {
	case FormatZipDeflate:
		return "zip"
	case FormatTarZstd:
		return "zst"
	default:
		return ""
	}
}

// MediaType is the Content-Type the HTTP collaborator advertises for the
// format.
func (f Format) MediaType() string {
	switch f {
	case FormatZipDeflate:
		return "application/zip"
	case FormatTarZstd:
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// FormatFromExtension infers a Format from a file extension (with or
// without a leading dot). It returns ok=false for any extension other than
// "zip" or "zst".
func FormatFromExtension(ext string) (f Format, ok bool) {
	for len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	switch ext {
	case "zip":
		return FormatZipDeflate, true
	case "zst":
		return FormatTarZstd, true
	default:
		return 0, false
	}
}

// PruneOptions carries the domain-specific parameters the Scanner's prune
// predicate needs. The pipeline itself has no notion of Minecraft worlds;
// these fields only parameterize which directory names get skipped. See
// worldfilter for the predicate built from these options.
type PruneOptions struct {
	IncludeOverworld bool
	IncludeNether    bool
	IncludeEnd       bool
	IsBukkit         bool
	WorldName        string
}

// ArchiveOptions is the immutable configuration bag for one pipeline
// invocation.
type ArchiveOptions struct {
	Roots            []string
	Prune            PruneOptions
	Format           Format
	CompressionLevel int
	Threads          int
	MemoryLimitMiB   uint64
	OutputPath       string
}

// Validate checks the parts of ArchiveOptions the pipeline itself is
// responsible for (compression level ranges, thread count); CLI-level
// concerns (flag parsing, root existence) are the caller's job.
func (o ArchiveOptions) Validate() error {
	if o.Threads < 0 {
		return ConfigError.New("threads must be >= 0, got %d", o.Threads)
	}
	switch o.Format {
	case FormatZipDeflate:
		if o.CompressionLevel < 0 || o.CompressionLevel > 9 {
			return ConfigError.New("zip compression level must be 0..9, got %d", o.CompressionLevel)
		}
	case FormatTarZstd:
		if o.CompressionLevel < -7 || o.CompressionLevel > 22 {
			return ConfigError.New("zstd compression level must be -7..22, got %d", o.CompressionLevel)
		}
	default:
		return ConfigError.New("unrecognized format %v", o.Format)
	}
	return nil
}

// resolvedThreads returns o.Threads with 0 resolved to the host's logical
// CPU count, so callers never have to special-case "auto-detect" downstream.
func (o ArchiveOptions) resolvedThreads(numCPU int) int {
	if o.Threads == 0 {
		return numCPU
	}
	return o.Threads
}

func (o ArchiveOptions) memoryLimitBytes() uint64 {
	return o.MemoryLimitMiB * 1024 * 1024
}

// InputFile is one file discovered by the Scanner. archiveName is the
// slash-joined path the file must occupy inside the output archive,
// independent of host OS path conventions.
type InputFile struct {
	SourcePath  string
	ArchiveName string
}

func (f InputFile) String() string {
	return fmt.Sprintf("%s -> %s", f.SourcePath, f.ArchiveName)
}

// ZipWorkUnit is one unit of work for the ZIP strategy: exactly one file.
type ZipWorkUnit struct {
	Index int
	File  InputFile
}

// ZipResultUnit is the ZIP strategy's result: a path to a scratch
// single-entry zip holding the already-compressed file.
type ZipResultUnit struct {
	Index          int
	ScratchZipPath string
}

// ZstdWorkUnit is one unit of work for the Zstandard strategy: an ordered
// batch of files compressed into one self-contained tar+zstd frame.
type ZstdWorkUnit struct {
	Index             int
	Batch             []InputFile
	UncompressedBytes uint64
}

// PayloadLocation tags where a compressed Zstandard frame ended up: held
// in memory (accountant approved) or spilled to a scratch file.
type PayloadLocation int

const (
	PayloadMemory PayloadLocation = iota
	PayloadDisk
)

// ZstdResultUnit is the Zstandard strategy's result: one self-contained
// tar+zstd frame, either in memory or on disk.
type ZstdResultUnit struct {
	Index    int
	Location PayloadLocation
	Memory   []byte
	DiskPath string
}
