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

// Package pipeline implements the format-agnostic archive build pipeline:
// Scanner, Worker Pool, and Assembler, coordinated through a shared Progress
// Bus, Scratch Directory Manager, and Memory Accountant. It has no notion of
// the domain the files being archived belong to; callers supply a
// PrunePredicate to shape traversal.
package pipeline

import "runtime"

// Run executes one full archive build: scan roots, dispatch to the
// strategy selected by opts.Format, and assemble the final archive at
// opts.OutputPath. The scratch directory is created before compression
// begins and removed via defer on every exit path, including panics.
func Run(opts ArchiveOptions, prune PrunePredicate, bus *Bus) (err error) {
	if bus == nil {
		bus = NewBus(1)
	}
	if verr := opts.Validate(); verr != nil {
		return verr
	}

	files, err := Scan(opts.Roots, prune, bus)
	if err != nil {
		return err
	}

	scratch, err := newScratchDir()
	if err != nil {
		return err
	}
	defer scratch.cleanup()

	switch opts.Format {
	case FormatZipDeflate:
		return runZipDeflate(opts, files, scratch, bus)
	case FormatTarZstd:
		if opts.resolvedThreads(runtime.NumCPU()) == 1 {
			return runZstdSequential(opts, files, bus)
		}
		return runZstdParallel(opts, files, scratch, bus)
	default:
		return FormatError.New("unrecognized format %v", opts.Format)
	}
}
