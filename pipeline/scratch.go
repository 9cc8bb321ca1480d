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
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
)

// scratchDir owns a single per-process temporary directory used to hold
// intermediate compressed artifacts (per-file zip scratches, spilled
// zstd batch frames). Its name embeds the process id so two concurrent
// invocations never collide, matching the "mwdh_<pid>" naming the original
// implementation used for the same purpose.
type scratchDir struct {
	path string
}

// newScratchDir creates mwdh_<pid>/ under the OS temp directory.
func newScratchDir() (*scratchDir, error) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("mwdh_%d", os.Getpid()))
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, CompressionIOError.Wrap(err)
	}
	return &scratchDir{path: dir}, nil
}

func (s *scratchDir) Path() string {
	return s.path
}

func (s *scratchDir) filePath(name string) string {
	return filepath.Join(s.path, name)
}

// cleanup removes the scratch directory. It is called via defer from every
// pipeline entry point so it runs on success, on error return, and — since
// a deferred call still runs while a panic unwinds the stack — on panic
// too. No code path may leave the scratch directory behind.
func (s *scratchDir) cleanup() {
	if err := os.RemoveAll(s.path); err != nil {
		glog.Errorf("failed to remove scratch directory %s: %v", s.path, err)
	}
}
