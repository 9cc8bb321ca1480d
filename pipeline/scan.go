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

	"github.com/golang/glog"
	"github.com/karrick/godirwalk"
)

// PrunePredicate decides whether a directory should be skipped entirely
// during traversal. dirPath is the directory's full filesystem path,
// dirName is its base name, and parentName is the base name of its parent
// directory. The Scanner has no notion of what the predicate encodes (the
// Minecraft dimension-layout rules live in package worldfilter); it only
// calls it once per directory.
type PrunePredicate func(dirPath, dirName, parentName string) bool

// NoPrune never skips a directory.
func NoPrune(string, string, string) bool { return false }

type stackFrame struct {
	fsPath        string
	archivePrefix string
}

// Scan walks roots depth-first using an explicit stack of
// (filesystem path, archive path prefix) frames, applying prune to decide
// which directories to recurse into. It returns the discovered files in
// traversal order and fires StartScanning/FileFound events on bus as it
// goes.
//
// Symlink policy: this Scanner follows the host filesystem's default
// behavior for symlinks (godirwalk.ReadDirents and os.Stat dereference
// them transparently) — no special-casing is applied.
func Scan(roots []string, prune PrunePredicate, bus *Bus) ([]InputFile, error) {
	if prune == nil {
		prune = NoPrune
	}
	bus.StartScanning()

	var files []InputFile
	var scratch []byte

	// Push roots in reverse so they pop off the stack in input order.
	stack := make([]stackFrame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		root := roots[i]
		stack = append(stack, stackFrame{
			fsPath:        filepath.Clean(root),
			archivePrefix: filepath.Base(filepath.Clean(root)),
		})
	}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dirents, err := godirwalk.ReadDirents(frame.fsPath, scratch)
		if err != nil {
			return nil, ScanIOError.Wrap(err)
		}

		// Files are appended in readdir order. Subdirectories are collected
		// and pushed afterwards in reverse, so they pop off the stack (and
		// are explored depth-first) in readdir order too.
		var subdirs []stackFrame
		for _, entry := range dirents {
			childPath := filepath.Join(frame.fsPath, entry.Name())
			childArchivePath := frame.archivePrefix + "/" + entry.Name()

			isDir := entry.IsDir()
			if !isDir && entry.IsSymlink() {
				// Follow the link to learn whether it points at a directory.
				info, statErr := os.Stat(childPath)
				if statErr != nil {
					return nil, ScanIOError.Wrap(statErr)
				}
				isDir = info.IsDir()
			}

			if isDir {
				parentName := filepath.Base(frame.fsPath)
				if prune(childPath, entry.Name(), parentName) {
					glog.V(2).Infof("pruning directory %s", childPath)
					continue
				}
				subdirs = append(subdirs, stackFrame{
					fsPath:        childPath,
					archivePrefix: childArchivePath,
				})
				continue
			}

			files = append(files, InputFile{
				SourcePath:  childPath,
				ArchiveName: childArchivePath,
			})
			bus.FileFound(childPath)
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return files, nil
}
