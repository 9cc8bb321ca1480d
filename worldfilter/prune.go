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

// Package worldfilter builds the domain-specific pieces (root path list,
// prune predicate) that a Minecraft world archive needs, without the
// pipeline package ever knowing a world, a dimension, or bukkit exists.
package worldfilter

import (
	"path/filepath"

	"github.com/earomc/mwdh/pipeline"
)

// Names the vanilla single-world layout uses for the Nether and End
// dimensions nested inside the primary world directory.
const (
	netherDirName = "DIM-1"
	endDirName    = "DIM1"
)

// Subdirectories of the primary world directory that hold per-region
// Overworld data in the vanilla (non-bukkit) layout.
var overworldSubdirs = map[string]bool{
	"regions":  true,
	"entities": true,
	"poi":      true,
}

// Roots builds the ordered list of filesystem roots to scan for a given
// server/saves directory, matching the Bukkit/Spigot three-folder layout
// (world, world_nether, world_the_end) when opts.IsBukkit is set, or the
// single vanilla world directory otherwise.
func Roots(baseDir string, opts pipeline.PruneOptions) []string {
	if opts.IsBukkit {
		var roots []string
		if opts.IncludeOverworld {
			roots = append(roots, filepath.Join(baseDir, opts.WorldName))
		}
		if opts.IncludeNether {
			roots = append(roots, filepath.Join(baseDir, opts.WorldName+"_nether"))
		}
		if opts.IncludeEnd {
			roots = append(roots, filepath.Join(baseDir, opts.WorldName+"_the_end"))
		}
		return roots
	}
	return []string{filepath.Join(baseDir, opts.WorldName)}
}

// Predicate builds the pipeline.PrunePredicate encoding which directories
// to skip for the vanilla (non-bukkit) single-world layout. Per spec: when
// IsBukkit is true, dimensions are already separated into distinct roots
// and nothing is pruned by name.
func Predicate(opts pipeline.PruneOptions) pipeline.PrunePredicate {
	if opts.IsBukkit {
		return pipeline.NoPrune
	}
	return func(dirPath, dirName, parentName string) bool {
		if dirName == endDirName && !opts.IncludeEnd {
			return true
		}
		if dirName == netherDirName && !opts.IncludeNether {
			return true
		}
		if parentName == opts.WorldName && overworldSubdirs[dirName] && !opts.IncludeOverworld {
			return true
		}
		return false
	}
}
