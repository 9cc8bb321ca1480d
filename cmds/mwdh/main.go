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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/golang/glog"

	"github.com/earomc/mwdh/httpserve"
	"github.com/earomc/mwdh/mwdhcfg"
	"github.com/earomc/mwdh/pipeline"
	"github.com/earomc/mwdh/progressui"
	"github.com/earomc/mwdh/worldfilter"
)

// unsetCompressionLevel marks that the user did not pass -l/--compression-level,
// so the level should be resolved from --compression-format's own default,
// matching cli.rs's default_value_ifs on "compression-format".
const unsetCompressionLevel = -100

var cmd *commander.Commander

func init() {
	cmd = new(commander.Commander)
	cmd.Name = os.Args[0]
	cmd.Flag = flag.NewFlagSet("mwdh", flag.ExitOnError)
	cmd.Commands = make([]*commander.Command, 3)

	cmd.Commands[0] = &commander.Command{
		Run:       runArchive,
		UsageLine: "archive [options] -include-overworld|-include-nether|-include-end",
		Short:     "Archive a Minecraft world directory into a ZIP or tar+Zstandard file.",
		Long: `
Archives a Minecraft world directory (Overworld/Nether/End, vanilla or
bukkit layout) into a single compressed output file using a bounded
worker pool.`,
		Flag: *flag.NewFlagSet("mwdh-archive", flag.ExitOnError),
	}
	addArchiveFlags(&cmd.Commands[0].Flag)

	cmd.Commands[1] = &commander.Command{
		Run:       runServe,
		UsageLine: "serve [options] -path-to-archive <path>",
		Short:     "Host an already-built archive for download over HTTP.",
		Flag:      *flag.NewFlagSet("mwdh-serve", flag.ExitOnError),
	}
	addServeFlags(&cmd.Commands[1].Flag)

	cmd.Commands[2] = &commander.Command{
		Run:       runArchiveServe,
		UsageLine: "archive-serve [options] -include-overworld|-include-nether|-include-end",
		Short:     "Archive a Minecraft world and immediately host the result.",
		Flag:      *flag.NewFlagSet("mwdh-archive-serve", flag.ExitOnError),
	}
	addArchiveFlags(&cmd.Commands[2].Flag)
	addServeFlags(&cmd.Commands[2].Flag)
}

func addArchiveFlags(fs *flag.FlagSet) {
	fs.String("world-path", ".", "path to the minecraft server/saves directory")
	fs.String("world-name", "world", "name of the world directory (prefix, for bukkit layouts)")
	fs.Bool("include-nether", false, "include the Nether dimension")
	fs.Bool("include-end", false, "include the End dimension")
	fs.Bool("include-overworld", false, "include the Overworld dimension")
	fs.Bool("bukkit", false, "use the bukkit/spigot three-folder world layout")
	fs.String("compression-format", "zstd", "zip or zstd")
	fs.Int("compression-level", unsetCompressionLevel, "zstd: -7 to 22, zip: 0 to 9")
	fs.Int("threads", 0, "worker thread count (0 = auto-detect)")
	fs.Int("memory-limit-mib", 512, "in-memory retention budget for compressed payloads")
	fs.String("file-name", "world", "output file name, without extension")
}

func addServeFlags(fs *flag.FlagSet) {
	fs.String("bind", "0.0.0.0", "address to host the download on")
	fs.Int("port", 3000, "port to host the download on")
	fs.String("host-path", "world", "route the archive is served on")
	fs.String("path-to-archive", "", "path to an already-built archive (serve-only)")
	fs.Int("server-threads", 0, "max concurrent downloads (0 = unbounded)")
}

// resolveServeOptions applies mwdh.ini overrides (if found) on top of the
// flag defaults, matching cmds/rombaserver/main.go's findINI/gcfg flow: an
// ini value only overrides the flag default when it is actually set.
func resolveServeOptions(fs *flag.FlagSet, archivePath string, mediaType string) httpserve.Options {
	opts := httpserve.Options{
		Host:          flagString(fs, "bind"),
		Port:          flagInt(fs, "port"),
		HostPath:      flagString(fs, "host-path"),
		ArchivePath:   archivePath,
		MediaType:     mediaType,
		ServerThreads: flagInt(fs, "server-threads"),
	}

	path, err := mwdhcfg.FindINI()
	if err != nil {
		return opts
	}
	cfg, err := mwdhcfg.Load(path)
	if err != nil {
		glog.Warningf("ignoring %s: %v", path, err)
		return opts
	}
	if cfg.Server.Host != "" {
		opts.Host = cfg.Server.Host
	}
	if cfg.Server.Port != 0 {
		opts.Port = cfg.Server.Port
	}
	if ext := filepath.Ext(archivePath); ext == ".zip" && cfg.Media.ZipMediaType != "" {
		opts.MediaType = cfg.Media.ZipMediaType
	} else if ext == ".zst" && cfg.Media.ZstdMediaType != "" {
		opts.MediaType = cfg.Media.ZstdMediaType
	}
	return opts
}

func flagString(fs *flag.FlagSet, name string) string {
	return fs.Lookup(name).Value.Get().(string)
}

func flagBool(fs *flag.FlagSet, name string) bool {
	return fs.Lookup(name).Value.Get().(bool)
}

func flagInt(fs *flag.FlagSet, name string) int {
	return fs.Lookup(name).Value.Get().(int)
}

func resolveArchiveOptions(fs *flag.FlagSet) (pipeline.ArchiveOptions, string, error) {
	prune := pipeline.PruneOptions{
		IncludeOverworld: flagBool(fs, "include-overworld"),
		IncludeNether:    flagBool(fs, "include-nether"),
		IncludeEnd:       flagBool(fs, "include-end"),
		IsBukkit:         flagBool(fs, "bukkit"),
		WorldName:        flagString(fs, "world-name"),
	}
	if !(prune.IncludeOverworld || prune.IncludeNether || prune.IncludeEnd) {
		return pipeline.ArchiveOptions{}, "", fmt.Errorf("you have to include at least one dimension: try -include-overworld")
	}

	format, ok := parseFormatName(flagString(fs, "compression-format"))
	if !ok {
		return pipeline.ArchiveOptions{}, "", fmt.Errorf("unrecognized compression format")
	}

	level := flagInt(fs, "compression-level")
	if level == unsetCompressionLevel {
		level = defaultLevelFor(format)
	}

	fileName := flagString(fs, "file-name")
	outputPath := fileName + "." + format.Extension()

	opts := pipeline.ArchiveOptions{
		Roots:            worldfilter.Roots(flagString(fs, "world-path"), prune),
		Prune:            prune,
		Format:           format,
		CompressionLevel: level,
		Threads:          flagInt(fs, "threads"),
		MemoryLimitMiB:   uint64(flagInt(fs, "memory-limit-mib")),
		OutputPath:       outputPath,
	}
	return opts, outputPath, nil
}

func parseFormatName(s string) (pipeline.Format, bool) {
	switch s {
	case "zip":
		return pipeline.FormatZipDeflate, true
	case "zstd":
		return pipeline.FormatTarZstd, true
	default:
		return 0, false
	}
}

func defaultLevelFor(f pipeline.Format) int {
	if f == pipeline.FormatZipDeflate {
		return 6
	}
	return -7
}

func runArchive(c *commander.Command, args []string) {
	opts, outputPath, err := resolveArchiveOptions(&c.Flag)
	if err != nil {
		fail(err)
	}

	bus := pipeline.NewBus(64)
	renderer := progressui.NewRenderer(os.Stderr)
	done := make(chan struct{})
	go func() {
		renderer.Run(bus.Events())
		close(done)
	}()

	err = pipeline.Run(opts, worldfilter.Predicate(opts.Prune), bus)
	bus.Close()
	<-done
	if err != nil {
		fail(err)
	}
	glog.Infof("archived %s (%s) to %s", opts.Prune.WorldName, opts.Format, outputPath)
}

func runServe(c *commander.Command, args []string) {
	archivePath := flagString(&c.Flag, "path-to-archive")
	if archivePath == "" {
		fail(fmt.Errorf("serve requires -path-to-archive"))
	}
	format, ok := pipeline.FormatFromExtension(filepath.Ext(archivePath))
	if !ok {
		fail(fmt.Errorf("archive path %s must end in .zip or .zst", archivePath))
	}

	opts := resolveServeOptions(&c.Flag, archivePath, format.MediaType())
	if err := httpserve.ListenAndServe(opts); err != nil {
		fail(err)
	}
}

func runArchiveServe(c *commander.Command, args []string) {
	opts, outputPath, err := resolveArchiveOptions(&c.Flag)
	if err != nil {
		fail(err)
	}

	bus := pipeline.NewBus(64)
	renderer := progressui.NewRenderer(os.Stderr)
	done := make(chan struct{})
	go func() {
		renderer.Run(bus.Events())
		close(done)
	}()

	err = pipeline.Run(opts, worldfilter.Predicate(opts.Prune), bus)
	bus.Close()
	<-done
	if err != nil {
		fail(err)
	}
	glog.Infof("archived %s (%s) to %s", opts.Prune.WorldName, opts.Format, outputPath)

	serveOpts := resolveServeOptions(&c.Flag, outputPath, opts.Format.MediaType())
	if err := httpserve.ListenAndServe(serveOpts); err != nil {
		fail(err)
	}
}

// fail prints the error and exits 1, matching original_source/src/main.rs's
// single top-level error handler and romba's own os.Exit(1) convention.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "mwdh: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := cmd.Flag.Parse(os.Args[1:]); err != nil {
		fail(err)
	}
	args := cmd.Flag.Args()
	if err := cmd.Run(args); err != nil {
		fail(err)
	}
}
