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

// Package progressui renders a pipeline.Bus event stream as live terminal
// bars. It is a pure consumer: it has no feedback path into the pipeline
// and must tolerate either Zstandard mode emitting StartCompression.
package progressui

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/earomc/mwdh/pipeline"
)

// Renderer owns the mpb.Progress container and the two bars (compress,
// write) driven by pipeline.Bus events. Scanning has no bar of its own:
// FileFound events are counted in scanned, but that count is not
// displayed.
type Renderer struct {
	progress    *mpb.Progress
	scanned     int
	compressBar *mpb.Bar
	writeBar    *mpb.Bar
}

// NewRenderer creates a Renderer writing to out (os.Stderr in the CLI).
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		progress: mpb.New(mpb.WithOutput(out), mpb.WithWidth(40)),
	}
}

// Run drains events until the bus is closed, updating the bars in place.
// A Complete event does not end the loop; only closing the channel does.
// It is meant to run in its own goroutine alongside the pipeline.
func (r *Renderer) Run(events <-chan pipeline.Event) {
	for ev := range events {
		r.handle(ev)
	}
}

func (r *Renderer) handle(ev pipeline.Event) {
	switch ev.Kind {
	case pipeline.EventStartScanning:
		fmt.Fprintln(r.progress, "scanning input files...")
	case pipeline.EventFileFound:
		r.scanned++
	case pipeline.EventStartCompression:
		if r.compressBar == nil {
			r.compressBar = r.progress.AddBar(int64(ev.TotalFiles),
				mpb.PrependDecorators(decor.Name("compress ")),
				mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
			)
		}
	case pipeline.EventFileCompressed:
		if r.compressBar != nil {
			r.compressBar.Increment()
		}
	case pipeline.EventStartWriting:
		if r.writeBar == nil {
			r.writeBar = r.progress.AddBar(int64(ev.TotalUnits),
				mpb.PrependDecorators(decor.Name("assemble ")),
				mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
			)
		}
	case pipeline.EventWritingFile:
		if r.writeBar != nil {
			r.writeBar.Increment()
		}
	case pipeline.EventComplete:
		r.finish(ev.FinalSize)
	}
}

func (r *Renderer) finish(finalSize uint64) {
	r.progress.Wait()
	fmt.Fprintf(r.progress, "done: %s\n", humanize.IBytes(finalSize))
}

// Wait blocks until mpb's own render loop has drained, for callers that
// need to know the bars have finished drawing before printing a final
// summary line (e.g. the CLI after Run returns).
func (r *Renderer) Wait() {
	r.progress.Wait()
}
