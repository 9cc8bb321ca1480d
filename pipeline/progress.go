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

// EventKind tags which member of the closed progress event set an Event
// carries.
type EventKind int

const (
	EventStartScanning EventKind = iota
	EventFileFound
	EventStartCompression
	EventCompressing
	EventFileCompressed
	EventStartWriting
	EventWritingFile
	EventComplete
)

// Event is the closed progress sum type flowing over the Bus. Only the
// fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind       EventKind
	Path       string // FileFound
	TotalFiles uint64 // StartCompression
	TotalUnits uint64 // StartWriting
	WorkerID   int    // Compressing, FileCompressed
	Label      string // Compressing, FileCompressed, WritingFile
	FinalSize  uint64 // Complete
}

// Bus is a one-way, multi-producer, single-consumer progress channel.
// Workers, the Scanner, and the Assembler all hold a send-only view and
// fire events with best-effort, non-blocking semantics: a consumer that
// stopped listening (or never started) must never stall compression. This
// mirrors the fire-and-forget `tx.send(...).ok()` pattern the source
// renderer relies on, reimplemented here as a buffered channel plus a
// non-blocking send instead of an ignored Result.
type Bus struct {
	events chan Event
}

// NewBus creates a Bus with the given buffer depth. A deeper buffer makes
// it less likely a burst of events is dropped before the consumer drains
// it, but Send never blocks regardless of depth.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{events: make(chan Event, buffer)}
}

// Events returns the receive-only side for the single consumer (a
// renderer, a test, or nothing at all).
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Send fires an event without blocking. If the channel is full (consumer
// too slow or gone) the event is dropped silently — progress reporting is
// advisory, never a synchronization mechanism for the pipeline itself.
func (b *Bus) Send(e Event) {
	select {
	case b.events <- e:
	default:
	}
}

// Close closes the event channel. Callers must only call this after every
// producer goroutine has stopped sending.
func (b *Bus) Close() {
	close(b.events)
}

func (b *Bus) StartScanning() {
	b.Send(Event{Kind: EventStartScanning})
}

func (b *Bus) FileFound(path string) {
	b.Send(Event{Kind: EventFileFound, Path: path})
}

func (b *Bus) StartCompression(total uint64) {
	b.Send(Event{Kind: EventStartCompression, TotalFiles: total})
}

func (b *Bus) Compressing(workerID int, label string) {
	b.Send(Event{Kind: EventCompressing, WorkerID: workerID, Label: label})
}

func (b *Bus) FileCompressed(workerID int, label string) {
	b.Send(Event{Kind: EventFileCompressed, WorkerID: workerID, Label: label})
}

func (b *Bus) StartWriting(total uint64) {
	b.Send(Event{Kind: EventStartWriting, TotalUnits: total})
}

func (b *Bus) WritingFile(label string) {
	b.Send(Event{Kind: EventWritingFile, Label: label})
}

func (b *Bus) Complete(finalSize uint64) {
	b.Send(Event{Kind: EventComplete, FinalSize: finalSize})
}
