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

// accountantRequest is one (size, reply) message sent to the Accountant's
// owner goroutine.
type accountantRequest struct {
	size  uint64
	reply chan bool
}

// Accountant is a single-owner byte counter that caps cumulative in-memory
// retention of compressed payloads against an immutable limit. It never
// releases memory once approved: current only grows for the lifetime of
// one pipeline invocation — this is intentional, not a bug, because the
// counter bounds *pending* retention, and every approved payload is written
// out (and the whole counter discarded) by the time the Assembler finishes.
//
// The source this is grounded on polls its reply channel with a
// non-blocking try-receive, treating "not ready yet" the same as a denial
// (a transient-underutilization race documented as an open question). This
// implementation instead makes the request a synchronous blocking receive:
// it removes the race while preserving the same memory-bound guarantee,
// and is far easier to test deterministically.
type Accountant struct {
	limit    uint64
	requests chan accountantRequest
	done     chan struct{}
}

// NewAccountant starts the owner goroutine and returns an Accountant ready
// to accept requests. Stop must be called once the pipeline is done with
// it.
func NewAccountant(limitBytes uint64) *Accountant {
	a := &Accountant{
		limit:    limitBytes,
		requests: make(chan accountantRequest),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Accountant) run() {
	var current uint64
	for {
		select {
		case req := <-a.requests:
			approved := current+req.size <= a.limit
			if approved {
				current += req.size
			}
			req.reply <- approved
		case <-a.done:
			return
		}
	}
}

// RequestAllocation asks the owner goroutine to approve retaining n bytes
// in memory. It blocks until the owner replies, then returns whether the
// request fit within the remaining budget.
func (a *Accountant) RequestAllocation(n uint64) bool {
	reply := make(chan bool, 1)
	a.requests <- accountantRequest{size: n, reply: reply}
	return <-reply
}

// Stop terminates the owner goroutine. Safe to call once per Accountant.
func (a *Accountant) Stop() {
	close(a.done)
}
