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
	"sync"
	"testing"
)

func TestAccountantApprovesWithinBudget(t *testing.T) {
	a := NewAccountant(100)
	defer a.Stop()

	if !a.RequestAllocation(40) {
		t.Fatalf("expected 40 to be approved against a 100-byte budget")
	}
	if !a.RequestAllocation(60) {
		t.Fatalf("expected 60 to be approved, bringing cumulative to exactly 100")
	}
	if a.RequestAllocation(1) {
		t.Fatalf("expected any further allocation to be denied once the budget is exhausted")
	}
}

func TestAccountantDeniesOversizedRequest(t *testing.T) {
	a := NewAccountant(10)
	defer a.Stop()

	if a.RequestAllocation(11) {
		t.Fatalf("expected a request larger than the whole budget to be denied")
	}
	if !a.RequestAllocation(10) {
		t.Fatalf("expected a request exactly matching the budget to be approved")
	}
}

func TestAccountantNeverExceedsBudgetUnderConcurrency(t *testing.T) {
	const budget = 1000
	const requestSize = 7
	a := NewAccountant(budget)
	defer a.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	approvedTotal := uint64(0)

	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.RequestAllocation(requestSize) {
				mu.Lock()
				approvedTotal += requestSize
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if approvedTotal > budget {
		t.Fatalf("approved total %d exceeds budget %d", approvedTotal, budget)
	}
}
