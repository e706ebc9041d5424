/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bridge

import (
	"sync"
	"time"
)

// Phase of a bridge call.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseFinished
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseFinished:
		return "finished"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Progress is emitted to subscribers when a bridge call starts, finishes or fails.
type Progress struct {
	Op      string
	Phase   Phase
	Message string
	Err     error
	Elapsed time.Duration
}

type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Progress)
}

// Subscribe registers fn for progress events and returns a function removing it.
// fn runs on the calling goroutine of the bridge operation and must not block.
func (b *Bridge) Subscribe(fn func(Progress)) (unsubscribe func()) {
	h := &b.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = map[int]func(Progress){}
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *hub) emit(p Progress) {
	h.mu.Lock()
	fns := make([]func(Progress), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}
