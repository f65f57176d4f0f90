// Package rib holds the Routing Information Base: the set of currently
// installed Flows. It is the only mutable state in the process — the
// topology is read-only once loaded, and every mutation here is guarded by
// a single mutex so that validate -> encode -> announce happens as one
// atomic step per flow, matching the single-writer assumption the exabgp
// stdio channel requires.
package rib

import (
	"fmt"
	"strings"
	"sync"

	"github.com/upa-network/flowchaind/internal/flow"
	"github.com/upa-network/flowchaind/internal/flowerr"
	"github.com/upa-network/flowchaind/internal/topology"
)

// Speaker is the minimal surface the RIB needs from the exabgp channel.
// internal/speaker.Writer satisfies it directly.
type Speaker interface {
	Write(line string) error
}

// lineWriter adapts a Speaker to the io.Writer that flow.Flow.Announce and
// flow.Flow.Withdraw write to, stripping the trailing newline each call
// supplies.
type lineWriter struct {
	s Speaker
}

func (lw lineWriter) Write(p []byte) (int, error) {
	if err := lw.s.Write(strings.TrimRight(string(p), "\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}

// RIB is the routing information base for installed Flows.
type RIB struct {
	fps *topology.FunctionPools
	w   lineWriter

	mu    sync.Mutex
	flows []*flow.Flow
}

// New builds an empty RIB bound to fps and the given speaker channel.
func New(fps *topology.FunctionPools, w Speaker) *RIB {
	return &RIB{fps: fps, w: lineWriter{s: w}}
}

// FindByPrefix returns the flow whose prefix or NATed prefix equals prefix,
// or nil if none is installed.
func (r *RIB) FindByPrefix(prefix string) *flow.Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByPrefixLocked(prefix)
}

func (r *RIB) findByPrefixLocked(prefix string) *flow.Flow {
	for _, f := range r.flows {
		if f.Prefix == prefix || (f.PrefixNatted != "" && f.PrefixNatted == prefix) {
			return f
		}
	}
	return nil
}

// All returns the installed flows in insertion order. Callers must not
// mutate the returned slice.
func (r *RIB) All() []*flow.Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*flow.Flow, len(r.flows))
	copy(out, r.flows)
	return out
}

// Len returns the number of installed flows.
func (r *RIB) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Add validates and encodes f against the topology, rejects it if its
// prefix (or NATed prefix) collides with an already-installed flow,
// announces its routes to the speaker, and appends it to the RIB. The
// whole sequence runs under the RIB's lock, so a concurrent Add/Delete
// cannot observe or announce a half-built flow.
func (r *RIB) Add(f *flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(f)
}

func (r *RIB) addLocked(f *flow.Flow) error {
	if err := f.Validate(r.fps); err != nil {
		return err
	}

	if existing := r.findByPrefixLocked(f.Prefix); existing != nil {
		return flowerr.New(flowerr.DuplicatePrefix, fmt.Sprintf("flow for prefix %q already exists", f.Prefix))
	}
	if f.PrefixNatted != "" {
		if existing := r.findByPrefixLocked(f.PrefixNatted); existing != nil {
			return flowerr.New(flowerr.DuplicatePrefix, fmt.Sprintf("flow for prefix %q already exists", f.PrefixNatted))
		}
	}

	if err := f.Encode(r.fps); err != nil {
		return err
	}
	if err := f.Announce(r.w); err != nil {
		return err
	}

	r.flows = append(r.flows, f)
	return nil
}

// Delete withdraws f's routes via the speaker and removes it from the RIB.
func (r *RIB) Delete(f *flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(f)
}

func (r *RIB) deleteLocked(f *flow.Flow) error {
	if err := f.Withdraw(r.w); err != nil {
		return err
	}
	for i, existing := range r.flows {
		if existing == f {
			r.flows = append(r.flows[:i], r.flows[i+1:]...)
			break
		}
	}
	return nil
}

// Override replaces whatever flow currently occupies f's prefix (or NATed
// prefix), if any, with f. f is validated, encoded, and announced before the
// old flow (if any) is withdrawn, so a failure announcing f leaves the old
// flow fully installed rather than losing it: the worst case on a withdraw
// failure is a brief duplicate in the speaker, never a silently dropped
// route.
func (r *RIB) Override(f *flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := f.Validate(r.fps); err != nil {
		return err
	}

	existing := r.findByPrefixLocked(f.Prefix)
	if existing == nil && f.PrefixNatted != "" {
		existing = r.findByPrefixLocked(f.PrefixNatted)
	}
	if existing == nil {
		return r.addLocked(f)
	}

	if err := f.Encode(r.fps); err != nil {
		return err
	}
	if err := f.Announce(r.w); err != nil {
		return err
	}
	if err := existing.Withdraw(r.w); err != nil {
		return err
	}

	for i, fl := range r.flows {
		if fl == existing {
			r.flows[i] = f
			break
		}
	}
	return nil
}
