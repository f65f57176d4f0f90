// Package topology holds the static catalog of Function Pools, the
// Functions they host, and the Route Distinguishers that bound the VRFs on
// either side of each Function. It is built once at startup from the JSON
// catalog (see internal/config) and is never mutated afterwards; the RIB is
// the only mutable state in the process.
package topology

import (
	"fmt"

	"github.com/upa-network/flowchaind/internal/flowerr"
)

// Slice selects which inter-FP RD table carries traffic between two pools.
// Pre-NAT traffic uses Private; post-NAT traffic uses Global.
type Slice string

const (
	Global  Slice = "global"
	Private Slice = "private"
)

// Function is a single network service (firewall, DPI, CGN, ...) bounded by
// the RDs of the VRFs on its top (ingress-facing) and bottom (egress-facing)
// sides.
type Function struct {
	Name    string
	RDTop   string
	RDBot   string
	MarkTop int
	MarkBot int
	CGN     bool

	fp *FunctionPool // set once, at FunctionPool.AddFunction; never reassigned
}

// Pool returns the FunctionPool this Function was inserted into, or nil if
// it has not been inserted yet.
func (f *Function) Pool() *FunctionPool {
	return f.fp
}

// FunctionPool is a named collection of Functions sharing a BGP peer and
// community.
type FunctionPool struct {
	Name      string
	Community string
	Neighbor  string

	functions map[string]*Function
	interFPRd map[Slice]map[string]string // slice -> peer FP name -> rd
	userVRFRd map[string]string           // user VRF name -> rd
}

// NewFunctionPool creates an empty FunctionPool.
func NewFunctionPool(name, community, neighbor string) *FunctionPool {
	return &FunctionPool{
		Name:      name,
		Community: community,
		Neighbor:  neighbor,
		functions: make(map[string]*Function),
		interFPRd: map[Slice]map[string]string{
			Global:  make(map[string]string),
			Private: make(map[string]string),
		},
		userVRFRd: make(map[string]string),
	}
}

// AddFunction inserts fn into the pool, binding its back-reference. It
// fails with a DuplicateCatalogEntry error if a Function with the same name
// is already present in this pool, or if fn is already bound to another
// pool.
func (p *FunctionPool) AddFunction(fn *Function) error {
	if _, exists := p.functions[fn.Name]; exists {
		return flowerr.New(flowerr.DuplicateCatalogEntry,
			fmt.Sprintf("duplicate function %q in pool %q", fn.Name, p.Name))
	}
	if fn.fp != nil {
		return flowerr.New(flowerr.DuplicateCatalogEntry,
			fmt.Sprintf("function %q already belongs to pool %q", fn.Name, fn.fp.Name))
	}
	fn.fp = p
	p.functions[fn.Name] = fn
	return nil
}

// FindFunction looks up a Function by name within this pool only.
func (p *FunctionPool) FindFunction(name string) *Function {
	return p.functions[name]
}

// Functions returns the pool's Functions keyed by name. Callers must not
// mutate the returned map.
func (p *FunctionPool) Functions() map[string]*Function {
	return p.functions
}

// AddInterFPRd registers the RD used for inter-FP transit to peerName on
// the given slice. It fails with a DuplicateCatalogEntry error on collision.
func (p *FunctionPool) AddInterFPRd(slice Slice, peerName, rd string) error {
	table := p.interFPRd[slice]
	if _, exists := table[peerName]; exists {
		return flowerr.New(flowerr.DuplicateCatalogEntry,
			fmt.Sprintf("duplicate inter-fp-rd %q for peer %q (%s) in pool %q", rd, peerName, slice, p.Name))
	}
	table[peerName] = rd
	return nil
}

// AddUserVRFRd registers the RD of a user VRF attached to this pool. Per
// the original implementation's documented behaviour, a repeated call for
// the same VRF name overwrites the earlier RD (last write wins).
func (p *FunctionPool) AddUserVRFRd(vrfName, rd string) {
	p.userVRFRd[vrfName] = rd
}

// FunctionPools is the ordered collection of all FunctionPool in the
// catalog, plus the indexes used to resolve names during flow compilation.
type FunctionPools struct {
	pools   []*FunctionPool
	fnIndex map[string]*Function // flat name -> Function, built once at load
}

// NewFunctionPools builds the FunctionPools wrapper from pools, precomputing
// the flat Function-name index. Chain resolution in the flow compiler
// searches by bare Function name across all pools, so a Function name that
// collides across two different pools is rejected here — catalog loading
// must reject duplicates across pools, not just within one, even though
// FunctionPool.AddFunction only guards within a single pool.
func NewFunctionPools(pools []*FunctionPool) (*FunctionPools, error) {
	fps := &FunctionPools{
		pools:   pools,
		fnIndex: make(map[string]*Function),
	}

	for _, p := range pools {
		for name, fn := range p.functions {
			if _, exists := fps.fnIndex[name]; exists {
				return nil, flowerr.New(flowerr.DuplicateCatalogEntry,
					fmt.Sprintf("function %q is defined in more than one pool", name))
			}
			fps.fnIndex[name] = fn
		}
	}

	return fps, nil
}

// Pools returns the ordered list of pools in the catalog.
func (fps *FunctionPools) Pools() []*FunctionPool {
	return fps.pools
}

// FindRDOfUserVRF returns the RD of vrfName across all pools, and whether
// it was found.
func (fps *FunctionPools) FindRDOfUserVRF(vrfName string) (string, bool) {
	for _, p := range fps.pools {
		if rd, ok := p.userVRFRd[vrfName]; ok {
			return rd, true
		}
	}
	return "", false
}

// FindFPByName returns the pool owning a user VRF or Function named name.
//
// It never matches on a pool's own Name field — this mirrors an observed
// gap in the original implementation (see SPEC_FULL.md §6): callers that
// expect a bare pool-name lookup to succeed should not rely on this method.
func (fps *FunctionPools) FindFPByName(name string) *FunctionPool {
	for _, p := range fps.pools {
		if _, ok := p.userVRFRd[name]; ok {
			return p
		}
	}
	for _, p := range fps.pools {
		if _, ok := p.functions[name]; ok {
			return p
		}
	}
	return nil
}

// FindFunctionByName searches every pool for a Function named fnname.
func (fps *FunctionPools) FindFunctionByName(fnname string) *Function {
	return fps.fnIndex[fnname]
}

// FindInterFPRd returns the RD used for inter-FP transit from fpFrom to
// fpTo on the given slice, and whether it was found.
func (fps *FunctionPools) FindInterFPRd(fpFrom, fpTo *FunctionPool, slice Slice) (string, bool) {
	if fpFrom == nil || fpTo == nil {
		return "", false
	}
	rd, ok := fpFrom.interFPRd[slice][fpTo.Name]
	return rd, ok
}
