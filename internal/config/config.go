// Package config loads the declarative JSON catalog of Function Pools into
// the topology model. It is the only component that touches the catalog
// file; everything downstream works with *topology.FunctionPools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/upa-network/flowchaind/internal/topology"
)

// functionJSON mirrors a single entry of a pool's "function" array.
type functionJSON struct {
	Name    string `json:"name"`
	RDTop   string `json:"rd-top"`
	RDBot   string `json:"rd-bot"`
	MarkTop int    `json:"mark-top"`
	MarkBot int    `json:"mark-bottom"`
	CGN     bool   `json:"cgn"`
}

// interFPRdJSON mirrors the "inter-fp-rd" object of a pool.
type interFPRdJSON struct {
	Global  map[string]string `json:"global"`
	Private map[string]string `json:"private"`
}

// poolJSON mirrors one top-level value of the catalog, keyed by pool name.
type poolJSON struct {
	Community string            `json:"community"`
	Neighbor  string            `json:"neighbor"`
	Function  []functionJSON    `json:"function"`
	InterFPRd interFPRdJSON     `json:"inter-fp-rd"`
	UserVRFRd map[string]string `json:"user-vrf-rd"`
}

// catalogJSON is the full top-level object, keyed by pool name.
type catalogJSON map[string]poolJSON

// LoadFromFile reads and parses the JSON catalog at path, returning the
// fully built topology.
func LoadFromFile(path string) (*topology.FunctionPools, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses raw JSON catalog bytes into the topology. Kept
// separate from LoadFromFile so tests and any future fetch-over-the-wire
// path don't need a temp file.
func LoadFromBytes(data []byte) (*topology.FunctionPools, error) {
	var cat catalogJSON
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	// Sorted pool order makes error messages and /show output reproducible
	// across restarts with an unchanged catalog, despite Go's randomized
	// map iteration.
	names := make([]string, 0, len(cat))
	for name := range cat {
		names = append(names, name)
	}
	sort.Strings(names)

	var pools []*topology.FunctionPool
	for _, fpname := range names {
		v := cat[fpname]

		pool := topology.NewFunctionPool(fpname, v.Community, v.Neighbor)

		for _, f := range v.Function {
			fn := &topology.Function{
				Name:    f.Name,
				RDTop:   f.RDTop,
				RDBot:   f.RDBot,
				MarkTop: f.MarkTop,
				MarkBot: f.MarkBot,
				CGN:     f.CGN,
			}
			if err := pool.AddFunction(fn); err != nil {
				return nil, fmt.Errorf("loading pool %q: %w", fpname, err)
			}
		}

		for peerName, rd := range v.InterFPRd.Global {
			if err := pool.AddInterFPRd(topology.Global, peerName, rd); err != nil {
				return nil, fmt.Errorf("loading pool %q: %w", fpname, err)
			}
		}
		for peerName, rd := range v.InterFPRd.Private {
			if err := pool.AddInterFPRd(topology.Private, peerName, rd); err != nil {
				return nil, fmt.Errorf("loading pool %q: %w", fpname, err)
			}
		}

		for vrfName, rd := range v.UserVRFRd {
			pool.AddUserVRFRd(vrfName, rd)
		}

		pools = append(pools, pool)
	}

	fps, err := topology.NewFunctionPools(pools)
	if err != nil {
		return nil, fmt.Errorf("building topology: %w", err)
	}

	return fps, nil
}
