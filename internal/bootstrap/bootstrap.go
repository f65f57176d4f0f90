// Package bootstrap generates the one-shot inter-FP TOS (DSCP) flow routes
// announced once at startup, before the RIB accepts any user flow. These
// routes let two Function Pools reach each other's mark-carrying transit
// traffic regardless of whether a user flow has installed a matching route
// yet.
package bootstrap

import (
	"fmt"
	"io"
	"sort"

	"github.com/upa-network/flowchaind/internal/topology"
)

const (
	routeFmt4 = "neighbor %s announce flow route { rd %s; match { destination 0.0.0.0/0; dscp %d; } then {community [%s]; extended-community target:%s; redirect %s;} }"
	routeFmt6 = "neighbor %s announce flow route { rd %s; match { destination 0::0/0; dscp %d; } then {community [%s]; extended-community target:%s; redirect %s;} }"
)

// Generate builds the full set of TOS flow routes for every ordered pair of
// distinct pools in fps, on both the global and private slices, for every
// Function each pool hosts. Output order is egress routes first, then
// ingress routes, matching the order the routes must reach the speaker in.
func Generate(fps *topology.FunctionPools) []string {
	var routes []string

	for _, slice := range []topology.Slice{topology.Global, topology.Private} {
		for _, fp := range fps.Pools() {
			for _, fn := range sortedFunctions(fp) {
				for _, efp := range fps.Pools() {
					if efp == fp {
						continue
					}
					rd, ok := fps.FindInterFPRd(efp, fp, slice)
					if !ok {
						continue
					}

					routes = append(routes,
						fmt.Sprintf(routeFmt4, fp.Neighbor, rd, fn.MarkBot, fp.Community, rd, fn.RDBot),
						fmt.Sprintf(routeFmt6, fp.Neighbor, rd, fn.MarkBot, fp.Community, rd, fn.RDBot),
					)
				}
			}
		}
	}

	for _, slice := range []topology.Slice{topology.Global, topology.Private} {
		for _, fp := range fps.Pools() {
			for _, fn := range sortedFunctions(fp) {
				for _, efp := range fps.Pools() {
					if efp == fp {
						continue
					}
					rd, ok := fps.FindInterFPRd(efp, fp, slice)
					if !ok {
						continue
					}

					routes = append(routes,
						fmt.Sprintf(routeFmt4, fp.Neighbor, rd, fn.MarkTop, fp.Community, rd, fn.RDTop),
						fmt.Sprintf(routeFmt6, fp.Neighbor, rd, fn.MarkTop, fp.Community, rd, fn.RDTop),
					)
				}
			}
		}
	}

	return routes
}

// Announce generates and writes the bootstrap TOS routes to w. It is meant
// to run exactly once, at process startup, before the API server starts
// accepting flow requests.
func Announce(fps *topology.FunctionPools, w io.Writer) error {
	for _, r := range Generate(fps) {
		if _, err := fmt.Fprintf(w, "%s\n", r); err != nil {
			return fmt.Errorf("writing bootstrap TOS route: %w", err)
		}
	}
	return nil
}

// sortedFunctions returns fp's Functions in a deterministic order so
// Generate's output is stable across runs against an unchanged catalog.
func sortedFunctions(fp *topology.FunctionPool) []*topology.Function {
	fns := fp.Functions()
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*topology.Function, 0, len(names))
	for _, name := range names {
		out = append(out, fns[name])
	}
	return out
}
