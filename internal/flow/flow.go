// Package flow compiles a service chain (a start VRF, an ordered list of
// Function names, a target prefix and an optional post-NAT prefix) into the
// exabgp flow route directives that install it, and serializes it for the
// REST show endpoints.
package flow

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/upa-network/flowchaind/internal/addr"
	"github.com/upa-network/flowchaind/internal/flowerr"
	"github.com/upa-network/flowchaind/internal/topology"
)

// routeFmtTransit is used for the routes that bring traffic to, and carry it
// between, each hop of the chain: it pins the route to a VRF via rd and
// re-targets it with an extended-community.
const routeFmtTransit = "neighbor %s UPDATE flow route { rd %s; match { %s %s; } then {community [%s]; extended-community target:%s; %s redirect %s;} }"

// routeFmtTerminal is used for the final routes that bring return traffic
// from every pool back to the top VRF of the last Function. It has no rd
// match and no extended-community retarget, since by this point the route
// only needs to reach a destination prefix.
const routeFmtTerminal = "neighbor %s UPDATE flow route { match { destination %s; } then {community [%s]; %s redirect %s;} }"

// Flow is one installed (or about-to-be-installed) service chain.
type Flow struct {
	Start        string
	Chain        []string
	Prefix       string
	PrefixNatted string

	EgressRoutes  []string
	IngressRoutes []string
}

// New builds a Flow. prefixNatted may be empty, meaning the chain carries no
// CGN boundary of its own prefix pair.
func New(start string, chain []string, prefix, prefixNatted string) *Flow {
	return &Flow{
		Start:        start,
		Chain:        append([]string(nil), chain...),
		Prefix:       prefix,
		PrefixNatted: prefixNatted,
	}
}

// Equal reports whether f and other describe the same chain and prefixes.
// The start VRF is intentionally excluded, mirroring the original
// implementation's equality check.
func (f *Flow) Equal(other *Flow) bool {
	if other == nil {
		return false
	}
	if len(f.Chain) != len(other.Chain) {
		return false
	}
	for i := range f.Chain {
		if f.Chain[i] != other.Chain[i] {
			return false
		}
	}
	return f.Prefix == other.Prefix && f.PrefixNatted == other.PrefixNatted
}

func (f *Flow) String() string {
	return fmt.Sprintf("<%s(%s):%s>", f.Prefix, f.PrefixNatted, strings.Join(f.Chain, " "))
}

// IsCGNIncluded reports whether any Function in the chain performs CGN.
func (f *Flow) IsCGNIncluded(fps *topology.FunctionPools) bool {
	for _, name := range f.Chain {
		fn := fps.FindFunctionByName(name)
		if fn == nil {
			return false
		}
		if fn.CGN {
			return true
		}
	}
	return false
}

// sliceFor maps the "have we crossed the CGN boundary yet" state to the
// inter-FP RD table it must be resolved against: pre-NAT hops stay on the
// private slice, post-NAT hops move to the global slice.
func sliceFor(private bool) topology.Slice {
	if private {
		return topology.Private
	}
	return topology.Global
}

// Validate checks the chain against the topology:
//  1. the prefix (and NATed prefix, if present) are well-formed,
//  2. the prefix and NATed prefix share an address family,
//  3. the start VRF has a known RD,
//  4. every Function in the chain exists,
//  5. every inter-FP hop has an RD on the slice it falls on,
//  6. the chain contains no repeated Function name.
func (f *Flow) Validate(fps *topology.FunctionPools) error {
	if len(f.Chain) == 0 {
		return flowerr.New(flowerr.UnknownFunction, "chain must name at least one function")
	}

	if err := addr.ValidatePrefix(f.Prefix); err != nil {
		return err
	}
	if f.PrefixNatted != "" {
		if err := addr.ValidatePrefix(f.PrefixNatted); err != nil {
			return err
		}

		before := addr.IPVersion(strings.SplitN(f.Prefix, "/", 2)[0])
		after := addr.IPVersion(strings.SplitN(f.PrefixNatted, "/", 2)[0])
		if before != after {
			return flowerr.New(flowerr.AddressFamilyMismatch,
				fmt.Sprintf("address family mismatch between %q and %q", f.Prefix, f.PrefixNatted))
		}
	}

	if _, ok := fps.FindRDOfUserVRF(f.Start); !ok {
		return flowerr.New(flowerr.UnknownUserVRF, fmt.Sprintf("unknown user vrf %q", f.Start))
	}

	for _, name := range f.Chain {
		if fps.FindFunctionByName(name) == nil {
			return flowerr.New(flowerr.UnknownFunction, fmt.Sprintf("unknown function %q", name))
		}
	}

	cgnExists := f.IsCGNIncluded(fps)
	interFPPrivate := true

	for x := 0; x < len(f.Chain)-1; x++ {
		prevFn := fps.FindFunctionByName(f.Chain[x])
		nextFn := fps.FindFunctionByName(f.Chain[x+1])

		if prevFn == nil {
			return flowerr.New(flowerr.UnknownFunction, fmt.Sprintf("unknown function %q", f.Chain[x]))
		}
		if nextFn == nil {
			return flowerr.New(flowerr.UnknownFunction, fmt.Sprintf("unknown function %q", f.Chain[x+1]))
		}

		if !cgnExists {
			interFPPrivate = false
		} else if prevFn.CGN {
			interFPPrivate = false
		}

		if prevFn.Pool() != nextFn.Pool() {
			if _, ok := fps.FindInterFPRd(prevFn.Pool(), nextFn.Pool(), sliceFor(interFPPrivate)); !ok {
				return flowerr.New(flowerr.MissingInterFPRd,
					fmt.Sprintf("no inter-fp-rd from %s to %s", prevFn.Pool().Name, nextFn.Pool().Name))
			}
			if _, ok := fps.FindInterFPRd(nextFn.Pool(), prevFn.Pool(), sliceFor(interFPPrivate)); !ok {
				return flowerr.New(flowerr.MissingInterFPRd,
					fmt.Sprintf("no inter-fp-rd from %s to %s", nextFn.Pool().Name, prevFn.Pool().Name))
			}
		}
	}

	seen := make(map[string]bool, len(f.Chain))
	for _, name := range f.Chain {
		if seen[name] {
			return flowerr.New(flowerr.LoopInChain, fmt.Sprintf("loop detected in chain %s", strings.Join(f.Chain, " ")))
		}
		seen[name] = true
	}

	return nil
}

// Encode compiles the chain into egress and ingress exabgp flow route
// directives, appending to EgressRoutes and IngressRoutes. Callers must call
// Validate first; Encode assumes the chain resolves cleanly against fps.
//
// Step 1 brings traffic from every pool to the bottom VRF of the first
// Function. Step 2 walks each hop of the chain. A chain containing a CGN
// Function uses the private RD slice until that Function has been passed and
// the global slice after it, switching the matched prefix to PrefixNatted at
// the same point; a chain without one uses the global slice throughout.
// Step 4 installs the return routes from every pool to the top VRF of the last Function.
func (f *Flow) Encode(fps *topology.FunctionPools) error {
	cgnExists := f.IsCGNIncluded(fps)

	userRD, ok := fps.FindRDOfUserVRF(f.Start)
	if !ok {
		return flowerr.New(flowerr.UnknownUserVRF, fmt.Sprintf("unknown user vrf %q", f.Start))
	}
	firstFP := fps.FindFPByName(f.Chain[0])
	if firstFP == nil {
		return flowerr.New(flowerr.UnknownFunction, fmt.Sprintf("no pool owns %q", f.Chain[0]))
	}
	headFn := fps.FindFunctionByName(f.Chain[0])
	if headFn == nil {
		return flowerr.New(flowerr.UnknownFunction, fmt.Sprintf("unknown function %q", f.Chain[0]))
	}

	for _, fp := range fps.Pools() {
		var mark, redirect string
		if fp == firstFP {
			redirect = headFn.RDBot
		} else {
			rd, ok := fps.FindInterFPRd(fp, headFn.Pool(), sliceFor(cgnExists))
			if !ok {
				return flowerr.New(flowerr.MissingInterFPRd,
					fmt.Sprintf("no inter-fp-rd from %s to %s", fp.Name, headFn.Pool().Name))
			}
			mark = fmt.Sprintf("mark %d;", headFn.MarkBot)
			redirect = rd
		}
		f.EgressRoutes = append(f.EgressRoutes, fmt.Sprintf(routeFmtTransit,
			fp.Neighbor, userRD, "source", f.Prefix, fp.Community, userRD, mark, redirect))
	}

	cgnPassed := false
	interFPPrivate := cgnExists

	for x := 0; x < len(f.Chain)-1; x++ {
		prevFn := fps.FindFunctionByName(f.Chain[x])
		nextFn := fps.FindFunctionByName(f.Chain[x+1])
		if prevFn == nil || nextFn == nil {
			return flowerr.New(flowerr.UnknownFunction, fmt.Sprintf("unknown function in chain %s", strings.Join(f.Chain, " ")))
		}

		if prevFn.CGN {
			cgnPassed = true
			interFPPrivate = false
		}

		markEgress, markIngress := "", ""
		redirectEgress := nextFn.RDBot
		redirectIngress := prevFn.RDTop

		if prevFn.Pool() != nextFn.Pool() {
			rd, ok := fps.FindInterFPRd(prevFn.Pool(), nextFn.Pool(), sliceFor(interFPPrivate))
			if !ok {
				return flowerr.New(flowerr.MissingInterFPRd,
					fmt.Sprintf("no inter-fp-rd from %s to %s", prevFn.Pool().Name, nextFn.Pool().Name))
			}
			markEgress = fmt.Sprintf("mark %d;", nextFn.MarkBot)
			redirectEgress = rd

			rd, ok = fps.FindInterFPRd(nextFn.Pool(), prevFn.Pool(), sliceFor(interFPPrivate))
			if !ok {
				return flowerr.New(flowerr.MissingInterFPRd,
					fmt.Sprintf("no inter-fp-rd from %s to %s", nextFn.Pool().Name, prevFn.Pool().Name))
			}
			markIngress = fmt.Sprintf("mark %d;", prevFn.MarkTop)
			redirectIngress = rd
		}

		prefix := f.Prefix
		if cgnPassed && f.PrefixNatted != "" {
			prefix = f.PrefixNatted
		}

		f.EgressRoutes = append(f.EgressRoutes, fmt.Sprintf(routeFmtTransit,
			prevFn.Pool().Neighbor, prevFn.RDTop, "source", prefix, prevFn.Pool().Community, prevFn.RDTop, markEgress, redirectEgress))
		f.IngressRoutes = append(f.IngressRoutes, fmt.Sprintf(routeFmtTransit,
			nextFn.Pool().Neighbor, nextFn.RDBot, "destination", prefix, nextFn.Pool().Community, nextFn.RDBot, markIngress, redirectIngress))
	}

	lastFn := fps.FindFunctionByName(f.Chain[len(f.Chain)-1])
	if lastFn == nil {
		return flowerr.New(flowerr.UnknownFunction, fmt.Sprintf("unknown function %q", f.Chain[len(f.Chain)-1]))
	}
	if lastFn.CGN {
		cgnPassed = true
		interFPPrivate = false
	}

	prefix := f.Prefix
	if cgnPassed && f.PrefixNatted != "" {
		prefix = f.PrefixNatted
	}

	for _, fp := range fps.Pools() {
		var mark, redirect string
		if lastFn.Pool() == fp {
			redirect = lastFn.RDTop
		} else {
			rd, ok := fps.FindInterFPRd(fp, lastFn.Pool(), sliceFor(interFPPrivate))
			if !ok {
				return flowerr.New(flowerr.MissingInterFPRd,
					fmt.Sprintf("no inter-fp-rd from %s to %s", fp.Name, lastFn.Pool().Name))
			}
			mark = fmt.Sprintf("mark %d;", lastFn.MarkTop)
			redirect = rd
		}
		f.IngressRoutes = append(f.IngressRoutes, fmt.Sprintf(routeFmtTerminal,
			fp.Neighbor, prefix, fp.Community, mark, redirect))
	}

	return nil
}

// Announce writes every egress then ingress route to w, substituting the
// "UPDATE" verb for "announce".
func (f *Flow) Announce(w io.Writer) error {
	return f.writeRoutes(w, "announce")
}

// Withdraw writes every egress then ingress route to w, substituting the
// "UPDATE" verb for "withdraw".
func (f *Flow) Withdraw(w io.Writer) error {
	return f.writeRoutes(w, "withdraw")
}

func (f *Flow) writeRoutes(w io.Writer, verb string) error {
	for _, r := range f.EgressRoutes {
		if _, err := fmt.Fprintf(w, "%s\n", strings.Replace(r, "UPDATE", verb, 1)); err != nil {
			return err
		}
	}
	for _, r := range f.IngressRoutes {
		if _, err := fmt.Fprintf(w, "%s\n", strings.Replace(r, "UPDATE", verb, 1)); err != nil {
			return err
		}
	}
	return nil
}

// Show renders a human-readable summary. extensive appends the compiled
// route directives; html wraps the result in a <pre> block for the browser
// show endpoint.
func (f *Flow) Show(extensive, html bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prefix %s\n", f.Prefix)
	fmt.Fprintf(&b, "    Natted Prefix: %s\n", f.PrefixNatted)
	fmt.Fprintf(&b, "    User VRF: %s\n", f.Start)
	fmt.Fprintf(&b, "    Chain: %s\n", strings.Join(f.Chain, " "))

	if extensive {
		b.WriteString("    ExaBGP Egress Routes:\n")
		b.WriteString(strings.Join(f.EgressRoutes, "\n"))
		b.WriteString("\n")
		b.WriteString("    ExaBGP Ingress Routes:\n")
		b.WriteString(strings.Join(f.IngressRoutes, "\n"))
		b.WriteString("\n")
	}

	out := b.String()
	if html {
		out = "<pre>" + out + "</pre>"
	}
	return out
}

// URL renders the /add path that would recreate this Flow.
func (f *Flow) URL() string {
	prefixParts := strings.SplitN(f.Prefix, "/", 2)
	prefixNatted, preflenNatted := "none", "none"
	if f.PrefixNatted != "" {
		parts := strings.SplitN(f.PrefixNatted, "/", 2)
		prefixNatted, preflenNatted = parts[0], parts[1]
	}
	return fmt.Sprintf("/add/%s/%s/%s/%s/%s/%s",
		prefixParts[0], prefixParts[1], prefixNatted, preflenNatted, f.Start, strings.Join(f.Chain, "_"))
}

type exaBGPJSON struct {
	EgressRoutes  []string `json:"egress_routes"`
	IngressRoutes []string `json:"ingress_routes"`
}

type flowJSON struct {
	Prefix       string     `json:"prefix"`
	PrefixNatted *string    `json:"prefix_natted"`
	Start        string     `json:"start"`
	Chain        []string   `json:"chain"`
	ExaBGP       exaBGPJSON `json:"exabgp"`
}

// MarshalJSON renders the Flow for the /show/flow/json endpoint.
func (f *Flow) MarshalJSON() ([]byte, error) {
	var natted *string
	if f.PrefixNatted != "" {
		natted = &f.PrefixNatted
	}
	return json.Marshal(flowJSON{
		Prefix:       f.Prefix,
		PrefixNatted: natted,
		Start:        f.Start,
		Chain:        f.Chain,
		ExaBGP: exaBGPJSON{
			EgressRoutes:  f.EgressRoutes,
			IngressRoutes: f.IngressRoutes,
		},
	})
}
