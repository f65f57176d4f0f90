package rib

import (
	"fmt"
	"strings"
	"testing"

	"github.com/upa-network/flowchaind/internal/flow"
	"github.com/upa-network/flowchaind/internal/flowerr"
	"github.com/upa-network/flowchaind/internal/topology"
)

type fakeSpeaker struct {
	lines []string
}

func (f *fakeSpeaker) Write(line string) error {
	f.lines = append(f.lines, line)
	return nil
}

// flakySpeaker behaves like fakeSpeaker until fail is set, after which every
// write errors, simulating an exabgp channel going away mid-announce.
type flakySpeaker struct {
	lines []string
	fail  bool
}

func (f *flakySpeaker) Write(line string) error {
	if f.fail {
		return errSpeakerDown
	}
	f.lines = append(f.lines, line)
	return nil
}

var errSpeakerDown = fmt.Errorf("speaker channel closed")

func buildTopology(t *testing.T) *topology.FunctionPools {
	t.Helper()

	poolA := topology.NewFunctionPool("fpA", "65000:100", "10.1.0.1")
	if err := poolA.AddFunction(&topology.Function{
		Name: "fnA1", RDTop: "65000:1001", RDBot: "65000:1002", MarkTop: 10, MarkBot: 11,
	}); err != nil {
		t.Fatal(err)
	}
	poolA.AddUserVRFRd("vrfA", "65000:1")

	fps, err := topology.NewFunctionPools([]*topology.FunctionPool{poolA})
	if err != nil {
		t.Fatal(err)
	}
	return fps
}

func TestAddAnnouncesAndInstalls(t *testing.T) {
	fps := buildTopology(t)
	sp := &fakeSpeaker{}
	r := New(fps, sp)

	f := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	if err := r.Add(f); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("RIB length = %d, want 1", r.Len())
	}
	if len(sp.lines) == 0 {
		t.Error("expected routes to be announced to the speaker")
	}
	for _, line := range sp.lines {
		if !strings.Contains(line, "announce") {
			t.Errorf("Add() should announce, got line: %s", line)
		}
	}
}

func TestAddRejectsDuplicatePrefix(t *testing.T) {
	fps := buildTopology(t)
	r := New(fps, &fakeSpeaker{})

	f1 := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	if err := r.Add(f1); err != nil {
		t.Fatal(err)
	}

	f2 := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	err := r.Add(f2)
	if err == nil || !flowerr.Is(err, flowerr.DuplicatePrefix) {
		t.Fatalf("expected DuplicatePrefix, got %v", err)
	}
}

func TestDeleteWithdrawsAndRemoves(t *testing.T) {
	fps := buildTopology(t)
	sp := &fakeSpeaker{}
	r := New(fps, sp)

	f := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	if err := r.Add(f); err != nil {
		t.Fatal(err)
	}

	sp.lines = nil
	if err := r.Delete(f); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("RIB length = %d, want 0 after delete", r.Len())
	}
	for _, line := range sp.lines {
		if !strings.Contains(line, "withdraw") {
			t.Errorf("Delete() should withdraw, got line: %s", line)
		}
	}
}

func TestOverrideReplacesExistingFlow(t *testing.T) {
	fps := buildTopology(t)
	sp := &fakeSpeaker{}
	r := New(fps, sp)

	f1 := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	if err := r.Add(f1); err != nil {
		t.Fatal(err)
	}

	f2 := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	if err := r.Override(f2); err != nil {
		t.Fatalf("Override() error: %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("RIB length = %d, want 1 after override", r.Len())
	}
	if r.FindByPrefix("10.0.0.0/24") != f2 {
		t.Error("Override() should install the new flow in place of the old one")
	}
}

func TestOverridePreservesExistingFlowOnAnnounceFailure(t *testing.T) {
	fps := buildTopology(t)
	sp := &flakySpeaker{}
	r := New(fps, sp)

	f1 := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	if err := r.Add(f1); err != nil {
		t.Fatal(err)
	}

	sp.fail = true
	f2 := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "")
	if err := r.Override(f2); err == nil {
		t.Fatal("expected Override() to fail when the speaker channel is down")
	}

	if r.Len() != 1 {
		t.Fatalf("RIB length = %d, want 1 (existing flow must survive a failed override)", r.Len())
	}
	if r.FindByPrefix("10.0.0.0/24") != f1 {
		t.Error("existing flow should remain installed when the replacement fails to announce")
	}
}

func TestFindByPrefixMatchesNattedPrefix(t *testing.T) {
	fps := buildTopology(t)
	r := New(fps, &fakeSpeaker{})

	f := flow.New("vrfA", []string{"fnA1"}, "10.0.0.0/24", "192.0.2.0/24")
	if err := r.Add(f); err != nil {
		t.Fatal(err)
	}

	if r.FindByPrefix("192.0.2.0/24") != f {
		t.Error("FindByPrefix should match on the NATed prefix too")
	}
}
