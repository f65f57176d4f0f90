package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/upa-network/flowchaind/internal/flowerr"
	"github.com/upa-network/flowchaind/internal/topology"
)

const sampleCatalog = `{
  "fp1": {
    "community": "65000:100",
    "neighbor": "10.0.0.1",
    "function": [
      {"name": "fp1-fn1", "rd-top": "65000:1001", "rd-bot": "65000:1002", "mark-top": 10, "mark-bottom": 11, "cgn": false},
      {"name": "fp1-fn2", "rd-top": "65000:1003", "rd-bot": "65000:1004", "mark-top": 12, "mark-bottom": 13, "cgn": false},
      {"name": "fp1-cgn", "rd-top": "65000:1005", "rd-bot": "65000:1006", "mark-top": 14, "mark-bottom": 15, "cgn": true}
    ],
    "inter-fp-rd": {
      "global": {"fp2": "65000:2001"},
      "private": {"fp2": "65000:2002"}
    },
    "user-vrf-rd": {"fp1-private": "65000:3001"}
  },
  "fp2": {
    "community": "65000:200",
    "neighbor": "10.0.0.2",
    "function": [
      {"name": "fp2-fn1", "rd-top": "65000:4001", "rd-bot": "65000:4002", "mark-top": 20, "mark-bottom": 21, "cgn": false}
    ],
    "inter-fp-rd": {
      "global": {"fp1": "65000:2001"},
      "private": {"fp1": "65000:2002"}
    },
    "user-vrf-rd": {}
  }
}`

func TestLoadFromBytes(t *testing.T) {
	fps, err := LoadFromBytes([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("LoadFromBytes() error: %v", err)
	}

	if len(fps.Pools()) != 2 {
		t.Fatalf("got %d pools, want 2", len(fps.Pools()))
	}

	fn := fps.FindFunctionByName("fp1-fn1")
	if fn == nil {
		t.Fatal("fp1-fn1 not found")
	}
	if fn.RDTop != "65000:1001" || fn.RDBot != "65000:1002" {
		t.Errorf("fp1-fn1 RDs = (%s,%s), want (65000:1001,65000:1002)", fn.RDTop, fn.RDBot)
	}
	if fn.MarkTop != 10 || fn.MarkBot != 11 {
		t.Errorf("fp1-fn1 marks = (%d,%d), want (10,11)", fn.MarkTop, fn.MarkBot)
	}

	cgnFn := fps.FindFunctionByName("fp1-cgn")
	if cgnFn == nil || !cgnFn.CGN {
		t.Error("fp1-cgn should be a CGN function")
	}

	rd, ok := fps.FindRDOfUserVRF("fp1-private")
	if !ok || rd != "65000:3001" {
		t.Errorf("FindRDOfUserVRF(fp1-private) = (%q,%v), want (65000:3001,true)", rd, ok)
	}

	fp1 := fps.FindFPByName("fp1-fn1")
	fp2 := fps.FindFPByName("fp2-fn1")
	if fp1 == nil || fp2 == nil {
		t.Fatal("expected to resolve both pools by function name")
	}

	interRd, ok := fps.FindInterFPRd(fp1, fp2, topology.Global)
	if !ok || interRd != "65000:2001" {
		t.Errorf("FindInterFPRd(fp1,fp2,global) = (%q,%v), want (65000:2001,true)", interRd, ok)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0644); err != nil {
		t.Fatal(err)
	}

	fps, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if len(fps.Pools()) != 2 {
		t.Errorf("got %d pools, want 2", len(fps.Pools()))
	}
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/catalog.json")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromBytesInvalidJSON(t *testing.T) {
	_, err := LoadFromBytes([]byte("{{{{invalid"))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadFromBytesDuplicateFunctionAcrossPools(t *testing.T) {
	catalog := `{
      "fp1": {
        "community": "c1", "neighbor": "n1",
        "function": [{"name": "shared", "rd-top": "t1", "rd-bot": "b1", "mark-top": 1, "mark-bottom": 2, "cgn": false}],
        "inter-fp-rd": {"global": {}, "private": {}},
        "user-vrf-rd": {}
      },
      "fp2": {
        "community": "c2", "neighbor": "n2",
        "function": [{"name": "shared", "rd-top": "t2", "rd-bot": "b2", "mark-top": 3, "mark-bottom": 4, "cgn": false}],
        "inter-fp-rd": {"global": {}, "private": {}},
        "user-vrf-rd": {}
      }
    }`

	_, err := LoadFromBytes([]byte(catalog))
	if err == nil || !flowerr.Is(err, flowerr.DuplicateCatalogEntry) {
		t.Errorf("expected DuplicateCatalogEntry for cross-pool duplicate function, got %v", err)
	}
}

func TestLoadFromBytesInterFPRdToAbsentPeerAccepted(t *testing.T) {
	catalog := `{
      "fp1": {
        "community": "c1", "neighbor": "n1",
        "function": [],
        "inter-fp-rd": {"global": {"fp2": "r1"}, "private": {}},
        "user-vrf-rd": {}
      }
    }`
	_, err := LoadFromBytes([]byte(catalog))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
