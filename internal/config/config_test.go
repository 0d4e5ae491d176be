package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.BandwidthHz != 20e6 || c.SignalPowerW != 1 || c.SNRFactor != 0.01 || c.ChunkSizeMb != 1 {
		t.Fatalf("unexpected channel defaults: %+v", c)
	}
	if c.Owners != 1 || len(c.DelayWeights) != 1 || c.DelayWeights[0] != 1 {
		t.Fatalf("unexpected owner defaults: %+v", c)
	}
	if c.Policy != "greedy" || c.Seed != 40 {
		t.Fatalf("unexpected policy defaults: %+v", c)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placement.json")
	body := `{"snr_factor": 10, "owners": 3, "delay_weights": [2], "policy": "random"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SNRFactor != 10 || c.Owners != 3 || c.Policy != "random" {
		t.Fatalf("explicit values lost: %+v", c)
	}
	if len(c.DelayWeights) != 3 || c.DelayWeights[0] != 2 || c.DelayWeights[2] != 1 {
		t.Fatalf("delay weights = %v", c.DelayWeights)
	}
	if p := c.Params(); p.BandwidthHz != 20e6 || p.SNRFactor != 10 {
		t.Fatalf("params = %+v", p)
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placement.json")
	os.WriteFile(path, []byte("{"), 0644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "12")
	t.Setenv("CFG_TEST_BAD", "x")
	t.Setenv("CFG_TEST_BOOL", "Yes")
	t.Setenv("CFG_TEST_DUR", "3s")

	if GetenvInt("CFG_TEST_INT", 1) != 12 || GetenvInt("CFG_TEST_BAD", 1) != 1 {
		t.Fatal("GetenvInt")
	}
	if !GetenvBool("CFG_TEST_BOOL") || GetenvBool("CFG_TEST_MISSING") {
		t.Fatal("GetenvBool")
	}
	if GetenvDuration("CFG_TEST_DUR", time.Second) != 3*time.Second {
		t.Fatal("GetenvDuration")
	}
	if Getenv("CFG_TEST_MISSING", "def") != "def" {
		t.Fatal("Getenv")
	}
}
