package evalstore

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "eval.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndReadEpisode(t *testing.T) {
	s := tempStore(t)
	ep := Episode{
		EpisodeID:     "ep-1",
		FileID:        "file-1",
		Policy:        "greedy",
		Slots:         2,
		MeanDelayMs:   3.5,
		MeanImbalance: 0.25,
		MeanReward:    -3.75,
		CreatedAt:     time.Now(),
	}
	samples := []Sample{
		{Slot: 0, Decision: 1, DelayMs: 3, Imbalance: 0.5, Reward: -3.5},
		{Slot: 1, Decision: 0, DelayMs: 4, Imbalance: 0, Reward: -4},
	}
	if err := s.RecordEpisode(ep, samples); err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}

	got, err := s.GetEpisode("ep-1")
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.FileID != "file-1" || got.Policy != "greedy" || got.Slots != 2 || got.MeanReward != -3.75 {
		t.Fatalf("unexpected episode %+v", got)
	}

	back, err := s.Samples("ep-1")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(back) != 2 || back[1].Decision != 0 || back[1].DelayMs != 4 {
		t.Fatalf("unexpected samples %+v", back)
	}
}

func TestInfiniteValuesStoredAsNull(t *testing.T) {
	s := tempStore(t)
	ep := Episode{EpisodeID: "ep-inf", Policy: "random", Slots: 1, MeanDelayMs: math.Inf(1), MeanReward: math.Inf(-1), CreatedAt: time.Now()}
	if err := s.RecordEpisode(ep, []Sample{{Slot: 0, DelayMs: math.Inf(1)}}); err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}
	got, err := s.GetEpisode("ep-inf")
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if !math.IsNaN(got.MeanDelayMs) || !math.IsNaN(got.MeanReward) {
		t.Fatalf("expected NaN for non-finite values, got %+v", got)
	}
	if got.FileID != "" {
		t.Fatalf("expected empty file id, got %q", got.FileID)
	}
}

func TestDuplicateEpisodeRollsBack(t *testing.T) {
	s := tempStore(t)
	ep := Episode{EpisodeID: "dup", Policy: "round-robin", Slots: 1, CreatedAt: time.Now()}
	if err := s.RecordEpisode(ep, []Sample{{Slot: 0}}); err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}
	if err := s.RecordEpisode(ep, []Sample{{Slot: 0}, {Slot: 1}}); err == nil {
		t.Fatal("expected error on duplicate episode id")
	}
	back, _ := s.Samples("dup")
	if len(back) != 1 {
		t.Fatalf("expected rollback to keep 1 sample, got %d", len(back))
	}
}

func TestPolicySummary(t *testing.T) {
	s := tempStore(t)
	now := time.Now()
	s.RecordEpisode(Episode{EpisodeID: "a", Policy: "greedy", Slots: 1, MeanReward: -2, CreatedAt: now}, nil)
	s.RecordEpisode(Episode{EpisodeID: "b", Policy: "greedy", Slots: 1, MeanReward: -4, CreatedAt: now}, nil)
	s.RecordEpisode(Episode{EpisodeID: "c", Policy: "random", Slots: 1, MeanReward: -10, CreatedAt: now}, nil)

	sum, err := s.PolicySummary()
	if err != nil {
		t.Fatalf("PolicySummary: %v", err)
	}
	if sum["greedy"] != -3 || sum["random"] != -10 {
		t.Fatalf("unexpected summary %v", sum)
	}
}

func TestGetEpisodeBadTimestamp(t *testing.T) {
	s := tempStore(t)
	if _, err := s.db.Exec(
		`INSERT INTO episodes (episode_id, policy, slots, created_at) VALUES ('bad', 'greedy', 1, 'yesterday')`,
	); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.GetEpisode("bad"); err == nil {
		t.Fatal("expected error for malformed created_at")
	}
}
