package action

import (
	"errors"
	"testing"
)

func TestDecodeExamples(t *testing.T) {
	cases := []struct {
		decision int
		want     int
	}{
		{0, 1},
		{1, 2},
		{2, 3},
	}
	for _, c := range cases {
		got, err := Decode(c.decision, 1, 3)
		if err != nil {
			t.Fatalf("Decode(%d): %v", c.decision, err)
		}
		if len(got) != 1 || got[0] != c.want {
			t.Fatalf("Decode(%d) = %v, want [%d]", c.decision, got, c.want)
		}
	}

	// Для owners=1 решение 5 вне диапазона [0,3)
	if _, err := Decode(5, 1, 3); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for 5 with 1 owner, got %v", err)
	}

	// Без проверки диапазона 5 mod 3 = 2 -> узел 3
	if d := (Space{Owners: 1, Nodes: 3}).Digits(5); len(d) != 1 || d[0] != 3 {
		t.Fatalf("Digits(5) = %v, want [3]", d)
	}

	// Для owners=2 цифры 5 = 2 + 1*3 -> [3, 2]
	got, err := Decode(5, 2, 3)
	if err != nil {
		t.Fatalf("Decode(5, 2, 3): %v", err)
	}
	if got[0] != 3 || got[1] != 2 {
		t.Fatalf("Decode(5, 2, 3) = %v, want [3 2]", got)
	}
}

func TestRoundTrip(t *testing.T) {
	for owners := 1; owners <= 4; owners++ {
		for nodes := 1; nodes <= 5; nodes++ {
			s := Space{Owners: owners, Nodes: nodes}
			size, ok := s.Size()
			if !ok {
				t.Fatalf("size of %d^%d overflowed", nodes, owners)
			}
			for d := 0; d < size; d++ {
				choices, err := s.Decode(d)
				if err != nil {
					t.Fatalf("Decode(%d) in %v: %v", d, s, err)
				}
				if len(choices) != owners {
					t.Fatalf("Decode(%d) returned %d choices, want %d", d, len(choices), owners)
				}
				for _, c := range choices {
					if c < 1 || c > nodes {
						t.Fatalf("Decode(%d) choice %d outside [1,%d]", d, c, nodes)
					}
				}
				back, err := s.Encode(choices)
				if err != nil {
					t.Fatalf("Encode(%v): %v", choices, err)
				}
				if back != d {
					t.Fatalf("round trip %d -> %v -> %d", d, choices, back)
				}
			}
		}
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	for owners := 1; owners <= 3; owners++ {
		for nodes := 1; nodes <= 4; nodes++ {
			s := Space{Owners: owners, Nodes: nodes}
			size, _ := s.Size()
			for _, d := range []int{-1, size, size + 7} {
				if _, err := s.Decode(d); !errors.Is(err, ErrInvalidDecision) {
					t.Fatalf("Decode(%d) in %v: expected ErrInvalidDecision, got %v", d, s, err)
				}
			}
		}
	}
}

func TestEncodeRejectsBadChoices(t *testing.T) {
	if _, err := Encode([]int{0}, 3); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for node 0, got %v", err)
	}
	if _, err := Encode([]int{4}, 3); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for node 4, got %v", err)
	}
	if _, err := (Space{Owners: 2, Nodes: 3}).Encode([]int{1}); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for wrong length, got %v", err)
	}
}

func TestSizeOverflow(t *testing.T) {
	if _, ok := (Space{Owners: 200, Nodes: 10}).Size(); ok {
		t.Fatal("expected overflow for 10^200")
	}
	if _, err := Decode(0, 200, 10); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision on overflow, got %v", err)
	}
}
