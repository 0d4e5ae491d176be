package assignment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	known := map[string]bool{"n1": true, "n2": true}
	tbl := New("f", []string{"n1", "n2", "n1"})

	if err := tbl.Validate(3, known); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := tbl.Validate(4, known); !errors.Is(err, ErrLength) {
		t.Fatalf("expected ErrLength, got %v", err)
	}
	if err := tbl.Validate(3, map[string]bool{"n1": true}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}

	tbl.Version = 2
	if err := tbl.Validate(3, nil); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	tbl := New("f", []string{"a", "b"})
	tbl.Policy = "greedy"
	if err := tbl.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Policy != "greedy" || len(got.Nodes) != 2 || got.Nodes[1] != "b" {
		t.Fatalf("unexpected table %+v", got)
	}
}

func TestLoadRejectsOtherVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	os.WriteFile(path, []byte(`{"version": 7, "nodes": ["a"]}`), 0644)
	if _, err := Load(path); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestStaticPlannerPrefix(t *testing.T) {
	p := &StaticPlanner{Table: New("", []string{"a", "b", "c", "a"})}

	got, err := p.Plan(context.Background(), "file-1", 3)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got.FileID != "file-1" || len(got.Nodes) != 3 || got.Nodes[2] != "c" {
		t.Fatalf("unexpected plan %+v", got)
	}

	// Изменение результата не затрагивает исходную таблицу
	got.Nodes[0] = "z"
	if p.Table.Nodes[0] != "a" {
		t.Fatal("plan shares storage with the deployment table")
	}

	if _, err := p.Plan(context.Background(), "file-2", 5); !errors.Is(err, ErrLength) {
		t.Fatalf("expected ErrLength, got %v", err)
	}
}
