package metastore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func tempStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newMeta(id string, total int) *FileMeta {
	return &FileMeta{
		FileID:       id,
		FileName:     id + ".bin",
		TotalChunks:  total,
		Plan:         []string{"a", "b", "c"}[:total],
		Assigned:     map[int]string{},
		Uploaded:     map[int]string{},
		State:        StateRegistered,
		RegisteredAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := tempStore(t)
	if err := s.CreateFile(newMeta("f1", 3)); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := s.CreateFile(newMeta("f1", 2)); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	meta, err := s.GetFileMeta("f1")
	if err != nil {
		t.Fatalf("GetFileMeta: %v", err)
	}
	if meta.TotalChunks != 3 || meta.State != StateRegistered || len(meta.Plan) != 3 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if meta.Assigned == nil || meta.Uploaded == nil {
		t.Fatal("maps must be non-nil after decode")
	}

	if _, err := s.GetFileMeta("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCommitsAndAborts(t *testing.T) {
	s := tempStore(t)
	s.CreateFile(newMeta("f1", 3))

	out, err := s.Update("f1", func(m *FileMeta) error {
		m.Assigned[2] = "c"
		m.Uploaded[2] = "abc"
		m.State = StateUploading
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if out.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}

	boom := errors.New("boom")
	if _, err := s.Update("f1", func(m *FileMeta) error {
		m.State = StateFailed
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	meta, _ := s.GetFileMeta("f1")
	if meta.State != StateUploading || meta.Assigned[2] != "c" || meta.Uploaded[2] != "abc" {
		t.Fatalf("unexpected meta after update %+v", meta)
	}

	if _, err := s.Update("missing", func(*FileMeta) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetireIsIdempotent(t *testing.T) {
	s := tempStore(t)
	s.CreateFile(newMeta("f1", 1))

	if err := s.Retire("f1"); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if err := s.Retire("f1"); err != nil {
		t.Fatalf("second Retire: %v", err)
	}
	if err := s.Retire("never-existed"); err != nil {
		t.Fatalf("Retire unknown: %v", err)
	}

	if _, err := s.GetFileMeta("f1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after retire, got %v", err)
	}
	rf, err := s.Retired("f1")
	if err != nil {
		t.Fatalf("Retired: %v", err)
	}
	if rf.FileName != "f1.bin" {
		t.Fatalf("unexpected retired record %+v", rf)
	}

	// Id слитого файла нельзя зарегистрировать заново
	if err := s.CreateFile(newMeta("f1", 1)); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists for retired id, got %v", err)
	}
}

func TestListSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	s.CreateFile(newMeta("f1", 2))
	s.CreateFile(newMeta("f2", 3))
	s.Update("f2", func(m *FileMeta) error {
		m.Assigned[0] = "a"
		m.PlanCursor = 1
		return nil
	})
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	files, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	meta, _ := s.GetFileMeta("f2")
	if meta.Assigned[0] != "a" || meta.PlanCursor != 1 {
		t.Fatalf("state lost across reopen: %+v", meta)
	}
}

func TestMissingAndClone(t *testing.T) {
	m := newMeta("f", 3)
	m.Uploaded[0] = ""
	m.Uploaded[2] = ""

	missing := m.Missing()
	if len(missing) != 1 || missing[0] != 1 {
		t.Fatalf("Missing = %v, want [1]", missing)
	}
	if idx := m.UploadedIndexes(); len(idx) != 2 || idx[0] != 0 || idx[1] != 2 {
		t.Fatalf("UploadedIndexes = %v", idx)
	}

	c := m.Clone()
	c.Uploaded[1] = ""
	c.Plan[0] = "z"
	if len(m.Missing()) != 1 || m.Plan[0] != "a" {
		t.Fatal("clone shares state with the original")
	}
}
