package netmodel

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testParams() Params {
	return Params{BandwidthHz: 20e6, SignalPowerW: 1, SNRFactor: 0.01, ChunkSizeMb: 1}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestLoadImbalance(t *testing.T) {
	cases := []struct {
		load []float64
		want float64
	}{
		{[]float64{2, 2, 2}, 0},
		{[]float64{5, 5}, 0},
		{[]float64{1, 2, 3}, 2.0 / 3.0},
		{[]float64{0, 0, 3}, 4.0 / 3.0},
		{nil, 0},
	}
	for _, c := range cases {
		if got := LoadImbalance(c.load); !almostEqual(got, c.want) {
			t.Errorf("LoadImbalance(%v) = %v, want %v", c.load, got, c.want)
		}
	}
}

func TestNoisePower(t *testing.T) {
	m, err := NewModel(testParams(), 1, 3)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	dBm := -174 + 10*math.Log10(20e6)
	want := math.Pow(10, dBm/10-3) * 0.01
	if !almostEqual(m.NoisePower(), want) {
		t.Fatalf("noise = %v, want %v", m.NoisePower(), want)
	}
}

func TestRateAndDelay(t *testing.T) {
	p := testParams()
	m, err := NewModel(p, 2, 3)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	gain := mat.NewDense(2, 3, []float64{
		1e-10, 2e-10, 0,
		3e-10, 1e-11, 5e-10,
	})
	rate, err := m.TransmissionRate(gain)
	if err != nil {
		t.Fatalf("TransmissionRate: %v", err)
	}

	want01 := p.BandwidthHz / 2 * math.Log2(1+p.SignalPowerW*2e-10/m.NoisePower())
	if !almostEqual(rate.At(0, 1), want01) {
		t.Fatalf("rate[0][1] = %v, want %v", rate.At(0, 1), want01)
	}
	if rate.At(0, 2) != 0 {
		t.Fatalf("zero gain should give zero rate, got %v", rate.At(0, 2))
	}

	delay, err := m.TransmissionDelay(rate, []int{2, 3})
	if err != nil {
		t.Fatalf("TransmissionDelay: %v", err)
	}
	if !almostEqual(delay[0], 1e9/want01) {
		t.Fatalf("delay[0] = %v, want %v", delay[0], 1e9/want01)
	}

	delay, err = m.TransmissionDelay(rate, []int{3, 1})
	if err != nil {
		t.Fatalf("TransmissionDelay: %v", err)
	}
	if !math.IsInf(delay[0], 1) {
		t.Fatalf("expected +Inf delay on zero rate, got %v", delay[0])
	}
}

func TestShapeMismatch(t *testing.T) {
	m, _ := NewModel(testParams(), 1, 3)
	if _, err := m.TransmissionRate(mat.NewDense(2, 3, nil)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	rate, _ := m.TransmissionRate(mat.NewDense(1, 3, []float64{1e-10, 1e-10, 1e-10}))
	if _, err := m.TransmissionDelay(rate, []int{1, 2}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	if _, err := m.TransmissionDelay(rate, []int{4}); err == nil {
		t.Fatal("expected error for node out of range")
	}
}

func TestAddLoadAccumulates(t *testing.T) {
	m, _ := NewModel(testParams(), 1, 3)

	steps := []struct {
		node int
		want float64
	}{
		{1, LoadImbalance([]float64{1, 0, 0})},
		{2, LoadImbalance([]float64{1, 1, 0})},
		{3, 0},
	}
	for i, s := range steps {
		mad, err := m.AddLoad([]int{s.node})
		if err != nil {
			t.Fatalf("AddLoad step %d: %v", i, err)
		}
		if !almostEqual(mad, s.want) {
			t.Fatalf("step %d: imbalance %v, want %v", i, mad, s.want)
		}
	}

	if _, err := m.AddLoad([]int{0}); err == nil {
		t.Fatal("expected error for node 0")
	}
	// Неудачный вызов не меняет нагрузку
	load := m.Load()
	for i, v := range load {
		if v != 1 {
			t.Fatalf("load[%d] = %v, want 1", i, v)
		}
	}

	m.Reset()
	for i, v := range m.Load() {
		if v != 0 {
			t.Fatalf("after reset load[%d] = %v", i, v)
		}
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	ds, err := SyntheticDataset(4, 2, 3, 7)
	if err != nil {
		t.Fatalf("SyntheticDataset: %v", err)
	}
	path := filepath.Join(t.TempDir(), "channel.json")
	if err := ds.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if loaded.Len() != 4 || loaded.Owners() != 2 || loaded.Nodes() != 3 {
		t.Fatalf("unexpected shape %d/%d/%d", loaded.Len(), loaded.Owners(), loaded.Nodes())
	}
	if !mat.EqualApprox(ds.Sample(2), loaded.Sample(2), 1e-20) {
		t.Fatal("slot 2 differs after reload")
	}
	// Индекс слота берётся по модулю
	if !mat.Equal(loaded.Sample(5), loaded.Sample(1)) {
		t.Fatal("expected slot 5 to wrap to slot 1")
	}
}

func TestDatasetRejectsRaggedSlots(t *testing.T) {
	_, err := NewDataset([]*mat.Dense{mat.NewDense(1, 3, nil), mat.NewDense(1, 2, nil)})
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestOwnerRange(t *testing.T) {
	ds, _ := NewDataset([]*mat.Dense{mat.NewDense(2, 2, []float64{1, 2, 3, 4})})
	sub, err := ds.OwnerRange(1, 2)
	if err != nil {
		t.Fatalf("OwnerRange: %v", err)
	}
	if sub.Owners() != 1 || sub.Sample(0).At(0, 1) != 4 {
		t.Fatalf("unexpected sub dataset: %v", mat.Formatted(sub.Sample(0)))
	}
	if _, err := ds.OwnerRange(0, 3); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}
