package netmodel

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Средний коэффициент усиления канала для синтетических данных
const meanPathGain = 1e-10

// Dataset - последовательность матриц усиления канала (owner x node) по слотам
type Dataset struct {
	owners int
	nodes  int
	slots  []*mat.Dense
}

type datasetFile struct {
	Slots [][][]float64 `json:"slots"`
}

// NewDataset проверяет, что все матрицы одной формы
func NewDataset(slots []*mat.Dense) (*Dataset, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("netmodel: empty dataset")
	}
	owners, nodes := slots[0].Dims()
	for i, s := range slots {
		r, c := s.Dims()
		if r != owners || c != nodes {
			return nil, fmt.Errorf("%w: slot %d is %dx%d, want %dx%d", ErrShape, i, r, c, owners, nodes)
		}
	}
	return &Dataset{owners: owners, nodes: nodes, slots: slots}, nil
}

// LoadDataset читает JSON вида {"slots": [[[g00, g01, ...], ...], ...]}
func LoadDataset(path string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f datasetFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("netmodel: decode %s: %w", path, err)
	}

	slots := make([]*mat.Dense, 0, len(f.Slots))
	for i, rows := range f.Slots {
		if len(rows) == 0 || len(rows[0]) == 0 {
			return nil, fmt.Errorf("%w: slot %d is empty", ErrShape, i)
		}
		cols := len(rows[0])
		data := make([]float64, 0, len(rows)*cols)
		for j, row := range rows {
			if len(row) != cols {
				return nil, fmt.Errorf("%w: slot %d row %d has %d columns, want %d", ErrShape, i, j, len(row), cols)
			}
			data = append(data, row...)
		}
		slots = append(slots, mat.NewDense(len(rows), cols, data))
	}
	return NewDataset(slots)
}

// SyntheticDataset генерирует экспоненциальные (рэлеевские по мощности) усиления.
// Узел с большим номером получает более слабый средний канал.
func SyntheticDataset(slots, owners, nodes int, seed int64) (*Dataset, error) {
	if slots < 1 || owners < 1 || nodes < 1 {
		return nil, fmt.Errorf("netmodel: invalid synthetic shape %dx%dx%d", slots, owners, nodes)
	}

	rng := rand.New(rand.NewSource(seed))
	out := make([]*mat.Dense, slots)
	for s := range out {
		data := make([]float64, owners*nodes)
		for o := 0; o < owners; o++ {
			for n := 0; n < nodes; n++ {
				scale := meanPathGain / float64(1+n)
				data[o*nodes+n] = scale * rng.ExpFloat64()
			}
		}
		out[s] = mat.NewDense(owners, nodes, data)
	}
	return NewDataset(out)
}

func (d *Dataset) Owners() int { return d.owners }
func (d *Dataset) Nodes() int  { return d.nodes }
func (d *Dataset) Len() int    { return len(d.slots) }

// Sample возвращает матрицу для слота; индекс берётся по модулю длины
func (d *Dataset) Sample(slot int) mat.Matrix {
	i := slot % len(d.slots)
	if i < 0 {
		i += len(d.slots)
	}
	return d.slots[i]
}

// OwnerRange возвращает датасет только для владельцев [from, to)
func (d *Dataset) OwnerRange(from, to int) (*Dataset, error) {
	if from < 0 || to > d.owners || from >= to {
		return nil, fmt.Errorf("%w: owner range [%d, %d) of %d", ErrShape, from, to, d.owners)
	}
	out := make([]*mat.Dense, len(d.slots))
	for i, s := range d.slots {
		out[i] = mat.DenseCopyOf(s.Slice(from, to, 0, d.nodes))
	}
	return &Dataset{owners: to - from, nodes: d.nodes, slots: out}, nil
}

// Save пишет датасет в формате LoadDataset
func (d *Dataset) Save(path string) error {
	f := datasetFile{Slots: make([][][]float64, len(d.slots))}
	for i, s := range d.slots {
		rows := make([][]float64, d.owners)
		for o := range rows {
			rows[o] = mat.Row(nil, o, s)
		}
		f.Slots[i] = rows
	}

	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
