// internal/netmodel/model.go
package netmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Плотность теплового шума, dBm/Hz
const thermalNoiseDensityDBm = -174.0

var ErrShape = errors.New("matrix shape mismatch")

// Params параметры беспроводного канала
type Params struct {
	BandwidthHz  float64 // Полоса системы, Гц
	SignalPowerW float64 // Мощность передатчика, Вт
	SNRFactor    float64 // Множитель мощности шума (0.01 - высокий SNR, 10 - низкий)
	ChunkSizeMb  float64 // Размер чанка, Мбит
}

// Model считает скорость и задержку передачи и ведёт накопленную нагрузку узлов
type Model struct {
	params Params
	owners int
	nodes  int
	noise  float64
	load   []float64
}

// NewModel создаёт модель для owners отправителей и nodes узлов
func NewModel(p Params, owners, nodes int) (*Model, error) {
	if owners < 1 || nodes < 1 {
		return nil, fmt.Errorf("netmodel: owners and nodes must be positive, got %d and %d", owners, nodes)
	}
	if p.BandwidthHz <= 0 || p.SignalPowerW <= 0 || p.SNRFactor <= 0 || p.ChunkSizeMb <= 0 {
		return nil, fmt.Errorf("netmodel: non-positive parameter in %+v", p)
	}

	noiseDBm := thermalNoiseDensityDBm + 10*math.Log10(p.BandwidthHz)
	noise := math.Pow(10, noiseDBm/10-3) * p.SNRFactor

	return &Model{
		params: p,
		owners: owners,
		nodes:  nodes,
		noise:  noise,
		load:   make([]float64, nodes),
	}, nil
}

// NoisePower возвращает мощность шума в Вт с учётом SNRFactor
func (m *Model) NoisePower() float64 { return m.noise }

func (m *Model) Owners() int { return m.owners }
func (m *Model) Nodes() int  { return m.nodes }

// ChunkSizeMb возвращает размер чанка, на который растёт нагрузка узла
func (m *Model) ChunkSizeMb() float64 { return m.params.ChunkSizeMb }

// TransmissionRate: rate[o][n] = B/owners * log2(1 + P*gain[o][n]/noise), бит/с
func (m *Model) TransmissionRate(gain mat.Matrix) (*mat.Dense, error) {
	r, c := gain.Dims()
	if r != m.owners || c != m.nodes {
		return nil, fmt.Errorf("%w: gain is %dx%d, want %dx%d", ErrShape, r, c, m.owners, m.nodes)
	}

	share := m.params.BandwidthHz / float64(m.owners)
	rate := mat.NewDense(r, c, nil)
	rate.Apply(func(_, _ int, g float64) float64 {
		return share * math.Log2(1+m.params.SignalPowerW*g/m.noise)
	}, gain)
	return rate, nil
}

// TransmissionDelay возвращает задержку в мс для каждого владельца.
// assignment[o] - номер узла владельца o в диапазоне [1, nodes].
// Нулевая скорость даёт +Inf.
func (m *Model) TransmissionDelay(rate mat.Matrix, assignment []int) ([]float64, error) {
	r, c := rate.Dims()
	if r != m.owners || c != m.nodes {
		return nil, fmt.Errorf("%w: rate is %dx%d, want %dx%d", ErrShape, r, c, m.owners, m.nodes)
	}
	if len(assignment) != m.owners {
		return nil, fmt.Errorf("%w: %d assignments for %d owners", ErrShape, len(assignment), m.owners)
	}

	bits := m.params.ChunkSizeMb * 1e6
	delay := make([]float64, m.owners)
	for o, node := range assignment {
		if node < 1 || node > m.nodes {
			return nil, fmt.Errorf("netmodel: node %d of owner %d out of range", node, o)
		}
		v := rate.At(o, node-1)
		if v <= 0 {
			delay[o] = math.Inf(1)
			continue
		}
		delay[o] = bits * 1e3 / v
	}
	return delay, nil
}

// AddLoad добавляет размер чанка к нагрузке выбранных узлов и возвращает
// дисбаланс после обновления. Вызывать ровно один раз на слот.
func (m *Model) AddLoad(assignment []int) (float64, error) {
	for o, node := range assignment {
		if node < 1 || node > m.nodes {
			return 0, fmt.Errorf("netmodel: node %d of owner %d out of range", node, o)
		}
	}
	for _, node := range assignment {
		m.load[node-1] += m.params.ChunkSizeMb
	}
	return LoadImbalance(m.load), nil
}

// Load возвращает копию текущей нагрузки узлов, Мбит
func (m *Model) Load() []float64 {
	out := make([]float64, len(m.load))
	copy(out, m.load)
	return out
}

// Reset обнуляет нагрузку
func (m *Model) Reset() {
	for i := range m.load {
		m.load[i] = 0
	}
}

// LoadImbalance - среднее абсолютное отклонение нагрузки от её среднего
func LoadImbalance(load []float64) float64 {
	if len(load) == 0 {
		return 0
	}
	mean := stat.Mean(load, nil)
	dev := make([]float64, len(load))
	for i, v := range load {
		dev[i] = math.Abs(v - mean)
	}
	return stat.Mean(dev, nil)
}
