package policy

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/GhostRepo-0315/CS230-Project/internal/action"
	"github.com/GhostRepo-0315/CS230-Project/internal/netmodel"
)

var ErrExhausted = errors.New("policy: no recorded decision for slot")

// State - наблюдение политики на текущем слоте
type State struct {
	Slot      int
	Remaining []int     // Оставшиеся чанки по владельцам
	NodeLoad  []float64 // Накопленная нагрузка узлов, Мбит
}

// Policy выбирает решение для слота. Реализация может быть обученной моделью,
// базовой стратегией или тестовым дублёром.
type Policy interface {
	Name() string
	Decide(s State) (int, error)
}

// Func адаптирует функцию к Policy
type Func func(State) (int, error)

func (f Func) Name() string                { return "func" }
func (f Func) Decide(s State) (int, error) { return f(s) }

// RoundRobin: владелец i на слоте s получает узел (s+i) mod nodes
type RoundRobin struct {
	Space action.Space
}

func (p *RoundRobin) Name() string { return "round-robin" }

func (p *RoundRobin) Decide(s State) (int, error) {
	choices := make([]int, p.Space.Owners)
	for i := range choices {
		choices[i] = (s.Slot+i)%p.Space.Nodes + 1
	}
	return p.Space.Encode(choices)
}

// Random выбирает решение равномерно с фиксированным seed
type Random struct {
	space action.Space
	rng   *rand.Rand
}

func NewRandom(space action.Space, seed int64) *Random {
	return &Random{space: space, rng: rand.New(rand.NewSource(seed))}
}

func (p *Random) Name() string { return "random" }

func (p *Random) Decide(State) (int, error) {
	size, ok := p.space.Size()
	if !ok {
		return 0, fmt.Errorf("%w: space too large", action.ErrInvalidDecision)
	}
	return p.rng.Intn(size), nil
}

// Greedy перебирает все решения и берёт минимум стоимости одного шага:
// взвешенная задержка плюс дисбаланс после добавления нагрузки.
type Greedy struct {
	Model   *netmodel.Model
	Channel *netmodel.Dataset
	Weights []float64
}

// Предел перебора для Greedy
const maxGreedySpace = 1 << 16

func (p *Greedy) Name() string { return "greedy" }

func (p *Greedy) Decide(s State) (int, error) {
	space := action.Space{Owners: p.Model.Owners(), Nodes: p.Model.Nodes()}
	size, ok := space.Size()
	if !ok || size > maxGreedySpace {
		return 0, fmt.Errorf("policy: greedy search space %d^%d too large", space.Nodes, space.Owners)
	}

	rate, err := p.Model.TransmissionRate(p.Channel.Sample(s.Slot))
	if err != nil {
		return 0, err
	}

	load := s.NodeLoad
	if len(load) != space.Nodes {
		load = p.Model.Load()
	}

	best, bestCost := 0, math.Inf(1)
	trial := make([]float64, len(load))
	for d := 0; d < size; d++ {
		choices, err := space.Decode(d)
		if err != nil {
			return 0, err
		}
		delay, err := p.Model.TransmissionDelay(rate, choices)
		if err != nil {
			return 0, err
		}

		copy(trial, load)
		for _, n := range choices {
			trial[n-1] += p.Model.ChunkSizeMb()
		}

		cost := WeightedMean(p.Weights, delay) + netmodel.LoadImbalance(trial)
		if cost < bestCost {
			best, bestCost = d, cost
		}
	}
	return best, nil
}

// Replay воспроизводит записанную последовательность решений по номеру слота
type Replay struct {
	Decisions []int
}

func (p *Replay) Name() string { return "replay" }

func (p *Replay) Decide(s State) (int, error) {
	if s.Slot < 0 || s.Slot >= len(p.Decisions) {
		return 0, fmt.Errorf("%w: slot %d of %d", ErrExhausted, s.Slot, len(p.Decisions))
	}
	return p.Decisions[s.Slot], nil
}

// LoadReplay читает решения по одному целому на строку; пустые строки и строки с '#' пропускаются
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var decisions []int
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		d, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("policy: %s:%d: %w", path, line, err)
		}
		decisions = append(decisions, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Replay{Decisions: decisions}, nil
}

// WeightedMean - mean(w[i]*x[i]); недостающие веса считаются равными 1
func WeightedMean(weights, x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for i, v := range x {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		sum += w * v
	}
	return sum / float64(len(x))
}

// Options параметры для ByName
type Options struct {
	Space      action.Space
	Seed       int64
	Model      *netmodel.Model
	Channel    *netmodel.Dataset
	Weights    []float64
	ReplayPath string
}

// ByName создаёт политику по имени: round-robin, random, greedy, replay
func ByName(name string, o Options) (Policy, error) {
	switch name {
	case "round-robin", "roundrobin", "":
		return &RoundRobin{Space: o.Space}, nil
	case "random":
		return NewRandom(o.Space, o.Seed), nil
	case "greedy":
		if o.Model == nil || o.Channel == nil {
			return nil, fmt.Errorf("policy: greedy needs a network model and channel data")
		}
		return &Greedy{Model: o.Model, Channel: o.Channel, Weights: o.Weights}, nil
	case "replay":
		if o.ReplayPath == "" {
			return nil, fmt.Errorf("policy: replay needs a decisions file")
		}
		return LoadReplay(o.ReplayPath)
	default:
		return nil, fmt.Errorf("policy: unknown policy %q", name)
	}
}
