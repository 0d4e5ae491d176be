// internal/simulator/simulator.go
package simulator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GhostRepo-0315/CS230-Project/internal/action"
	"github.com/GhostRepo-0315/CS230-Project/internal/netmodel"
	"github.com/GhostRepo-0315/CS230-Project/internal/policy"
)

// Phase - состояние эпизода
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRunning
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseRunning:
		return "running"
	case PhaseTerminated:
		return "terminated"
	}
	return "unknown"
}

// SlotRecord - статистика одного слота
type SlotRecord struct {
	Slot      int
	Decision  int
	Choices   []int   // Узел (1..nodes) для каждого владельца
	DelayMs   float64 // Взвешенная средняя задержка активных владельцев
	Imbalance float64 // Дисбаланс нагрузки после слота
	Reward    float64 // -(DelayMs + Imbalance)
}

// Result - результат завершённого эпизода
type Result struct {
	EpisodeID     string
	Policy        string
	Sequences     [][]int // Sequences[o] - узлы чанков владельца o по порядку
	Slots         []SlotRecord
	NodeLoad      []float64
	MeanDelayMs   float64
	MeanImbalance float64
	MeanReward    float64
}

// Simulator прогоняет эпизод размещения: один слот на чанк
type Simulator struct {
	model   *netmodel.Model
	channel *netmodel.Dataset
	policy  policy.Policy
	weights []float64
	space   action.Space
	log     zerolog.Logger

	phase Phase
}

// New проверяет согласованность модели и данных канала
func New(model *netmodel.Model, channel *netmodel.Dataset, p policy.Policy, weights []float64, log zerolog.Logger) (*Simulator, error) {
	if channel.Owners() != model.Owners() || channel.Nodes() != model.Nodes() {
		return nil, fmt.Errorf("%w: channel is %dx%d, model is %dx%d",
			netmodel.ErrShape, channel.Owners(), channel.Nodes(), model.Owners(), model.Nodes())
	}
	return &Simulator{
		model:   model,
		channel: channel,
		policy:  p,
		weights: weights,
		space:   action.Space{Owners: model.Owners(), Nodes: model.Nodes()},
		log:     log,
	}, nil
}

func (s *Simulator) Phase() Phase { return s.phase }

// Run выполняет эпизод. chunks[o] - число чанков владельца o, budget - предел слотов
// (<= 0 означает максимум из chunks). Неверное решение политики прерывает эпизод
// без результата.
func (s *Simulator) Run(ctx context.Context, chunks []int, budget int) (*Result, error) {
	if len(chunks) != s.space.Owners {
		return nil, fmt.Errorf("simulator: %d chunk counts for %d owners", len(chunks), s.space.Owners)
	}

	// Init
	s.phase = PhaseInit
	remaining := make([]int, len(chunks))
	maxChunks := 0
	for i, c := range chunks {
		if c < 0 {
			return nil, fmt.Errorf("simulator: negative chunk count %d for owner %d", c, i)
		}
		remaining[i] = c
		if c > maxChunks {
			maxChunks = c
		}
	}
	if budget <= 0 {
		budget = maxChunks
	}
	s.model.Reset()

	res := &Result{
		EpisodeID: uuid.NewString(),
		Policy:    s.policy.Name(),
		Sequences: make([][]int, len(chunks)),
	}

	s.phase = PhaseRunning
	for slot := 0; slot < budget && !allZero(remaining); slot++ {
		if err := ctx.Err(); err != nil {
			s.phase = PhaseTerminated
			return nil, err
		}

		rec, err := s.step(slot, remaining)
		if err != nil {
			s.phase = PhaseTerminated
			s.log.Error().Err(err).Str("episode", res.EpisodeID).Int("slot", slot).Msg("episode abandoned")
			return nil, err
		}

		for o, node := range rec.Choices {
			if remaining[o] > 0 {
				res.Sequences[o] = append(res.Sequences[o], node)
				remaining[o]--
			}
		}
		res.Slots = append(res.Slots, rec)
	}
	s.phase = PhaseTerminated

	res.NodeLoad = s.model.Load()
	if n := float64(len(res.Slots)); n > 0 {
		for _, r := range res.Slots {
			res.MeanDelayMs += r.DelayMs
			res.MeanImbalance += r.Imbalance
			res.MeanReward += r.Reward
		}
		res.MeanDelayMs /= n
		res.MeanImbalance /= n
		res.MeanReward /= n
	}

	s.log.Debug().
		Str("episode", res.EpisodeID).
		Str("policy", res.Policy).
		Int("slots", len(res.Slots)).
		Float64("mean_delay_ms", res.MeanDelayMs).
		Float64("mean_imbalance", res.MeanImbalance).
		Float64("mean_reward", res.MeanReward).
		Msg("episode terminated")

	return res, nil
}

// step выполняет один слот; нагрузка добавляется только активным владельцам
func (s *Simulator) step(slot int, remaining []int) (SlotRecord, error) {
	state := policy.State{
		Slot:      slot,
		Remaining: append([]int(nil), remaining...),
		NodeLoad:  s.model.Load(),
	}

	decision, err := s.policy.Decide(state)
	if err != nil {
		return SlotRecord{}, fmt.Errorf("slot %d: policy %s: %w", slot, s.policy.Name(), err)
	}
	choices, err := s.space.Decode(decision)
	if err != nil {
		return SlotRecord{}, fmt.Errorf("slot %d: %w", slot, err)
	}

	rate, err := s.model.TransmissionRate(s.channel.Sample(slot))
	if err != nil {
		return SlotRecord{}, err
	}
	delay, err := s.model.TransmissionDelay(rate, choices)
	if err != nil {
		return SlotRecord{}, err
	}

	var (
		active        []int
		activeDelay   []float64
		activeWeights []float64
	)
	for o, node := range choices {
		if remaining[o] == 0 {
			continue
		}
		active = append(active, node)
		activeDelay = append(activeDelay, delay[o])
		w := 1.0
		if o < len(s.weights) {
			w = s.weights[o]
		}
		activeWeights = append(activeWeights, w)
	}

	imbalance, err := s.model.AddLoad(active)
	if err != nil {
		return SlotRecord{}, err
	}
	weighted := policy.WeightedMean(activeWeights, activeDelay)

	return SlotRecord{
		Slot:      slot,
		Decision:  decision,
		Choices:   choices,
		DelayMs:   weighted,
		Imbalance: imbalance,
		Reward:    -(weighted + imbalance),
	}, nil
}

func allZero(v []int) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
