package simulator

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/GhostRepo-0315/CS230-Project/internal/action"
	"github.com/GhostRepo-0315/CS230-Project/internal/assignment"
	"github.com/GhostRepo-0315/CS230-Project/internal/config"
	"github.com/GhostRepo-0315/CS230-Project/internal/evalstore"
	"github.com/GhostRepo-0315/CS230-Project/internal/netmodel"
	"github.com/GhostRepo-0315/CS230-Project/internal/policy"
)

// Planner строит таблицу размещения для файла, прогоняя отдельный эпизод
// с одним владельцем. Состояние эпизода не разделяется между файлами.
type Planner struct {
	Config  *config.Placement
	Nodes   []string          // Идентификаторы узлов; узел k (1..n) -> Nodes[k-1]
	Channel *netmodel.Dataset // nil - синтетические данные на каждый файл
	Eval    *evalstore.Store  // Необязательный журнал эпизодов
	Log     zerolog.Logger
}

// Plan реализует планировщик назначений оркестратора
func (p *Planner) Plan(ctx context.Context, fileID string, totalChunks int) (assignment.Table, error) {
	if totalChunks <= 0 {
		return assignment.Table{}, fmt.Errorf("simulator: total chunks must be positive, got %d", totalChunks)
	}
	if len(p.Nodes) == 0 {
		return assignment.Table{}, fmt.Errorf("simulator: empty node pool")
	}

	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}
	seed := fileSeed(cfg.Seed, fileID)

	model, err := netmodel.NewModel(cfg.Params(), 1, len(p.Nodes))
	if err != nil {
		return assignment.Table{}, err
	}

	channel, err := p.channelFor(totalChunks, seed)
	if err != nil {
		return assignment.Table{}, err
	}

	pol, err := policy.ByName(cfg.Policy, policy.Options{
		Space:      action.Space{Owners: 1, Nodes: len(p.Nodes)},
		Seed:       seed,
		Model:      model,
		Channel:    channel,
		Weights:    cfg.DelayWeights,
		ReplayPath: cfg.ReplayPath,
	})
	if err != nil {
		return assignment.Table{}, err
	}

	sim, err := New(model, channel, pol, cfg.DelayWeights, p.Log)
	if err != nil {
		return assignment.Table{}, err
	}
	res, err := sim.Run(ctx, []int{totalChunks}, totalChunks)
	if err != nil {
		return assignment.Table{}, err
	}

	nodes := make([]string, len(res.Sequences[0]))
	for i, k := range res.Sequences[0] {
		nodes[i] = p.Nodes[k-1]
	}

	tbl := assignment.New(fileID, nodes)
	tbl.Policy = res.Policy
	tbl.EpisodeID = res.EpisodeID
	if err := tbl.Validate(totalChunks, nil); err != nil {
		return assignment.Table{}, err
	}

	if p.Eval != nil {
		if err := p.Eval.RecordEpisode(EpisodeRecord(fileID, res), SampleRecords(res)); err != nil {
			p.Log.Warn().Err(err).Str("fileID", fileID).Msg("failed to record episode")
		}
	}

	p.Log.Info().
		Str("fileID", fileID).
		Str("policy", res.Policy).
		Int("chunks", totalChunks).
		Float64("mean_reward", res.MeanReward).
		Msg("placement planned")

	return tbl, nil
}

func (p *Planner) channelFor(slots int, seed int64) (*netmodel.Dataset, error) {
	if p.Channel == nil {
		return netmodel.SyntheticDataset(slots, 1, len(p.Nodes), seed)
	}
	if p.Channel.Nodes() != len(p.Nodes) {
		return nil, fmt.Errorf("%w: channel data has %d nodes, pool has %d", netmodel.ErrShape, p.Channel.Nodes(), len(p.Nodes))
	}
	if p.Channel.Owners() == 1 {
		return p.Channel, nil
	}
	return p.Channel.OwnerRange(0, 1)
}

// fileSeed смешивает общий seed с id файла, чтобы случайные политики различались по файлам
func fileSeed(base int64, fileID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(fileID))
	return base ^ int64(h.Sum64())
}

// EpisodeRecord переводит результат в запись журнала
func EpisodeRecord(fileID string, res *Result) evalstore.Episode {
	return evalstore.Episode{
		EpisodeID:     res.EpisodeID,
		FileID:        fileID,
		Policy:        res.Policy,
		Slots:         len(res.Slots),
		MeanDelayMs:   res.MeanDelayMs,
		MeanImbalance: res.MeanImbalance,
		MeanReward:    res.MeanReward,
		CreatedAt:     time.Now(),
	}
}

func SampleRecords(res *Result) []evalstore.Sample {
	out := make([]evalstore.Sample, len(res.Slots))
	for i, r := range res.Slots {
		out[i] = evalstore.Sample{
			Slot:      r.Slot,
			Decision:  r.Decision,
			DelayMs:   r.DelayMs,
			Imbalance: r.Imbalance,
			Reward:    r.Reward,
		}
	}
	return out
}
