// cmd/planner/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/GhostRepo-0315/CS230-Project/internal/action"
	"github.com/GhostRepo-0315/CS230-Project/internal/assignment"
	"github.com/GhostRepo-0315/CS230-Project/internal/config"
	"github.com/GhostRepo-0315/CS230-Project/internal/evalstore"
	"github.com/GhostRepo-0315/CS230-Project/internal/logging"
	"github.com/GhostRepo-0315/CS230-Project/internal/netmodel"
	"github.com/GhostRepo-0315/CS230-Project/internal/policy"
	"github.com/GhostRepo-0315/CS230-Project/internal/simulator"
	"github.com/GhostRepo-0315/CS230-Project/internal/storage"
)

var (
	placement  = flag.String("placement", "", "Placement config JSON (defaults if empty)")
	pool       = flag.String("storage-pool", config.Getenv("STORAGE_POOL", ""), "Comma-separated id=url storage nodes")
	chunks     = flag.Int("chunks", 100, "Chunks per owner")
	budget     = flag.Int("budget", 0, "Slot budget (0: one slot per chunk)")
	owner      = flag.Int("owner", 0, "Owner whose sequence becomes the assignment table")
	policyName = flag.String("policy", "", "Override policy from config")
	out        = flag.String("out", "assignment.json", "Output assignment table")
	evalDBPath = flag.String("eval-db", "", "SQLite file for episode records (disabled if empty)")
	genChannel = flag.String("gen-channel", "", "Write the channel data used for the episode to this file")
	logLevel   = flag.String("log-level", config.Getenv("LOG_LEVEL", "info"), "Log level")
)

func main() {
	flag.Parse()
	log := logging.New("planner", *logLevel, true)

	cfg := config.Default()
	if *placement != "" {
		var err error
		if cfg, err = config.Load(*placement); err != nil {
			log.Fatal().Err(err).Str("path", *placement).Msg("failed to load placement config")
		}
	}
	if *policyName != "" {
		cfg.Policy = *policyName
	}

	nodes, err := storage.ParsePool(*pool)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid storage pool")
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	if *owner < 0 || *owner >= cfg.Owners {
		log.Fatal().Int("owner", *owner).Int("owners", cfg.Owners).Msg("owner out of range")
	}

	model, err := netmodel.NewModel(cfg.Params(), cfg.Owners, len(ids))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid network model")
	}

	var channel *netmodel.Dataset
	if cfg.ChannelPath != "" {
		channel, err = netmodel.LoadDataset(cfg.ChannelPath)
	} else {
		channel, err = netmodel.SyntheticDataset(*chunks, cfg.Owners, len(ids), cfg.Seed)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare channel data")
	}
	if *genChannel != "" {
		if err := channel.Save(*genChannel); err != nil {
			log.Fatal().Err(err).Str("path", *genChannel).Msg("failed to write channel data")
		}
	}

	pol, err := policy.ByName(cfg.Policy, policy.Options{
		Space:      action.Space{Owners: cfg.Owners, Nodes: len(ids)},
		Seed:       cfg.Seed,
		Model:      model,
		Channel:    channel,
		Weights:    cfg.DelayWeights,
		ReplayPath: cfg.ReplayPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create policy")
	}

	sim, err := simulator.New(model, channel, pol, cfg.DelayWeights, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create simulator")
	}

	counts := make([]int, cfg.Owners)
	for i := range counts {
		counts[i] = *chunks
	}
	res, err := sim.Run(context.Background(), counts, *budget)
	if err != nil {
		log.Fatal().Err(err).Msg("episode failed")
	}

	seq := res.Sequences[*owner]
	tableNodes := make([]string, len(seq))
	for i, k := range seq {
		tableNodes[i] = ids[k-1]
	}
	tbl := assignment.New("", tableNodes)
	tbl.Policy = res.Policy
	tbl.EpisodeID = res.EpisodeID
	if err := tbl.Save(*out); err != nil {
		log.Fatal().Err(err).Str("path", *out).Msg("failed to write assignment table")
	}

	if *evalDBPath != "" {
		ev, err := evalstore.Open(*evalDBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *evalDBPath).Msg("failed to open eval store")
		}
		defer ev.Close()
		if err := ev.RecordEpisode(simulator.EpisodeRecord("", res), simulator.SampleRecords(res)); err != nil {
			log.Error().Err(err).Msg("failed to record episode")
		}
	}

	log.Info().
		Str("episode", res.EpisodeID).
		Str("policy", res.Policy).
		Int("slots", len(res.Slots)).
		Int("entries", len(tbl.Nodes)).
		Str("out", *out).
		Msg("assignment table written")

	load := make([]string, len(res.NodeLoad))
	for i, l := range res.NodeLoad {
		load[i] = fmt.Sprintf("%s=%.1f", ids[i], l)
	}
	fmt.Fprintf(os.Stdout, "mean delay %.3f ms, mean imbalance %.3f, mean reward %.3f\nnode load (Mb): %s\n",
		res.MeanDelayMs, res.MeanImbalance, res.MeanReward, strings.Join(load, " "))
}
