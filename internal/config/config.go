package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GhostRepo-0315/CS230-Project/internal/netmodel"
)

// Placement параметры модели канала и симулятора размещения
type Placement struct {
	BandwidthHz  float64   `json:"bandwidth_hz"`
	SignalPowerW float64   `json:"signal_power_w"`
	SNRFactor    float64   `json:"snr_factor"`
	ChunkSizeMb  float64   `json:"chunk_size_mb"`
	Owners       int       `json:"owners"`
	DelayWeights []float64 `json:"delay_weights"`

	Policy      string `json:"policy"`       // round-robin | random | greedy | replay
	ReplayPath  string `json:"replay_path"`  // Файл решений для replay
	ChannelPath string `json:"channel_path"` // JSON с усилениями канала; пусто - синтетика
	Seed        int64  `json:"seed"`
}

// Load читает JSON-конфиг и применяет значения по умолчанию
func Load(path string) (*Placement, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Placement
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

// Default возвращает конфиг без файла
func Default() *Placement {
	var c Placement
	c.applyDefaults()
	return &c
}

func (c *Placement) applyDefaults() {
	if c.BandwidthHz <= 0 {
		c.BandwidthHz = 20e6
	}
	if c.SignalPowerW <= 0 {
		c.SignalPowerW = 1
	}
	// Высокий SNR
	if c.SNRFactor <= 0 {
		c.SNRFactor = 0.01
	}
	if c.ChunkSizeMb <= 0 {
		c.ChunkSizeMb = 1
	}
	if c.Owners <= 0 {
		c.Owners = 1
	}
	for len(c.DelayWeights) < c.Owners {
		c.DelayWeights = append(c.DelayWeights, 1)
	}
	if c.Policy == "" {
		c.Policy = "greedy"
	}
	if c.Seed == 0 {
		c.Seed = 40
	}
}

// Params возвращает параметры для netmodel
func (c *Placement) Params() netmodel.Params {
	return netmodel.Params{
		BandwidthHz:  c.BandwidthHz,
		SignalPowerW: c.SignalPowerW,
		SNRFactor:    c.SNRFactor,
		ChunkSizeMb:  c.ChunkSizeMb,
	}
}

func Getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func GetenvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func GetenvBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func GetenvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
