package evalstore

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id      TEXT PRIMARY KEY,
	file_id         TEXT,
	policy          TEXT NOT NULL,
	slots           INTEGER NOT NULL,
	mean_delay_ms   REAL,
	mean_imbalance  REAL,
	mean_reward     REAL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS slot_samples (
	episode_id  TEXT NOT NULL,
	slot        INTEGER NOT NULL,
	decision    INTEGER NOT NULL,
	delay_ms    REAL,
	imbalance   REAL,
	reward      REAL,
	PRIMARY KEY (episode_id, slot),
	FOREIGN KEY (episode_id) REFERENCES episodes(episode_id)
);
`

// Episode - агрегаты одного эпизода размещения
type Episode struct {
	EpisodeID     string
	FileID        string
	Policy        string
	Slots         int
	MeanDelayMs   float64
	MeanImbalance float64
	MeanReward    float64
	CreatedAt     time.Time
}

// Sample - запись одного слота (RewardSample)
type Sample struct {
	Slot      int
	Decision  int
	DelayMs   float64
	Imbalance float64
	Reward    float64
}

// Store хранит результаты эпизодов в SQLite
type Store struct {
	db *sql.DB
}

// Open открывает базу и применяет схему
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Один писатель: эпизоды разных файлов пишутся параллельно
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordEpisode пишет эпизод и его слоты в одной транзакции
func (s *Store) RecordEpisode(ep Episode, samples []Sample) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO episodes (episode_id, file_id, policy, slots, mean_delay_ms, mean_imbalance, mean_reward, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.EpisodeID, nullString(ep.FileID), ep.Policy, ep.Slots,
		finite(ep.MeanDelayMs), finite(ep.MeanImbalance), finite(ep.MeanReward),
		ep.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}

	for _, smp := range samples {
		_, err = tx.Exec(
			`INSERT INTO slot_samples (episode_id, slot, decision, delay_ms, imbalance, reward)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ep.EpisodeID, smp.Slot, smp.Decision, finite(smp.DelayMs), finite(smp.Imbalance), finite(smp.Reward),
		)
		if err != nil {
			return fmt.Errorf("insert slot %d: %w", smp.Slot, err)
		}
	}

	return tx.Commit()
}

// GetEpisode возвращает эпизод по id
func (s *Store) GetEpisode(id string) (Episode, error) {
	var (
		ep                 Episode
		fileID             sql.NullString
		delay, mad, reward sql.NullFloat64
		created            string
	)
	err := s.db.QueryRow(
		`SELECT episode_id, file_id, policy, slots, mean_delay_ms, mean_imbalance, mean_reward, created_at
		 FROM episodes WHERE episode_id = ?`, id,
	).Scan(&ep.EpisodeID, &fileID, &ep.Policy, &ep.Slots, &delay, &mad, &reward, &created)
	if err != nil {
		return Episode{}, fmt.Errorf("get episode %s: %w", id, err)
	}

	ep.FileID = fileID.String
	ep.MeanDelayMs = nullFloat(delay)
	ep.MeanImbalance = nullFloat(mad)
	ep.MeanReward = nullFloat(reward)
	if ep.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Episode{}, fmt.Errorf("parse created_at of %s: %w", id, err)
	}
	return ep, nil
}

// Samples возвращает слоты эпизода по порядку
func (s *Store) Samples(episodeID string) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT slot, decision, delay_ms, imbalance, reward
		 FROM slot_samples WHERE episode_id = ? ORDER BY slot`, episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			smp                Sample
			delay, mad, reward sql.NullFloat64
		)
		if err := rows.Scan(&smp.Slot, &smp.Decision, &delay, &mad, &reward); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.DelayMs = nullFloat(delay)
		smp.Imbalance = nullFloat(mad)
		smp.Reward = nullFloat(reward)
		out = append(out, smp)
	}
	return out, rows.Err()
}

// PolicySummary - средняя награда по политике среди всех эпизодов
func (s *Store) PolicySummary() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT policy, AVG(mean_reward) FROM episodes GROUP BY policy`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			name string
			avg  sql.NullFloat64
		)
		if err := rows.Scan(&name, &avg); err != nil {
			return nil, err
		}
		out[name] = nullFloat(avg)
	}
	return out, rows.Err()
}

// SQLite не хранит Inf/NaN, такие значения пишутся как NULL
func finite(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

func nullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
