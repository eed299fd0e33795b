// Package config loads the tuneables named in spec.md 6 from a YAML file,
// mirroring the nested-struct-with-yaml-tags shape used throughout the
// retrieval pack's Cobra-based CLIs (e.g. ChuLiYu-raft-recovery's
// internal/cli.Config).
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scheduler holds every scheduler-side tuneable from spec.md 6.
type Scheduler struct {
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	DeadTimeout       time.Duration `yaml:"dead_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	StragglerThreshold float64      `yaml:"straggler_threshold"`
	MinBaselineRatio  float64       `yaml:"min_baseline_ratio"`
	MaxAttempts       int           `yaml:"max_attempts"`
	CancelGrace       time.Duration `yaml:"cancel_grace"`
	TaskDeadlineFactor float64      `yaml:"task_deadline_factor"`
	TmpGCAge          time.Duration `yaml:"tmp_gc_age"`
	ListenAddr        string        `yaml:"listen_addr"`
	BlobStoreRoot     string        `yaml:"blob_store_root"`
	RedisAddr         string        `yaml:"redis_addr"`
	AuditDSN          string        `yaml:"audit_dsn"`
	DispatchRateLimit float64       `yaml:"dispatch_rate_limit"`
	DispatchBurst     int           `yaml:"dispatch_burst"`
}

// Worker holds every worker-side tuneable.
type Worker struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Capacity          int           `yaml:"capacity"`
	ListenAddr        string        `yaml:"listen_addr"`
	SchedulerURL      string        `yaml:"scheduler_url"`
	BlobStoreRoot     string        `yaml:"blob_store_root"`
	RedisAddr         string        `yaml:"redis_addr"`
	SimulateStraggler bool          `yaml:"simulate_straggler"`
	StragglerDelay    time.Duration `yaml:"straggler_delay"`
}

// DefaultScheduler returns the spec.md 6 defaults.
func DefaultScheduler() Scheduler {
	return Scheduler{
		HeartbeatTimeout:   10 * time.Second,
		DeadTimeout:        30 * time.Second,
		SweepInterval:      1 * time.Second,
		CheckInterval:      5 * time.Second,
		StragglerThreshold: 1.5,
		MinBaselineRatio:   0.25,
		MaxAttempts:        3,
		CancelGrace:        10 * time.Second,
		TaskDeadlineFactor: 5,
		TmpGCAge:           1 * time.Hour,
		ListenAddr:         ":8090",
		BlobStoreRoot:      "./data",
		DispatchRateLimit:  10,
		DispatchBurst:      5,
	}
}

// DefaultWorker returns the spec.md 6 worker defaults.
func DefaultWorker() Worker {
	return Worker{
		HeartbeatInterval: 2 * time.Second,
		Capacity:          1,
		ListenAddr:        ":8091",
		SchedulerURL:      "http://localhost:8090",
		BlobStoreRoot:     "./data",
		StragglerDelay:    10 * time.Second,
	}
}

// LoadScheduler reads a YAML file into a Scheduler config, starting from
// defaults so a partial file only overrides what it specifies.
func LoadScheduler(path string) (Scheduler, error) {
	cfg := DefaultScheduler()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWorker reads a YAML file into a Worker config.
func LoadWorker(path string) (Worker, error) {
	cfg := DefaultWorker()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
