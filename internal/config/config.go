// Package config loads and validates the YAML job configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/pathutil"
)

// Mode selects how destination-only files are treated.
type Mode string

const (
	// ModeClone mirrors the destination to the source, quarantining
	// destination-only files in the rollback vault.
	ModeClone Mode = "clone"
	// ModeSync adds and updates only; the destination is never pruned.
	ModeSync Mode = "sync"
	// ModeSafetyNet moves destination-only files into the
	// date-partitioned SafetyNet instead of the vault.
	ModeSafetyNet Mode = "safety_net"
)

// DefaultSafetyNetDays is applied when a job omits safety_net_days.
const DefaultSafetyNetDays = 30

// BackupJob is the immutable descriptor of one reconciliation task.
// Loaded at start, never mutated.
type BackupJob struct {
	Name          string   `yaml:"name"`
	Source        string   `yaml:"source"`
	Destination   string   `yaml:"destination"`
	Mode          Mode     `yaml:"mode"`
	Exclude       []string `yaml:"exclude"`
	SafetyNetDays int      `yaml:"safety_net_days"`
	Verify        bool     `yaml:"verify"`
}

// Config is the top-level configuration file.
type Config struct {
	// Group names the state-file subtree for this configuration; two
	// configs with distinct groups never touch each other's state.
	Group string `yaml:"group"`

	// StateRoot overrides where journals/checkpoints/snapshots live.
	// Empty means <app root>/state.
	StateRoot string `yaml:"state_root"`

	// LogLevel feeds the logger (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	Jobs []BackupJob `yaml:"jobs"`
}

// Load reads, parses, and validates a configuration file. Configuration
// problems are fatal before any run starts.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if cfg.Group == "" {
		cfg.Group = "default"
	}
	if err := validGroup(cfg.Group); err != nil {
		return nil, err
	}
	if len(cfg.Jobs) == 0 {
		return nil, errors.New("config declares no jobs")
	}

	seen := make(map[string]struct{}, len(cfg.Jobs))
	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		if err := validateJob(job); err != nil {
			return nil, errors.Wrapf(err, "job %q", job.Name)
		}
		if _, dup := seen[job.Name]; dup {
			return nil, errors.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = struct{}{}
	}
	return &cfg, nil
}

func validateJob(job *BackupJob) error {
	if job.Name == "" {
		return errors.New("missing name")
	}
	if strings.ContainsAny(job.Name, `/\`) {
		return errors.New("name must not contain path separators")
	}
	if job.Source == "" || job.Destination == "" {
		return errors.New("source and destination are required")
	}

	src, err := filepath.Abs(job.Source)
	if err != nil {
		return errors.Wrap(err, "resolve source")
	}
	dst, err := filepath.Abs(job.Destination)
	if err != nil {
		return errors.Wrap(err, "resolve destination")
	}
	job.Source = src
	job.Destination = dst

	if pathutil.SamePath(src, dst) {
		return errors.New("source and destination are the same path")
	}
	if pathutil.IsDescendant(src, dst) {
		return errors.New("destination must not be inside source")
	}
	if pathutil.IsDescendant(dst, src) {
		return errors.New("source must not be inside destination")
	}

	switch job.Mode {
	case ModeClone, ModeSync, ModeSafetyNet:
	case "":
		return errors.New("missing mode (clone, sync, or safety_net)")
	default:
		return errors.Errorf("unknown mode %q (want clone, sync, or safety_net)", job.Mode)
	}

	if job.SafetyNetDays < 0 {
		return errors.New("safety_net_days must be positive")
	}
	if job.SafetyNetDays == 0 {
		job.SafetyNetDays = DefaultSafetyNetDays
	}
	return nil
}

// validGroup keeps the group name usable as a single directory component.
func validGroup(group string) error {
	if strings.ContainsAny(group, `/\`) || group == "." || group == ".." {
		return errors.Errorf("invalid group name %q", group)
	}
	return nil
}

// Job looks a job up by name.
func (c *Config) Job(name string) (*BackupJob, error) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], nil
		}
	}
	return nil, errors.Errorf("no job named %q in config", name)
}
