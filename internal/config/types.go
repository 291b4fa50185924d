package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML as either a Go
// duration string ("30s", "5m") or a plain integer of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the complete overseer configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	API     APIConfig     `yaml:"api,omitempty"`
	Task    TaskConfig    `yaml:"task"`
	Workers WorkersConfig `yaml:"workers"`
	Logs    LogsConfig    `yaml:"logs"`
	Worklog WorklogConfig `yaml:"worklog,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StateConfig defines where the task database lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the read-only reporting API server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TaskConfig bounds a single orchestrator run.
type TaskConfig struct {
	// Timeout is the wall-clock bound on one task end to end.
	Timeout Duration `yaml:"timeout"`
	// PollInterval is how often the orchestrator re-reads task status.
	PollInterval Duration `yaml:"poll_interval"`
}

// WorkersConfig defines the external worker processes.
type WorkersConfig struct {
	// GeneratorBin is the generation CLI invoked as `bin -p <prompt>`.
	GeneratorBin     string   `yaml:"generator_bin"`
	GeneratorTimeout Duration `yaml:"generator_timeout"`

	// SandboxDir confines restricted shell commands.
	SandboxDir   string   `yaml:"sandbox_dir"`
	ShellTimeout Duration `yaml:"shell_timeout"`

	// ScannerBin is the external scan executable; ScannerDir its fixed
	// working directory.
	ScannerBin     string   `yaml:"scanner_bin"`
	ScannerDir     string   `yaml:"scanner_dir"`
	ScannerTimeout Duration `yaml:"scanner_timeout"`
}

// LogsConfig defines the two append-only log files and the alert drain.
type LogsConfig struct {
	AuditPath  string `yaml:"audit_path"`
	AlertsPath string `yaml:"alerts_path"`
	DrainPath  string `yaml:"drain_path"`
}

// WorklogConfig defines the optional usage-reporting sink.
type WorklogConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	Project string `yaml:"project"`
}

// Defaults returns a Config with workable defaults; a config file is
// optional for CLI use.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "overseer",
			LogLevel: "info",
		},
		State: StateConfig{
			Path: "./data/overseer.db",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8094",
		},
		Task: TaskConfig{
			Timeout:      Duration(180 * time.Second),
			PollInterval: Duration(1 * time.Second),
		},
		Workers: WorkersConfig{
			GeneratorBin:     "claude",
			GeneratorTimeout: Duration(120 * time.Second),
			SandboxDir:       "./sandbox",
			ShellTimeout:     Duration(60 * time.Second),
			ScannerBin:       "sec-scanner",
			ScannerDir:       ".",
			ScannerTimeout:   Duration(600 * time.Second),
		},
		Logs: LogsConfig{
			AuditPath:  "./data/audit.log",
			AlertsPath: "./data/alerts.log",
			DrainPath:  "./data/notify.jsonl",
		},
		Worklog: WorklogConfig{
			Enabled: false,
			Project: "overseer",
		},
	}
}
