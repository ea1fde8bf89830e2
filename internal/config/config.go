// Package config loads service configuration from an optional YAML file
// with environment variable overrides (PITCHARENA_*). Defaults make the
// service runnable with nothing but a Gemini API key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig
	Generation GenerationConfig
	Search     SearchConfig
	Enrich     EnrichConfig
	Queue      QueueConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// GenerationConfig configures the Gemini generation client. APIKeys feed
// the round-robin credential pool; at least one is required.
type GenerationConfig struct {
	APIKeys []string
	Model   string
	BaseURL string // override for tests and proxies; empty means the public API
	Timeout time.Duration
}

// SearchConfig configures Google Programmable Search for the enrichment
// stage. Enrichment is skipped entirely when either credential is empty.
type SearchConfig struct {
	APIKey          string
	EngineID        string
	Timeout         time.Duration
	ResultsPerQuery int
}

// Configured reports whether the search credentials are present.
func (s SearchConfig) Configured() bool {
	return s.APIKey != "" && s.EngineID != ""
}

type EnrichConfig struct {
	FetchPages   int
	ExcerptChars int
	CharBudget   int
}

type QueueConfig struct {
	Capacity  int
	Retention time.Duration
	// AllowResubmit selects the permissive duplicate policy: identities
	// may submit again after their previous job reaches a terminal state.
	AllowResubmit bool
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Generation: GenerationConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 45 * time.Second,
		},
		Search: SearchConfig{
			Timeout:         10 * time.Second,
			ResultsPerQuery: 4,
		},
		Enrich: EnrichConfig{
			FetchPages:   2,
			ExcerptChars: 600,
			CharBudget:   6000,
		},
		Queue: QueueConfig{
			Capacity:  512,
			Retention: time.Hour,
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// rawConfig mirrors Config for YAML unmarshaling: snake_case keys and
// durations as strings.
type rawConfig struct {
	Server struct {
		Port    *int `yaml:"port"`
		MCPPort *int `yaml:"mcp_port"`
	} `yaml:"server"`
	Generation struct {
		APIKeys []string `yaml:"api_keys"`
		Model   string   `yaml:"model"`
		BaseURL string   `yaml:"base_url"`
		Timeout string   `yaml:"timeout"`
	} `yaml:"generation"`
	Search struct {
		APIKey          string `yaml:"api_key"`
		EngineID        string `yaml:"engine_id"`
		Timeout         string `yaml:"timeout"`
		ResultsPerQuery *int   `yaml:"results_per_query"`
	} `yaml:"search"`
	Enrich struct {
		FetchPages   *int `yaml:"fetch_pages"`
		ExcerptChars *int `yaml:"excerpt_chars"`
		CharBudget   *int `yaml:"char_budget"`
	} `yaml:"enrich"`
	Queue struct {
		Capacity      *int   `yaml:"capacity"`
		Retention     string `yaml:"retention"`
		AllowResubmit *bool  `yaml:"allow_resubmit"`
	} `yaml:"queue"`
	Storage struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then PITCHARENA_* environment variables. The loaded
// config must carry at least one generation API key.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if len(cfg.Generation.APIKeys) == 0 {
		return Config{}, fmt.Errorf("missing required config: at least one Gemini API key. " +
			"Set generation.api_keys in the config file or PITCHARENA_GEMINI_API_KEYS (comma-separated)")
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Allow ${VAR} references so key material can live in the environment.
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	setInt(&cfg.Server.Port, raw.Server.Port)
	setInt(&cfg.Server.MCPPort, raw.Server.MCPPort)

	if len(raw.Generation.APIKeys) > 0 {
		cfg.Generation.APIKeys = raw.Generation.APIKeys
	}
	setString(&cfg.Generation.Model, raw.Generation.Model)
	setString(&cfg.Generation.BaseURL, raw.Generation.BaseURL)
	if err := setDuration(&cfg.Generation.Timeout, raw.Generation.Timeout, "generation.timeout"); err != nil {
		return err
	}

	setString(&cfg.Search.APIKey, raw.Search.APIKey)
	setString(&cfg.Search.EngineID, raw.Search.EngineID)
	if err := setDuration(&cfg.Search.Timeout, raw.Search.Timeout, "search.timeout"); err != nil {
		return err
	}
	setInt(&cfg.Search.ResultsPerQuery, raw.Search.ResultsPerQuery)

	setInt(&cfg.Enrich.FetchPages, raw.Enrich.FetchPages)
	setInt(&cfg.Enrich.ExcerptChars, raw.Enrich.ExcerptChars)
	setInt(&cfg.Enrich.CharBudget, raw.Enrich.CharBudget)

	setInt(&cfg.Queue.Capacity, raw.Queue.Capacity)
	if err := setDuration(&cfg.Queue.Retention, raw.Queue.Retention, "queue.retention"); err != nil {
		return err
	}
	if raw.Queue.AllowResubmit != nil {
		cfg.Queue.AllowResubmit = *raw.Queue.AllowResubmit
	}

	setString(&cfg.Storage.DataDir, raw.Storage.DataDir)
	setString(&cfg.Log.Level, raw.Log.Level)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v, key string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func applyEnvOverrides(cfg *Config) {
	envString := func(name string, apply func(string)) {
		if v := os.Getenv(name); v != "" {
			apply(v)
		}
	}
	envInt := func(name string, apply func(int)) {
		raw := os.Getenv(name)
		if raw == "" {
			return
		}
		if i, err := strconv.Atoi(raw); err == nil {
			apply(i)
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
		}
	}

	envInt("PITCHARENA_SERVER_PORT", func(i int) { cfg.Server.Port = i })
	envInt("PITCHARENA_SERVER_MCP_PORT", func(i int) { cfg.Server.MCPPort = i })

	envString("PITCHARENA_GEMINI_API_KEYS", func(v string) {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Generation.APIKeys = keys
	})
	envString("PITCHARENA_GEMINI_MODEL", func(v string) { cfg.Generation.Model = v })
	envString("PITCHARENA_GEMINI_BASE_URL", func(v string) { cfg.Generation.BaseURL = v })

	envString("PITCHARENA_SEARCH_API_KEY", func(v string) { cfg.Search.APIKey = v })
	envString("PITCHARENA_SEARCH_ENGINE_ID", func(v string) { cfg.Search.EngineID = v })

	envInt("PITCHARENA_QUEUE_CAPACITY", func(i int) { cfg.Queue.Capacity = i })
	envString("PITCHARENA_QUEUE_ALLOW_RESUBMIT", func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Queue.AllowResubmit = b
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var PITCHARENA_QUEUE_ALLOW_RESUBMIT=%q: %v. Using default value.\n", v, err)
		}
	})

	envString("PITCHARENA_STORAGE_DATA_DIR", func(v string) { cfg.Storage.DataDir = v })
	envString("PITCHARENA_LOG_LEVEL", func(v string) { cfg.Log.Level = v })
}
