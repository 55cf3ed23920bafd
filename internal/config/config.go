package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	AI       AI       `yaml:"ai"`
	Search   Search   `yaml:"search"`
	TTS      TTS      `yaml:"tts"`
	Audio    Audio    `yaml:"audio"`
	Storage  Storage  `yaml:"storage"`
	Site     Site     `yaml:"site"`
	Schedule Schedule `yaml:"schedule"`
	Events   Events   `yaml:"events"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Output   Output   `yaml:"output"`
	Shows    []Show   `yaml:"shows"`
}

// AI selects the completion provider. Provider is one of openai, grok,
// anthropic or ollama.
type AI struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retry          Retry  `yaml:"retry"`
}

type Retry struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type Search struct {
	Enabled        bool   `yaml:"enabled"`
	APIKeyEnv      string `yaml:"api_key_env"`
	EngineIDEnv    string `yaml:"engine_id_env"`
	BaseURL        string `yaml:"base_url"`
	FetchPages     bool   `yaml:"fetch_pages"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type TTS struct {
	APIKeyEnv       string `yaml:"api_key_env"`
	BaseURL         string `yaml:"base_url"`
	ModelID         string `yaml:"model_id"`
	OutputFormat    string `yaml:"output_format"`
	MaxChunkChars   int    `yaml:"max_chunk_chars"`
	MaxRequestChars int    `yaml:"max_request_chars"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type Audio struct {
	FFmpeg      string   `yaml:"ffmpeg"`
	FFprobe     string   `yaml:"ffprobe"`
	Bitrate     string   `yaml:"bitrate"`
	FadeSeconds float64  `yaml:"fade_seconds"`
	Loudness    Loudness `yaml:"loudness"`
}

// Loudness holds the EBU R128 targets passed to ffmpeg's loudnorm filter.
type Loudness struct {
	Integrated float64 `yaml:"integrated"`
	Range      float64 `yaml:"range"`
	TruePeak   float64 `yaml:"true_peak"`
}

type Storage struct {
	MediaRoot string `yaml:"media_root"`
}

type Site struct {
	BaseURL string `yaml:"base_url"`
}

type Schedule struct {
	Timezone string `yaml:"timezone"`
	RunAt    string `yaml:"run_at"`
}

type Events struct {
	AMQPURL    string `yaml:"amqp_url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type Server struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

// ConfigDir returns the XDG config directory for saintcast.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "saintcast")
}

// DataDir returns the XDG data directory for saintcast.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "saintcast")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/saintcast/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'saintcast init' to create a default config",
		xdgConfig,
	)
}

// Load reads a config YAML file. A .env file next to the working directory is
// loaded first so ${VAR} references and api_key_env lookups can see it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse([]byte(os.ExpandEnv(string(data))))
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		AI: AI{
			Provider:       "openai",
			Model:          "gpt-5",
			MaxTokens:      8000,
			TimeoutSeconds: 300,
			Retry: Retry{
				MaxAttempts:    3,
				InitialBackoff: time.Second,
				MaxBackoff:     10 * time.Second,
			},
		},
		Search: Search{
			Enabled:        true,
			APIKeyEnv:      "GOOGLE_SEARCH_API_KEY",
			EngineIDEnv:    "GOOGLE_CUSTOM_SEARCH_ENGINE_ID",
			BaseURL:        "https://www.googleapis.com/customsearch/v1",
			TimeoutSeconds: 15,
		},
		TTS: TTS{
			APIKeyEnv:       "ELEVEN_LABS_API_KEY",
			BaseURL:         "https://api.elevenlabs.io",
			ModelID:         "eleven_v3",
			OutputFormat:    "mp3_44100_128",
			MaxChunkChars:   900,
			MaxRequestChars: 2500,
			TimeoutSeconds:  300,
		},
		Audio: Audio{
			FFmpeg:      "ffmpeg",
			FFprobe:     "ffprobe",
			Bitrate:     "128k",
			FadeSeconds: 2,
			Loudness:    Loudness{Integrated: -16, Range: 11, TruePeak: -1.5},
		},
		Site: Site{BaseURL: "https://saints.benlocher.com"},
		Schedule: Schedule{
			Timezone: "America/New_York",
			RunAt:    "06:00",
		},
		Events: Events{
			Exchange:   "saintcast",
			RoutingKey: "episode.created",
			QueueName:  "saintcast_episodes",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO", Format: "auto"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Shows) == 0 {
		cfg.Shows = []Show{{Name: "saints-and-seasons"}}
	}
	for i := range cfg.Shows {
		cfg.Shows[i].applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var knownProviders = map[string]bool{"openai": true, "grok": true, "anthropic": true, "ollama": true}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if !knownProviders[strings.ToLower(c.AI.Provider)] {
		return fmt.Errorf("invalid config: unsupported ai.provider %q", c.AI.Provider)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid config: schedule.timezone: %w", err)
	}
	if _, _, err := c.Schedule.Clock(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Shows))
	for _, s := range c.Shows {
		if seen[s.Name] {
			return fmt.Errorf("invalid config: duplicate show %q", s.Name)
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return fmt.Errorf("invalid config: show %q: %w", s.Name, err)
		}
		if s.AI != nil && s.AI.Provider != "" && !knownProviders[strings.ToLower(s.AI.Provider)] {
			return fmt.Errorf("invalid config: show %q: unsupported ai.provider %q", s.Name, s.AI.Provider)
		}
	}
	return nil
}

// Show returns the show with the given name, or the first show when name is
// empty.
func (c *Config) Show(name string) (Show, error) {
	if name == "" {
		return c.Shows[0], nil
	}
	for _, s := range c.Shows {
		if s.Name == name {
			return s, nil
		}
	}
	return Show{}, fmt.Errorf("show %q not configured", name)
}

// ShowAI merges a show's AI override onto the global AI settings.
func (c *Config) ShowAI(s Show) AI {
	ai := c.AI
	if s.AI == nil {
		return ai
	}
	if s.AI.Provider != "" {
		ai.Provider = s.AI.Provider
		// A provider switch invalidates provider-specific endpoint and key settings.
		ai.BaseURL = ""
		ai.APIKeyEnv = ""
	}
	if s.AI.Model != "" {
		ai.Model = s.AI.Model
	}
	if s.AI.BaseURL != "" {
		ai.BaseURL = s.AI.BaseURL
	}
	if s.AI.APIKeyEnv != "" {
		ai.APIKeyEnv = s.AI.APIKeyEnv
	}
	if s.AI.MaxTokens > 0 {
		ai.MaxTokens = s.AI.MaxTokens
	}
	return ai
}

// Clock parses RunAt as HH:MM.
func (s Schedule) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.RunAt))
	if err != nil {
		return 0, 0, fmt.Errorf("schedule.run_at %q: expected HH:MM", s.RunAt)
	}
	return t.Hour(), t.Minute(), nil
}

// Location returns the schedule's time zone. Validate guarantees it loads.
func (s Schedule) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetMediaRoot returns the media root, defaulting to <data dir>/media.
func (c *Config) GetMediaRoot() string {
	if c.Storage.MediaRoot != "" {
		return c.Storage.MediaRoot
	}
	return filepath.Join(c.GetDataDir(), "media")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
