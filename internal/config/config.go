package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort        = 2333
	defaultEnv         = "development"
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "studynotes"
	defaultDBCharset   = "utf8mb4"
	defaultDBLoc       = "Local"
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultRedisDB     = 0
	defaultRetrievalK  = 3
	defaultMinScore    = 0.1
	defaultQueryMS     = 3000
	defaultBaseline    = 180
	defaultMaxTokens   = 1200
	defaultTaskTTLDays = 7
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"` // MySQL DSN
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Env            string                `yaml:"env"` // "development" | "production"
	AccessToken    string                `yaml:"access_token"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AI             AIConfig              `yaml:"ai"`
	Retrieval      RetrievalConfig       `yaml:"retrieval"`
	Notes          NotesConfig           `yaml:"notes"`
}

type DatabaseRuntimeConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
	Loc      string `yaml:"loc"`
}

type RedisRuntimeConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

// AIConfig configures the text-generation capability.
type AIConfig struct {
	Providers       []AIProvider `yaml:"providers"`
	NoteProviderID  string       `yaml:"note_provider_id"` // empty = first enabled
	NoteModel       string       `yaml:"note_model"`       // overrides provider default
	MaxOutputTokens int          `yaml:"max_output_tokens"`
}

// AIProvider describes one upstream LLM endpoint.
type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // OpenAI | OpenAI-Compatible | Anthropic | OpenRouter
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// RetrievalConfig tunes the session-scoped chunk search.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	MinScore       float64 `yaml:"min_score"`
	QueryTimeoutMS int     `yaml:"query_timeout_ms"`
}

// NotesConfig tunes note generation and retention.
type NotesConfig struct {
	SectionWordBaseline int `yaml:"section_word_baseline"`
	TaskRetentionDays   int `yaml:"task_retention_days"`
}

type rawAppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"`
	DatabaseURL    string                `yaml:"database_url"`
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Env            string                `yaml:"env"`
	AccessToken    string                `yaml:"access_token"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	LogDir         string                `yaml:"log_dir"`
	AI             AIConfig              `yaml:"ai"`
	Retrieval      RetrievalConfig       `yaml:"retrieval"`
	Notes          NotesConfig           `yaml:"notes"`
}

// Load reads and validates the YAML config file.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRaw(&cfg, raw)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	if cfg.Retrieval.TopK < 1 {
		return nil, fmt.Errorf("invalid retrieval.top_k %d in %q, expected >= 1", cfg.Retrieval.TopK, path)
	}
	if cfg.Retrieval.MinScore < 0 || cfg.Retrieval.MinScore > 1 {
		return nil, fmt.Errorf("invalid retrieval.min_score %v in %q, expected 0-1", cfg.Retrieval.MinScore, path)
	}
	for i, p := range cfg.AI.Providers {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("ai.providers[%d] in %q is missing an id", i, path)
		}
	}

	if cfg.DSN == "" {
		cfg.DSN = buildMySQLDSN(cfg.Database)
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = buildRedisURL(cfg.Redis)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
			Loc:      defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		AI: AIConfig{
			Providers:       []AIProvider{},
			MaxOutputTokens: defaultMaxTokens,
		},
		Retrieval: RetrievalConfig{
			TopK:           defaultRetrievalK,
			MinScore:       defaultMinScore,
			QueryTimeoutMS: defaultQueryMS,
		},
		Notes: NotesConfig{
			SectionWordBaseline: defaultBaseline,
			TaskRetentionDays:   defaultTaskTTLDays,
		},
	}
}

func applyRaw(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port > 0 {
		cfg.Port = raw.Port
	}
	if raw.DSN != "" {
		cfg.DSN = raw.DSN
	} else if raw.DatabaseURL != "" {
		cfg.DSN = raw.DatabaseURL
	}
	if raw.RedisURL != "" {
		cfg.RedisURL = raw.RedisURL
	}
	mergeDatabase(&cfg.Database, raw.Database)
	mergeRedis(&cfg.Redis, raw.Redis)
	if raw.Env != "" {
		cfg.Env = strings.ToLower(strings.TrimSpace(raw.Env))
	}
	cfg.AccessToken = strings.TrimSpace(raw.AccessToken)
	if len(raw.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = raw.AllowedOrigins
	}
	if raw.Paths.Logs != "" {
		cfg.Paths.Logs = raw.Paths.Logs
	} else if raw.LogDir != "" {
		cfg.Paths.Logs = raw.LogDir
	}
	if len(raw.AI.Providers) > 0 {
		cfg.AI.Providers = raw.AI.Providers
	}
	if raw.AI.NoteProviderID != "" {
		cfg.AI.NoteProviderID = raw.AI.NoteProviderID
	}
	if raw.AI.NoteModel != "" {
		cfg.AI.NoteModel = raw.AI.NoteModel
	}
	if raw.AI.MaxOutputTokens > 0 {
		cfg.AI.MaxOutputTokens = raw.AI.MaxOutputTokens
	}
	if raw.Retrieval.TopK > 0 {
		cfg.Retrieval.TopK = raw.Retrieval.TopK
	}
	if raw.Retrieval.MinScore > 0 {
		cfg.Retrieval.MinScore = raw.Retrieval.MinScore
	}
	if raw.Retrieval.QueryTimeoutMS > 0 {
		cfg.Retrieval.QueryTimeoutMS = raw.Retrieval.QueryTimeoutMS
	}
	if raw.Notes.SectionWordBaseline > 0 {
		cfg.Notes.SectionWordBaseline = raw.Notes.SectionWordBaseline
	}
	if raw.Notes.TaskRetentionDays > 0 {
		cfg.Notes.TaskRetentionDays = raw.Notes.TaskRetentionDays
	}
}

func mergeDatabase(dst *DatabaseRuntimeConfig, src DatabaseRuntimeConfig) {
	if src.DSN != "" {
		dst.DSN = src.DSN
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port > 0 {
		dst.Port = src.Port
	}
	if src.User != "" {
		dst.User = src.User
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Charset != "" {
		dst.Charset = src.Charset
	}
	if src.Loc != "" {
		dst.Loc = src.Loc
	}
}

func mergeRedis(dst *RedisRuntimeConfig, src RedisRuntimeConfig) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port > 0 {
		dst.Port = src.Port
	}
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.DB > 0 {
		dst.DB = src.DB
	}
}

// OriginAllowed reports whether a browser Origin header matches one of
// the allowed_origins patterns. Patterns compare against the origin's
// host[:port] part: "*.example.com" accepts any subdomain and
// "localhost:*" accepts any port.
func (c *AppConfig) OriginAllowed(origin string) bool {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}

	for _, pattern := range c.AllowedOrigins {
		switch {
		case pattern == host:
			return true
		case strings.HasPrefix(pattern, "*."):
			if strings.HasSuffix(host, pattern[1:]) {
				return true
			}
		case strings.HasSuffix(pattern, ":*"):
			if strings.HasPrefix(host, pattern[:len(pattern)-1]) {
				return true
			}
		}
	}
	return false
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "development") || strings.EqualFold(strings.TrimSpace(c.Env), "dev")
}

// EnabledProvider returns the AI provider selected for note generation,
// or nil when none is configured and enabled.
func (c *AIConfig) EnabledProvider() *AIProvider {
	pick := func(p AIProvider) *AIProvider {
		selected := p
		if strings.TrimSpace(c.NoteModel) != "" {
			selected.DefaultModel = strings.TrimSpace(c.NoteModel)
		}
		return &selected
	}

	wanted := strings.TrimSpace(c.NoteProviderID)
	if wanted != "" {
		for _, p := range c.Providers {
			if p.Enabled && strings.TrimSpace(p.ID) == wanted {
				return pick(p)
			}
		}
	}
	for _, p := range c.Providers {
		if p.Enabled {
			return pick(p)
		}
	}
	return nil
}
