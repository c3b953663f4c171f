package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: production\n"))
	require.NoError(t, err)

	assert.Equal(t, 2333, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.1, cfg.Retrieval.MinScore, 1e-9)
	assert.Equal(t, 180, cfg.Notes.SectionWordBaseline)
	assert.Equal(t, 7, cfg.Notes.TaskRetentionDays)
	assert.Contains(t, cfg.DSN, "tcp(127.0.0.1:3306)")
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
port: 8080
env: development
access_token: " secret "
database:
  host: db.internal
  name: notes
redis:
  host: cache.internal
  db: 2
retrieval:
  top_k: 5
  min_score: 0.25
notes:
  section_word_baseline: 200
ai:
  max_output_tokens: 2000
  providers:
    - id: main
      type: OpenAI
      api_key: sk-test
      enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "secret", cfg.AccessToken)
	assert.Contains(t, cfg.DSN, "tcp(db.internal:3306)/notes")
	assert.Equal(t, "redis://cache.internal:6379/2", cfg.RedisURL)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.25, cfg.Retrieval.MinScore, 1e-9)
	assert.Equal(t, 200, cfg.Notes.SectionWordBaseline)

	p := cfg.AI.EnabledProvider()
	require.NotNil(t, p)
	assert.Equal(t, "main", p.ID)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "prot: 8080\n"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "port: 70000\n"},
		{"bad database port", "database:\n  port: 70000\n"},
		{"bad min_score", "retrieval:\n  min_score: 1.5\n"},
		{"provider without id", "ai:\n  providers:\n    - type: OpenAI\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestEnabledProviderSelection(t *testing.T) {
	cfg := AIConfig{
		Providers: []AIProvider{
			{ID: "off", Enabled: false},
			{ID: "first", Enabled: true, DefaultModel: "model-a"},
			{ID: "second", Enabled: true, DefaultModel: "model-b"},
		},
	}

	p := cfg.EnabledProvider()
	require.NotNil(t, p)
	assert.Equal(t, "first", p.ID)

	cfg.NoteProviderID = "second"
	p = cfg.EnabledProvider()
	require.NotNil(t, p)
	assert.Equal(t, "second", p.ID)
	assert.Equal(t, "model-b", p.DefaultModel)

	cfg.NoteModel = "override"
	p = cfg.EnabledProvider()
	require.NotNil(t, p)
	assert.Equal(t, "override", p.DefaultModel)

	none := AIConfig{}
	assert.Nil(t, none.EnabledProvider())
}

func TestOriginAllowed(t *testing.T) {
	cfg := AppConfig{AllowedOrigins: []string{"app.example.com", "*.notes.example.com", "localhost:*"}}

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact host", "https://app.example.com", true},
		{"wildcard subdomain", "https://eu.notes.example.com", true},
		{"wildcard port", "http://localhost:5173", true},
		{"bare pattern string", "app.example.com", true},
		{"other host", "https://evil.example.com", false},
		{"suffix lookalike", "https://xapp.example.com", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.OriginAllowed(tt.origin))
		})
	}
}
