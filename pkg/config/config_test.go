package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "300s", cfg.Ollama.RequestTimeout)
	assert.Equal(t, "mistral:latest", cfg.Council.ChairmanModel)

	// Without a roster file the default advisors back the council
	require.Len(t, cfg.Council.Advisors, 5)
	assert.Equal(t, DefaultAdvisors, cfg.Council.Advisors)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  port: 9000
ollama:
  base_url: http://ollama:11434
council:
  chairman_model: llama3.2:latest
  advisors:
    - id: solo
      name: Solo
      model: mistral:latest
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://ollama:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "llama3.2:latest", cfg.Council.ChairmanModel)
	require.Len(t, cfg.Council.Advisors, 1)
	assert.Equal(t, "solo", cfg.Council.Advisors[0].ID)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8000},
			Ollama: OllamaConfig{BaseURL: "http://localhost:11434"},
			Council: CouncilConfig{
				Advisors: []Advisor{
					{ID: "alice", Name: "Alice", Model: "model-a"},
					{ID: "bob", Name: "Bob", Model: "model-b"},
				},
				ChairmanModel: "chairman",
			},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Port = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("missing ollama base url", func(t *testing.T) {
		cfg := valid()
		cfg.Ollama.BaseURL = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("empty roster", func(t *testing.T) {
		cfg := valid()
		cfg.Council.Advisors = nil
		require.Error(t, cfg.Validate())
	})

	t.Run("advisor without model", func(t *testing.T) {
		cfg := valid()
		cfg.Council.Advisors[0].Model = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("duplicate advisor ids", func(t *testing.T) {
		cfg := valid()
		cfg.Council.Advisors[1].ID = "alice"
		require.Error(t, cfg.Validate())
	})

	t.Run("missing chairman model", func(t *testing.T) {
		cfg := valid()
		cfg.Council.ChairmanModel = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("negative max in flight", func(t *testing.T) {
		cfg := valid()
		cfg.Council.MaxInFlight = -1
		require.Error(t, cfg.Validate())
	})
}

func TestConfig_SaveRoster(t *testing.T) {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "council_config.yaml")

	cfg := &Config{
		Council: CouncilConfig{
			RosterFile: rosterPath,
			Advisors: []Advisor{
				{ID: "ada", Name: "Ada Lovelace", Model: "mistral:latest", PromptFile: "prompts/ada.md", Description: "First programmer."},
				{ID: "alan", Name: "Alan Turing", Model: "llama3.2:latest", PromptFile: "prompts/alan.md"},
			},
		},
	}

	require.NoError(t, cfg.SaveRoster())
	require.FileExists(t, rosterPath)

	// The persisted roster replaces the defaults on the next load
	loaded := loadRoster(rosterPath)
	require.Len(t, loaded, 2)
	assert.Equal(t, "ada", loaded[0].ID)
	assert.Equal(t, "Ada Lovelace", loaded[0].Name)
	assert.Equal(t, "prompts/ada.md", loaded[0].PromptFile)
	assert.Equal(t, "alan", loaded[1].ID)
}

func TestLoadRoster_Fallbacks(t *testing.T) {
	t.Run("empty path falls back to defaults", func(t *testing.T) {
		assert.Equal(t, DefaultAdvisors, loadRoster(""))
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		assert.Equal(t, DefaultAdvisors, loadRoster(filepath.Join(t.TempDir(), "nope.yaml")))
	})

	t.Run("empty roster falls back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "roster.yaml")
		require.NoError(t, os.WriteFile(path, []byte("advisors: []\n"), 0o644))
		assert.Equal(t, DefaultAdvisors, loadRoster(path))
	})
}
