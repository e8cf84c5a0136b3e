package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/biodoia/gocouncil/pkg/database"
	"github.com/spf13/viper"
)

// Config rappresenta la configurazione completa dell'applicazione
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Database   database.Config  `yaml:"database" mapstructure:"database"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Council    CouncilConfig    `yaml:"council" mapstructure:"council"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// ServerConfig configurazione del server HTTP
type ServerConfig struct {
	Port int    `yaml:"port" mapstructure:"port"`
	Host string `yaml:"host" mapstructure:"host"`
	// Origini ammesse per CORS (frontend di sviluppo)
	AllowOrigins []string `yaml:"allow_origins" mapstructure:"allow_origins"`
}

// OllamaConfig configurazione del backend di inferenza
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Timeout per una singola richiesta di generazione
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout"`
	// Timeout per i probe di stato (version, ps)
	StatusTimeout string `yaml:"status_timeout" mapstructure:"status_timeout"`
}

// Advisor è un membro configurato del council: persona + modello.
// Immutabile per la durata di una deliberazione.
type Advisor struct {
	ID          string `yaml:"id" json:"id" mapstructure:"id"`
	Name        string `yaml:"name" json:"name" mapstructure:"name"`
	Model       string `yaml:"model" json:"model" mapstructure:"model"`
	PromptFile  string `yaml:"prompt_file" json:"prompt_file" mapstructure:"prompt_file"`
	Description string `yaml:"description" json:"description" mapstructure:"description"`
}

// CouncilConfig configurazione del council
type CouncilConfig struct {
	Advisors []Advisor `yaml:"advisors" mapstructure:"advisors"`
	// Modello usato dal chairman per la sintesi finale
	ChairmanModel string `yaml:"chairman_model" mapstructure:"chairman_model"`
	// Modello usato per generare i titoli delle conversazioni
	TitleModel string `yaml:"title_model" mapstructure:"title_model"`
	// Massimo numero di chiamate in volo per round (0 = numero di advisor)
	MaxInFlight int `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	// File dove persistere il roster quando viene aggiornato via API
	RosterFile string `yaml:"roster_file" mapstructure:"roster_file"`
}

// MonitoringConfig configurazione monitoring
type MonitoringConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus" mapstructure:"prometheus"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// PrometheusConfig configurazione dell'exporter Prometheus
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// LoggingConfig configurazione del logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultAdvisors è il roster usato quando nessun file di configurazione esiste
var DefaultAdvisors = []Advisor{
	{
		ID:          "albert_bourla",
		Name:        "Albert Bourla",
		Model:       "gemma3:latest",
		PromptFile:  "prompts/albert_bourla.md",
		Description: "CEO of Pfizer, focused on pharmaceutical innovation and healthcare leadership.",
	},
	{
		ID:          "elon_musk",
		Name:        "Elon Musk",
		Model:       "gpt-oss:latest",
		PromptFile:  "prompts/elon_musk.md",
		Description: "CEO of Tesla and SpaceX, known for first-principles thinking and ambitious technological goals.",
	},
	{
		ID:          "fei_fei_li",
		Name:        "Fei-Fei Li",
		Model:       "deepseek-r1:latest",
		PromptFile:  "prompts/fei_fei_li.md",
		Description: "Computer Scientist and AI Researcher, pioneer in computer vision and human-centered AI.",
	},
	{
		ID:          "cassie_kozyrkov",
		Name:        "Cassie Kozyrkov",
		Model:       "llama3.2:latest",
		PromptFile:  "prompts/cassie_kozyrkov.md",
		Description: "Chief Decision Scientist, expert in data science, decision intelligence, and AI strategy.",
	},
	{
		ID:          "andrej_karpathy",
		Name:        "Andrej Karpathy",
		Model:       "mistral:latest",
		PromptFile:  "prompts/andrej_karpathy.md",
		Description: "AI Researcher and Engineer, focused on deep learning, computer vision, and autonomous systems.",
	},
}

// Load carica la configurazione da file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Read environment variables
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Il roster vive in un file separato per poter essere riscritto via API
	// senza toccare la configurazione principale
	if len(cfg.Council.Advisors) == 0 {
		cfg.Council.Advisors = loadRoster(cfg.Council.RosterFile)
	}

	return &cfg, nil
}

// setDefaults imposta i valori di default
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.allow_origins", []string{
		"http://localhost:5173",
		"http://localhost:3000",
	})

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.connection", "./data/council.db")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.log_level", "warn")

	// Ollama defaults
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.request_timeout", "300s")
	v.SetDefault("ollama.status_timeout", "2s")

	// Council defaults
	v.SetDefault("council.chairman_model", "mistral:latest")
	v.SetDefault("council.title_model", "llama3.2:latest")
	v.SetDefault("council.max_in_flight", 0)
	v.SetDefault("council.roster_file", "./data/council_config.yaml")

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.logging.level", "info")
	v.SetDefault("monitoring.logging.format", "json")
}

// loadRoster carica il roster degli advisor dal file dedicato, o i default
func loadRoster(path string) []Advisor {
	if path == "" {
		return DefaultAdvisors
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return DefaultAdvisors
	}

	var roster struct {
		Advisors []Advisor `mapstructure:"advisors"`
	}
	if err := v.Unmarshal(&roster); err != nil || len(roster.Advisors) == 0 {
		return DefaultAdvisors
	}

	return roster.Advisors
}

// SaveRoster persiste il roster corrente sul file dedicato.
// Invocata quando il roster viene aggiornato a runtime via API.
func (c *Config) SaveRoster() error {
	path := c.Council.RosterFile
	if path == "" {
		return fmt.Errorf("roster file not configured")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create roster directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	advisors := make([]map[string]string, 0, len(c.Council.Advisors))
	for _, a := range c.Council.Advisors {
		advisors = append(advisors, map[string]string{
			"id":          a.ID,
			"name":        a.Name,
			"model":       a.Model,
			"prompt_file": a.PromptFile,
			"description": a.Description,
		})
	}
	v.Set("advisors", advisors)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write roster: %w", err)
	}

	return nil
}

// Validate valida la configurazione
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama base_url must not be empty")
	}

	if len(c.Council.Advisors) == 0 {
		return fmt.Errorf("council requires at least one advisor")
	}

	seen := make(map[string]bool, len(c.Council.Advisors))
	for _, a := range c.Council.Advisors {
		if a.ID == "" || a.Model == "" {
			return fmt.Errorf("advisor %q must have an id and a model", a.Name)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate advisor id: %s", a.ID)
		}
		seen[a.ID] = true
	}

	if c.Council.ChairmanModel == "" {
		return fmt.Errorf("council chairman_model must not be empty")
	}

	if c.Council.MaxInFlight < 0 {
		return fmt.Errorf("council max_in_flight must not be negative")
	}

	return nil
}
