// Package config loads lungrag settings from a YAML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "lungrag"
	// ConfigFile is the config file name under ConfigDir.
	ConfigFile = "config.yml"
	// LocalConfigFile is looked up in the working directory.
	LocalConfigFile = "lungrag.yml"

	// IndexFile is the default index file name inside the corpus directory.
	IndexFile = "lungrag.idx"
	// CatalogFile is the default catalog name next to the index.
	CatalogFile = "lungrag-catalog.db"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Environment variables that override file settings.
const (
	EnvConfig        = "LUNGRAG_CONFIG"
	EnvCorpusDir     = "LUNGRAG_CORPUS_DIR"
	EnvIndexPath     = "LUNGRAG_INDEX_PATH"
	EnvLLMAPIKey     = "LUNGRAG_LLM_API_KEY"
	EnvLLMBaseURL    = "LUNGRAG_LLM_BASE_URL"
	EnvOllamaURL     = "LUNGRAG_OLLAMA_URL"
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete lungrag configuration.
type Config struct {
	CorpusDir   string          `yaml:"corpus_dir" json:"corpus_dir"`
	IndexPath   string          `yaml:"index_path,omitempty" json:"index_path,omitempty"`
	CatalogPath string          `yaml:"catalog_path,omitempty" json:"catalog_path,omitempty"`
	Chunk       ChunkConfig     `yaml:"chunk" json:"chunk"`
	Embedding   EmbeddingConfig `yaml:"embedding" json:"embedding"`
	OCR         OCRConfig       `yaml:"ocr" json:"ocr"`
	LLM         LLMConfig       `yaml:"llm" json:"llm"`
	Retrieval   RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Server      ServerConfig    `yaml:"server" json:"server"`
	Logging     LoggingConfig   `yaml:"logging" json:"logging"`
}

// ChunkConfig controls the character-window chunker.
type ChunkConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	Dimensions  int           `yaml:"dimensions" json:"dimensions"`
	OllamaURL   string        `yaml:"ollama_url" json:"ollama_url"`
	OpenAIURL   string        `yaml:"openai_url,omitempty" json:"openai_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	RateLimit   float64       `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// OCRConfig controls the OCR fallback.
type OCRConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	DPI       float64       `yaml:"dpi" json:"dpi"`
	Tesseract string        `yaml:"tesseract" json:"tesseract"`
	Language  string        `yaml:"language" json:"language"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// LLMConfig configures the hosted chat model.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	APIKey      string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	RateLimit   float64       `yaml:"rate_limit" json:"rate_limit"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// RetrievalConfig controls how many passages reach the prompt.
type RetrievalConfig struct {
	TopK            int `yaml:"top_k" json:"top_k"`
	MaxContextChars int `yaml:"max_context_chars" json:"max_context_chars"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" json:"cors_origins"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CorpusDir: "corpus",
		Chunk:     ChunkConfig{Size: 500, Overlap: 200},
		Embedding: EmbeddingConfig{
			Provider:    ProviderOllama,
			Model:       "all-minilm:l6-v2",
			Dimensions:  384,
			OllamaURL:   "http://localhost:11434",
			Concurrency: 4,
			Timeout:     30 * time.Second,
		},
		OCR: OCRConfig{
			Enabled:   true,
			DPI:       300,
			Tesseract: "tesseract",
			Language:  "eng",
			Timeout:   2 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "mistralai/mixtral-8x7b-instruct",
			Temperature: 0.3,
			RateLimit:   2,
			Timeout:     60 * time.Second,
		},
		Retrieval: RetrievalConfig{TopK: 4, MaxContextChars: 6000},
		Server: ServerConfig{
			Port:            5005,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// GlobalConfigPath returns the per-user config file path.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/lungrag/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// ResolvePath picks the config file to read. An explicit path or
// $LUNGRAG_CONFIG must exist; ./lungrag.yml and the per-user file are used
// only if present. It returns "" when no file applies.
func ResolvePath(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(EnvConfig)} {
		if p == "" {
			continue
		}
		p = ExpandPath(p)
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
		return p, nil
	}
	for _, p := range []string{LocalConfigFile, GlobalConfigPath()} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load builds the configuration: defaults, then the resolved YAML file,
// then .env and environment overrides. It returns the file used ("" for
// none). The result is not validated.
func Load(explicit string) (*Config, string, error) {
	_ = godotenv.Load()

	path, err := ResolvePath(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, path, err
		}
	}
	cfg.applyEnv()
	cfg.resolvePaths()
	return cfg, path, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvCorpusDir); v != "" {
		c.CorpusDir = v
	}
	if v := os.Getenv(EnvIndexPath); v != "" {
		c.IndexPath = v
	}
	if v := os.Getenv(EnvLLMBaseURL); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvOllamaURL); v != "" {
		c.Embedding.OllamaURL = v
	}
	if c.LLM.APIKey == "" || os.Getenv(EnvLLMAPIKey) != "" {
		for _, name := range []string{EnvLLMAPIKey, EnvOpenRouterKey, EnvOpenAIKey} {
			if v := os.Getenv(name); v != "" {
				c.LLM.APIKey = v
				break
			}
		}
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv(EnvOpenAIKey)
	}
}

func (c *Config) resolvePaths() {
	c.CorpusDir = ExpandPath(c.CorpusDir)
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join(c.CorpusDir, IndexFile)
	}
	c.IndexPath = ExpandPath(c.IndexPath)
	if c.CatalogPath == "" {
		c.CatalogPath = filepath.Join(filepath.Dir(c.IndexPath), CatalogFile)
	}
	c.CatalogPath = ExpandPath(c.CatalogPath)
}

// Validate reports every invalid setting, each wrapped in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.CorpusDir == "" {
		add("corpus_dir is empty")
	}
	if c.Chunk.Size <= 0 {
		add("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		add("chunk.overlap must be in [0, chunk.size), got %d", c.Chunk.Overlap)
	}
	switch c.Embedding.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		add("embedding.provider must be %q or %q, got %q", ProviderOllama, ProviderOpenAI, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		add("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.OCR.Enabled && c.OCR.DPI <= 0 {
		add("ocr.dpi must be positive, got %v", c.OCR.DPI)
	}
	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port out of range: %d", c.Server.Port)
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Embedding.APIKey = mask(c.Embedding.APIKey)
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", 4)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
