// Package config loads the settings shared by every function, the server and
// the CLI. Values come from environment variables, optionally layered over a
// YAML file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ErrMissingConfig is wrapped by every validation failure.
var ErrMissingConfig = errors.New("missing configuration")

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
)

// Classifier providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds all configuration.
type Config struct {
	ProjectID        string `yaml:"project_id" env:"PROJECT_ID"`
	VertexAIRegion   string `yaml:"vertex_ai_region" env:"VERTEX_AI_REGION" env-default:"us-central1"`
	UploadsBucket    string `yaml:"uploads_bucket" env:"UPLOADS_BUCKET"`
	ArtifactsBucket  string `yaml:"artifacts_bucket" env:"ARTIFACTS_BUCKET"`
	WorkflowID       string `yaml:"workflow_id" env:"WORKFLOW_ID" env-default:"quote-analysis-orchestrator"`
	WorkflowLocation string `yaml:"workflow_location" env:"WORKFLOW_LOCATION" env-default:"us-central1"`

	// LocalStorageDir switches documents and artifacts to the local filesystem.
	LocalStorageDir string `yaml:"local_storage_dir" env:"LOCAL_STORAGE_DIR"`

	Store      StoreConfig      `yaml:"store"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Email      EmailConfig      `yaml:"email"`
	Poller     PollerConfig     `yaml:"poller"`

	StaleProcessingAfter time.Duration `yaml:"stale_processing_after" env:"STALE_PROCESSING_AFTER" env-default:"15m"`
	AnalysisTimeout      time.Duration `yaml:"analysis_timeout" env:"ANALYSIS_TIMEOUT" env-default:"10m"`
	AutoAnalyze          bool          `yaml:"auto_analyze" env:"AUTO_ANALYZE" env-default:"false"`
	Workers              int           `yaml:"workers" env:"WORKERS" env-default:"2"`
	HTTPAddr             string        `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8080"`
}

// StoreConfig selects the quote record store.
type StoreConfig struct {
	Backend    string `yaml:"backend" env:"STORE_BACKEND" env-default:"firestore"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"quotes.db"`
}

// ClassifierConfig selects and configures the page classifier.
type ClassifierConfig struct {
	Provider      string `yaml:"provider" env:"CLASSIFIER_PROVIDER" env-default:"gemini"`
	GeminiModel   string `yaml:"gemini_model" env:"GEMINI_MODEL" env-default:"gemini-1.5-pro"`
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	OpenAIAPIKey  string `yaml:"-" env:"OPENAI_API_KEY"`
	OpenAIModel   string `yaml:"openai_model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
}

// EmailConfig holds the transactional email settings.
type EmailConfig struct {
	BrevoAPIKey string `yaml:"-" env:"BREVO_API_KEY"`
	BrevoURL    string `yaml:"brevo_url" env:"BREVO_URL" env-default:"https://api.brevo.com/v3"`
	SenderEmail string `yaml:"sender_email" env:"BREVO_SENDER_EMAIL"`
	SenderName  string `yaml:"sender_name" env:"BREVO_SENDER_NAME" env-default:"Certified Translations"`
	AdminEmail  string `yaml:"admin_email" env:"QUOTE_ADMIN_EMAIL"`
}

// PollerConfig bounds the status poller.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval" env:"POLL_INTERVAL" env-default:"8s"`
	MaxAttempts int           `yaml:"max_attempts" env:"POLL_MAX_ATTEMPTS" env-default:"15"`
}

// Load reads configuration from path (if non-empty) with environment
// overrides, or from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// ValidateStore checks the record store settings.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case BackendFirestore:
		return require("PROJECT_ID", c.ProjectID)
	case BackendSQLite:
		return require("SQLITE_PATH", c.Store.SQLitePath)
	}
	return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrMissingConfig, c.Store.Backend)
}

// ValidateStorage checks the document and artifact store settings.
func (c *Config) ValidateStorage() error {
	if c.LocalStorageDir != "" {
		return nil
	}
	if err := require("UPLOADS_BUCKET", c.UploadsBucket); err != nil {
		return err
	}
	return require("ARTIFACTS_BUCKET", c.ArtifactsBucket)
}

// ValidateClassifier checks the classifier settings.
func (c *Config) ValidateClassifier() error {
	switch c.Classifier.Provider {
	case ProviderGemini:
		if err := require("PROJECT_ID", c.ProjectID); err != nil {
			return err
		}
		return require("VERTEX_AI_REGION", c.VertexAIRegion)
	case ProviderOpenAI:
		if err := require("OPENAI_BASE_URL", c.Classifier.OpenAIBaseURL); err != nil {
			return err
		}
		return require("OPENAI_MODEL", c.Classifier.OpenAIModel)
	}
	return fmt.Errorf("%w: unknown CLASSIFIER_PROVIDER %q", ErrMissingConfig, c.Classifier.Provider)
}

// ValidateWorkflow checks the settings for workflow hand-off.
func (c *Config) ValidateWorkflow() error {
	if err := require("PROJECT_ID", c.ProjectID); err != nil {
		return err
	}
	return require("WORKFLOW_ID", c.WorkflowID)
}

// ValidateEmail checks the quote email settings.
func (c *Config) ValidateEmail() error {
	if err := require("BREVO_API_KEY", c.Email.BrevoAPIKey); err != nil {
		return err
	}
	return require("BREVO_SENDER_EMAIL", c.Email.SenderEmail)
}

func require(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s must be set", ErrMissingConfig, name)
	}
	return nil
}
