package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROJECT_ID", "proj-1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", cfg.ProjectID)
	assert.Equal(t, BackendFirestore, cfg.Store.Backend)
	assert.Equal(t, ProviderGemini, cfg.Classifier.Provider)
	assert.Equal(t, 8*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 15, cfg.Poller.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.StaleProcessingAfter)
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project_id: from-yaml
store:
  backend: sqlite
  sqlite_path: /tmp/q.db
poller:
  max_attempts: 20
`), 0o600))
	t.Setenv("POLL_MAX_ATTEMPTS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.ProjectID)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/q.db", cfg.Store.SQLitePath)
	assert.Equal(t, 3, cfg.Poller.MaxAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		check   func(*Config) error
		wantErr bool
	}{
		{"firestore needs project", Config{Store: StoreConfig{Backend: BackendFirestore}}, (*Config).ValidateStore, true},
		{"sqlite ok", Config{Store: StoreConfig{Backend: BackendSQLite, SQLitePath: "x.db"}}, (*Config).ValidateStore, false},
		{"unknown backend", Config{Store: StoreConfig{Backend: "mongo"}}, (*Config).ValidateStore, true},
		{"buckets required", Config{UploadsBucket: "u"}, (*Config).ValidateStorage, true},
		{"local storage skips buckets", Config{LocalStorageDir: "/tmp"}, (*Config).ValidateStorage, false},
		{"openai ok", Config{Classifier: ClassifierConfig{Provider: ProviderOpenAI, OpenAIBaseURL: "http://x", OpenAIModel: "m"}}, (*Config).ValidateClassifier, false},
		{"gemini needs project", Config{Classifier: ClassifierConfig{Provider: ProviderGemini, GeminiModel: "g"}}, (*Config).ValidateClassifier, true},
		{"email needs key", Config{Email: EmailConfig{SenderEmail: "a@b.c"}}, (*Config).ValidateEmail, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check(&tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
