package config

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Queue        QueueConfig        `mapstructure:"queue" yaml:"queue"`
	OCR          OCRConfig          `mapstructure:"ocr" yaml:"ocr"`
	ContentStore ContentStoreConfig `mapstructure:"content_store" yaml:"content_store"`
	Ingest       IngestConfig       `mapstructure:"ingest" yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// QueueConfig holds job queue settings.
type QueueConfig struct {
	// PollIntervalSeconds is how long the worker sleeps when the queue is empty.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	// ErrorBackoffSeconds is how long the worker backs off after a dispatch error.
	ErrorBackoffSeconds int `mapstructure:"error_backoff_seconds" yaml:"error_backoff_seconds"`
	// CleanupMaxAgeHours is the retention horizon for completed jobs.
	CleanupMaxAgeHours int `mapstructure:"cleanup_max_age_hours" yaml:"cleanup_max_age_hours"`
	// CleanupIntervalMinutes is how often the background cleanup sweep runs.
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes"`
}

// OCRConfig holds OCR engine settings.
type OCRConfig struct {
	// Enabled disables the OCR engine entirely when false; jobs fall back to
	// native text on every page.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Model is the vision-capable chat model used for recognition.
	Model string `mapstructure:"model" yaml:"model"`
	// APIKey supports ${ENV_VAR} references.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	// RenderDPI is the resolution pages are rasterized at before recognition.
	RenderDPI int `mapstructure:"render_dpi" yaml:"render_dpi"`
	// TimeoutSeconds bounds a single model call.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// ContentStoreConfig holds content store client settings.
type ContentStoreConfig struct {
	// URL is the base URL of the content store items API.
	URL string `mapstructure:"url" yaml:"url"`
	// Token supports ${ENV_VAR} references.
	Token string `mapstructure:"token" yaml:"token"`
	// TimeoutSeconds bounds a single store call.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// MaxRetries is the retry budget for transient create failures.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// IngestConfig holds upload validation settings.
type IngestConfig struct {
	// MaxUploadMB caps the accepted document size.
	MaxUploadMB int `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	// DefaultLanguage is used when the uploader does not declare one.
	DefaultLanguage string `mapstructure:"default_language" yaml:"default_language"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Queue: QueueConfig{
			PollIntervalSeconds:    1,
			ErrorBackoffSeconds:    5,
			CleanupMaxAgeHours:     24,
			CleanupIntervalMinutes: 60,
		},
		OCR: OCRConfig{
			Enabled:        true,
			Model:          "gpt-4o-mini",
			APIKey:         "${OPENAI_API_KEY}",
			RenderDPI:      300,
			TimeoutSeconds: 120,
		},
		ContentStore: ContentStoreConfig{
			URL:            "http://localhost:8055",
			Token:          "${CONTENT_STORE_TOKEN}",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Ingest: IngestConfig{
			MaxUploadMB:     50,
			DefaultLanguage: "he",
		},
	}
}
