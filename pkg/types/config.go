package types

import "time"

// HTTPConfig holds shared HTTP settings for collaborators that call remote APIs.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "scholar-digest/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// MailSource selects the mail search backend.
type MailSource string

const (
	SourceMaildir MailSource = "maildir"
	SourceGmail   MailSource = "gmail"
)

// MailConfig holds settings for the mail search collaborator.
type MailConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Source selects maildir or gmail.
	Source MailSource `json:"source" yaml:"source" mapstructure:"source"`

	// Maildir is the directory of .eml files used by the maildir source.
	Maildir string `json:"maildir" yaml:"maildir" mapstructure:"maildir"`

	// Sender is the alert sender address used in the from: query term.
	Sender string `json:"sender" yaml:"sender" mapstructure:"sender"`

	// GmailBaseURL is the Gmail REST endpoint (default https://gmail.googleapis.com).
	GmailBaseURL string `json:"gmail_base_url" yaml:"gmail_base_url" mapstructure:"gmail_base_url"`

	// TokenSecret names the file under the secrets directory holding the bearer token.
	TokenSecret string `json:"token_secret" yaml:"token_secret" mapstructure:"token_secret"`
}

// ExtractConfig holds settings for the body extractor.
type ExtractConfig struct {
	// Sentinel marks the start of the trailing boilerplate; content after it is ignored.
	Sentinel string `json:"sentinel" yaml:"sentinel" mapstructure:"sentinel"`

	// DomainMarker must appear in a link for it to be considered a paper.
	DomainMarker string `json:"domain_marker" yaml:"domain_marker" mapstructure:"domain_marker"`

	// Denylist drops links whose wrapped URL contains any entry.
	Denylist []string `json:"denylist" yaml:"denylist" mapstructure:"denylist"`
}

// StoreConfig holds settings for the partitioned record store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// Strategy selects the identity key: "title" or "link".
	Strategy string `json:"strategy" yaml:"strategy" mapstructure:"strategy"`

	// LookbackDays is the window processed by a default run (default 7).
	LookbackDays int `json:"lookback_days" yaml:"lookback_days" mapstructure:"lookback_days"`

	// ChunkDays is the sub-range length used by backfill (default 7).
	ChunkDays int `json:"chunk_days" yaml:"chunk_days" mapstructure:"chunk_days"`

	// ChunkDelay is the pause between backfill chunks (default 2s).
	ChunkDelay time.Duration `json:"chunk_delay" yaml:"chunk_delay" mapstructure:"chunk_delay"`
}

// MetricsConfig holds settings for run metrics.
type MetricsConfig struct {
	// Textfile is the node-exporter textfile path. Empty disables metrics output.
	Textfile string `json:"textfile" yaml:"textfile" mapstructure:"textfile"`
}

// Config groups all stage configurations.
type Config struct {
	Mail     MailConfig     `json:"mail" yaml:"mail" mapstructure:"mail"`
	Extract  ExtractConfig  `json:"extract" yaml:"extract" mapstructure:"extract"`
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// SecretsDir holds credential files (default ".secrets/").
	SecretsDir string `json:"secrets_dir" yaml:"secrets_dir" mapstructure:"secrets_dir"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// Default values.
const (
	DefaultSender       = "scholaralerts-noreply@google.com"
	DefaultSentinel     = "This message was sent by Google Scholar"
	DefaultDomainMarker = "scholar.google.com"
	DefaultGmailBaseURL = "https://gmail.googleapis.com"
	DefaultUserAgent    = "scholar-digest/0.1"
	DefaultLookbackDays = 7
	DefaultChunkDays    = 7
	DefaultChunkDelay   = 2 * time.Second
)

// DefaultDenylist lists link targets that carry the Scholar domain but are
// not papers.
var DefaultDenylist = []string{
	"scholar_settings",
	"scholar_alerts",
	"/citations?",
	"support.google.com",
	"accounts.google.com",
	"mail.google.com",
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() Config {
	return Config{
		Mail: MailConfig{
			HTTPConfig: HTTPConfig{
				Timeout:    60 * time.Second,
				UserAgent:  DefaultUserAgent,
				MaxRetries: 5,
			},
			Source:       SourceMaildir,
			Maildir:      "maildir",
			Sender:       DefaultSender,
			GmailBaseURL: DefaultGmailBaseURL,
			TokenSecret:  "gmail-token",
		},
		Extract: ExtractConfig{
			Sentinel:     DefaultSentinel,
			DomainMarker: DefaultDomainMarker,
			Denylist:     append([]string(nil), DefaultDenylist...),
		},
		Store: StoreConfig{Path: "data/scholar.db"},
		Pipeline: PipelineConfig{
			Strategy:     "title",
			LookbackDays: DefaultLookbackDays,
			ChunkDays:    DefaultChunkDays,
			ChunkDelay:   DefaultChunkDelay,
		},
		SecretsDir: ".secrets/",
		LogLevel:   "info",
	}
}
