// Package config loads the esign service configuration from a YAML file
// whose path is given by the ESIGN_CONFIG_YAML environment variable,
// following the envconfig+yaml+defaults pattern used across the corpus.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// OIDC holds the OpenID Connect relying-party settings spec.md §6 names.
type OIDC struct {
	IssuerURL    string `yaml:"issuer_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Queue holds task-queue connection settings.
type Queue struct {
	// DatabaseURL is the Postgres DSN riverqueue uses for its job table;
	// empty means reuse the main store DSN.
	DatabaseURL string `yaml:"database_url"`
	// MaxWorkers bounds concurrent task execution per process.
	MaxWorkers int `yaml:"max_workers" default:"4"`
}

// SMTP holds outbound mail settings.
type SMTP struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"25"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Signing holds the signer backend selection and PKCS#11/HSM parameters of
// spec.md §4.E.
type Signing struct {
	// Backend selects the signer: "pkcs11" (default), "aws", "gcp", "azure".
	Backend string `yaml:"backend" default:"pkcs11"`

	PKCS11ModulePath string `yaml:"pkcs11_module_path"`
	PKCS11TokenLabel string `yaml:"pkcs11_token_label"`
	PKCS11KeyLabel   string `yaml:"pkcs11_key_label"`
	PKCS11PIN        string `yaml:"pkcs11_pin"`

	// TSAURL is the RFC 3161 timestamp authority endpoint. Empty disables
	// timestamping (PAdES-B rather than PAdES-B-T).
	TSAURL      string `yaml:"tsa_url"`
	TSAUsername string `yaml:"tsa_username"`
	TSAPassword string `yaml:"tsa_password"`

	CertificatePath string `yaml:"certificate_path"`
}

// Storage holds the file-storage backend settings of spec.md §6.
type Storage struct {
	// FilesDir is the local-disk store root, used when Bucket is empty.
	FilesDir string `yaml:"files_dir" default:"./files"`
	// Bucket selects the S3 backend when non-empty.
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	// FilesKey signs time-limited file access URLs (spec.md §6).
	FilesKey string `yaml:"files_key"`
}

// Config is the top-level esign service configuration.
type Config struct {
	// ExternalURI is the base URL used to build links in outgoing email.
	ExternalURI string `yaml:"external_uri" default:"http://localhost:8000"`
	// Production selects the zap production logging profile.
	Production bool   `yaml:"production" default:"false"`
	LogPath    string `yaml:"log_path"`

	DatabaseURL string `yaml:"database_url"`

	// NAT64Net is the IPv6 prefix (e.g. "64:ff9b::/96") within which logged
	// client addresses are collapsed to their embedded IPv4 form.
	NAT64Net string `yaml:"nat64_net"`

	HTTPAddr string `yaml:"http_addr" default:":8000"`

	OIDC    OIDC    `yaml:"oidc"`
	Queue   Queue   `yaml:"queue"`
	SMTP    SMTP    `yaml:"smtp"`
	Signing Signing `yaml:"signing"`
	Storage Storage `yaml:"storage"`
}

type envVars struct {
	ConfigYAML string `envconfig:"ESIGN_CONFIG_YAML" required:"true"`
}

// Load reads and parses the configuration file named by ESIGN_CONFIG_YAML.
func Load() (*Config, error) {
	var env envVars
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: set defaults: %w", err)
	}

	info, err := os.Stat(env.ConfigYAML)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", env.ConfigYAML, err)
	}
	if info.IsDir() {
		return nil, errors.New("config: ESIGN_CONFIG_YAML points at a directory")
	}

	raw, err := os.ReadFile(filepath.Clean(env.ConfigYAML))
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", env.ConfigYAML, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", env.ConfigYAML, err)
	}

	if cfg.Storage.FilesKey == "" {
		return nil, errors.New("config: storage.files_key is required")
	}

	return cfg, nil
}
