package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/esignhq/esign/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "esign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
external_uri: https://esign.example.com
database_url: postgres://esign@localhost/esign
storage:
  files_key: test-key
signing:
  backend: pkcs11
  pkcs11_token_label: esign-hsm
`), 0o644))

	t.Setenv("ESIGN_CONFIG_YAML", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "https://esign.example.com", cfg.ExternalURI)
	require.Equal(t, "pkcs11", cfg.Signing.Backend)
	require.Equal(t, 4, cfg.Queue.MaxWorkers)
	require.Equal(t, "./files", cfg.Storage.FilesDir)
}

func TestLoadMissingFilesKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "esign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`external_uri: https://esign.example.com`), 0o644))
	t.Setenv("ESIGN_CONFIG_YAML", path)

	_, err := config.Load()
	require.Error(t, err)
}
