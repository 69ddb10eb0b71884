package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, BackendLocal, cfg.Storage.Backend)
	require.Equal(t, 1, cfg.Storage.ChunkExpirationDays)
	require.Equal(t, 24*time.Hour, cfg.Storage.ChunkExpiration())
	require.Equal(t, int64(-1), cfg.IDs.WorkerID)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))

	t.Setenv("PAN_SERVER_PORT", "9100")
	t.Setenv("PAN_STORAGE_CHUNK_EXPIRATION_DAYS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 3, cfg.Storage.ChunkExpirationDays)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "sqlite", Path: "pan.db"},
			Storage: StorageConfig{
				Backend:             BackendLocal,
				Local:               LocalStorageConfig{RootFilePath: "u", RootChunkPath: "c"},
				ChunkExpirationDays: 1,
			},
			IDs:     IDConfig{WorkerID: -1, DatacenterID: -1},
			Logging: LoggingConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: true},
		{name: "local without chunk path", mutate: func(c *Config) { c.Storage.Local.RootChunkPath = "" }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Backend = BackendS3 }, wantErr: true},
		{name: "s3 with bucket", mutate: func(c *Config) {
			c.Storage.Backend = BackendS3
			c.Storage.S3.Bucket = "pan"
		}},
		{name: "fastdfs without trackers", mutate: func(c *Config) { c.Storage.Backend = BackendFastDFS }, wantErr: true},
		{name: "zero expiration", mutate: func(c *Config) { c.Storage.ChunkExpirationDays = 0 }, wantErr: true},
		{name: "worker id too large", mutate: func(c *Config) { c.IDs.WorkerID = 32 }, wantErr: true},
		{name: "gc without interval", mutate: func(c *Config) { c.GC.Enabled = true }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
