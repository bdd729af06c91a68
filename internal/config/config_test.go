package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	cfg := Load()

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "automatizacion", cfg.DBSchema)
	assert.Equal(t, "CR", cfg.CountryCode)
	assert.Equal(t, 30*time.Second, cfg.ProfileCheckInterval)
	assert.Equal(t, 50, cfg.MaxEmailsToCheck)
	assert.Equal(t, "G", cfg.IdentifierColumn)
	assert.True(t, cfg.SkipHeader)
	assert.True(t, cfg.MailTLS)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("COUNTRY_CODE", "gt")
	t.Setenv("REPORT_EXAMPLES", "100000")
	t.Setenv("PROFILE_CHECK_INTERVAL_SEC", "1")
	t.Setenv("MAX_EMAILS_TO_CHECK", "0")
	t.Setenv("MAIL_TLS", "false")
	t.Setenv("IMAP_PORT", "not-a-number")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "GT", cfg.CountryCode)
	assert.Equal(t, MaxExamples, cfg.ReportExamples)
	assert.Equal(t, MinCheckInterval, cfg.ProfileCheckInterval)
	assert.Equal(t, 1, cfg.MaxEmailsToCheck)
	assert.False(t, cfg.MailTLS)
	assert.Equal(t, 993, cfg.IMAPPort)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"driver", func(c *Config) { c.StoreDriver = "mysql" }},
		{"port", func(c *Config) { c.SMTPPort = 70000 }},
		{"log level", func(c *Config) { c.LogLevel = "TRACE" }},
		{"sender", func(c *Config) { c.MailFrom = "nope" }},
		{"table", func(c *Config) { c.DBTable = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.edit(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
