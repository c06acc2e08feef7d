package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseVars() map[string]string {
	return map[string]string{
		"STATE_TABLE":              "chatbot-state",
		"PARAM_PREFIX":             "/chatbot/",
		"PLATFORM_BASE_URL":        "https://platform.internal",
		"WHATSAPP_PHONE_NUMBER_ID": "1234",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(baseVars())
	require.NoError(t, err)

	require.Equal(t, BackendDynamoDB, cfg.StoreBackend)
	require.Equal(t, "/chatbot", cfg.ParamPrefix)
	require.Equal(t, 30*time.Minute, cfg.SessionTimeout)
	require.Equal(t, 15*time.Minute, cfg.AdminSessionTimeout)
	require.Equal(t, 20*time.Second, cfg.HandlerTimeout)
	require.Equal(t, 10*time.Second, cfg.SendTimeout)
	require.Equal(t, 50*time.Millisecond, cfg.LeaseRetry)
	require.Equal(t, 3, cfg.SecretMaxFailures)
	require.Equal(t, 5*time.Minute, cfg.SecretLockoutWindow)
	require.Equal(t, 32, cfg.MailboxSize)
	require.Equal(t, 20.0, cfg.WhatsAppSendRate)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "/chatbot/admin-secret", cfg.AdminSecretParam())
	require.Equal(t, "/chatbot/whatsapp-app-secret", cfg.AppSecretParam())
	require.Equal(t, "/chatbot/whatsapp-verify-token", cfg.VerifyTokenParam())

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, lvl)
}

func TestLoadFrom_Overrides(t *testing.T) {
	vars := baseVars()
	vars["STORE_BACKEND"] = "SQLite"
	vars["SQLITE_PATH"] = "/tmp/bot.db"
	vars["SESSION_TIMEOUT"] = "45m"
	vars["LOG_LEVEL"] = "debug"
	vars["WHATSAPP_SEND_RATE"] = "0"

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	require.Equal(t, BackendSQLite, cfg.StoreBackend)
	require.Equal(t, "/tmp/bot.db", cfg.SQLitePath)
	require.Equal(t, 45*time.Minute, cfg.SessionTimeout)
	require.Equal(t, 0.0, cfg.WhatsAppSendRate)
	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadFrom_Invalid(t *testing.T) {
	cases := map[string]func(map[string]string){
		"missing prefix":    func(v map[string]string) { delete(v, "PARAM_PREFIX") },
		"missing platform":  func(v map[string]string) { delete(v, "PLATFORM_BASE_URL") },
		"missing table":     func(v map[string]string) { delete(v, "STATE_TABLE") },
		"unknown backend":   func(v map[string]string) { v["STORE_BACKEND"] = "redis" },
		"bad duration":      func(v map[string]string) { v["SESSION_TIMEOUT"] = "soon" },
		"zero timeout":      func(v map[string]string) { v["HANDLER_TIMEOUT"] = "0s" },
		"bad level":         func(v map[string]string) { v["LOG_LEVEL"] = "loud" },
		"zero failures":     func(v map[string]string) { v["SECRET_MAX_FAILURES"] = "0" },
		"slash-only prefix": func(v map[string]string) { v["PARAM_PREFIX"] = "/" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			vars := baseVars()
			mutate(vars)
			_, err := LoadFrom(vars)
			require.Error(t, err)
		})
	}
}

func TestLoadFrom_MemoryNeedsNoTable(t *testing.T) {
	vars := baseVars()
	delete(vars, "STATE_TABLE")
	vars["STORE_BACKEND"] = "memory"

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
}
