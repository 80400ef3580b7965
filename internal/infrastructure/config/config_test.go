package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"PB_APP_NAME",
	"PB_APP_ENV",
	"PB_APP_PORT",
	"PB_APP_TIMEZONE",
	"PB_DATABASE_HOST",
	"PB_DATABASE_PORT",
	"PB_DATABASE_USER",
	"PB_DATABASE_PASSWORD",
	"PB_DATABASE_DBNAME",
	"PB_DATABASE_SSLMODE",
	"PB_DATABASE_MAX_OPEN_CONNS",
	"PB_DATABASE_MAX_IDLE_CONNS",
	"PB_JWT_SECRET",
	"PB_REDIS_HOST",
	"PB_BILLING_DEFAULT_MONTHLY_RATE",
	"PB_BILLING_GRACE_DAY",
	"PB_MPESA_ENVIRONMENT",
	"PB_MPESA_CALLBACK_URL",
	"PB_SCHEDULER_REMINDER_HOUR",
	"PB_SCHEDULER_GENERATOR_DAY",
}

// clearConfigEnv blanks every key for the duration of the test
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearConfigEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "propledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "Africa/Nairobi", cfg.App.Timezone)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "propledger", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Empty(t, cfg.Redis.Host)
		assert.Empty(t, cfg.NATS.URL)
		assert.Equal(t, "notifications", cfg.NATS.SubjectPrefix)
	})

	t.Run("billing and gateway defaults", func(t *testing.T) {
		clearConfigEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(5000).Equal(cfg.Billing.DefaultMonthlyRate))
		assert.Equal(t, 5, cfg.Billing.GraceDay)
		assert.Equal(t, "KES", cfg.Billing.Currency)
		assert.Equal(t, 2, cfg.Billing.ReminderStartDay)
		assert.Equal(t, 15, cfg.Billing.NewPropertyCutoff)
		assert.Equal(t, "sandbox", cfg.Mpesa.Environment)
		assert.Equal(t, 2*time.Minute, cfg.Mpesa.WaitWindow)
		assert.Equal(t, "KE", cfg.Mpesa.CountryCode)
		assert.Equal(t, 1, cfg.Scheduler.GeneratorDay)
		assert.Equal(t, cfg.Scheduler.JobTimeout, cfg.Scheduler.LockTTL)
	})

	t.Run("loads values from environment variables with PB prefix", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("PB_APP_NAME", "test-app")
		t.Setenv("PB_APP_ENV", "testing")
		t.Setenv("PB_APP_PORT", "9000")
		t.Setenv("PB_DATABASE_HOST", "testdb.local")
		t.Setenv("PB_DATABASE_PORT", "5433")
		t.Setenv("PB_DATABASE_PASSWORD", "testpass")
		t.Setenv("PB_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("PB_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("PB_REDIS_HOST", "cache.local")
		t.Setenv("PB_BILLING_DEFAULT_MONTHLY_RATE", "6500.50")
		t.Setenv("PB_SCHEDULER_REMINDER_HOUR", "9")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, "cache.local:6379", cfg.Redis.Addr())
		assert.Equal(t, "6500.5", cfg.Billing.DefaultMonthlyRate.String())
		assert.Equal(t, 9, cfg.Scheduler.ReminderHour)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("PB_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("PB_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("PB_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects a malformed rate", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("PB_BILLING_DEFAULT_MONTHLY_RATE", "five thousand")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.default_monthly_rate")
	})

	t.Run("rejects out of range billing and schedule settings", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("PB_BILLING_GRACE_DAY", "31")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.grace_day")

		clearConfigEnv(t)
		t.Setenv("PB_SCHEDULER_GENERATOR_DAY", "30")
		_, err = Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduler.generator_day")

		clearConfigEnv(t)
		t.Setenv("PB_MPESA_ENVIRONMENT", "staging")
		_, err = Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mpesa.environment")
	})

	t.Run("rejects an unknown timezone", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("PB_APP_TIMEZONE", "Mars/Olympus")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "app.timezone")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("PB_APP_ENV", "production")
		t.Setenv("PB_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("PB_DATABASE_PASSWORD", "secure-password")
		t.Setenv("PB_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("PB_JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("PB_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("PB_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("PB_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires an https callback for the production gateway", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("PB_MPESA_ENVIRONMENT", "production")
		t.Setenv("PB_MPESA_CALLBACK_URL", "http://example.com/callback")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mpesa.callback_url")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestAppConfig_Location(t *testing.T) {
	assert.Equal(t, "Africa/Nairobi", AppConfig{Timezone: "Africa/Nairobi"}.Location().String())
	assert.Equal(t, time.UTC, AppConfig{Timezone: "nowhere"}.Location())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
