package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps a configuration key to its environment variables. The
// prefixed name always wins over the legacy names.
type envBinding struct {
	key    string
	legacy []string
	apply  func(c *Config, raw string) error
}

var envBindings = []envBinding{
	{key: "catalog.baseURL", legacy: []string{"BANGUMI_API_URL"},
		apply: stringField(func(c *Config) *string { return &c.Catalog.BaseURL })},
	{key: "catalog.accessToken", legacy: []string{"BANGUMI_ACCESS_TOKEN"},
		apply: stringField(func(c *Config) *string { return &c.Catalog.AccessToken })},
	{key: "catalog.userAgent", legacy: []string{"BANGUMI_USER_AGENT"},
		apply: stringField(func(c *Config) *string { return &c.Catalog.UserAgent })},
	{key: "catalog.timeout", legacy: []string{"BANGUMI_API_TIMEOUT"},
		apply: stringField(func(c *Config) *string { return &c.Catalog.Timeout })},
	{key: "catalog.subjectType",
		apply: intField(func(c *Config) *int { return &c.Catalog.SubjectType })},

	{key: "rateLimit.defaultQPS", legacy: []string{"BANGUMI_DEFAULT_QPS"},
		apply: floatField(func(c *Config) *float64 { return &c.RateLimit.DefaultQPS })},
	{key: "rateLimit.characterQPS", legacy: []string{"BANGUMI_CHARACTER_QPS"},
		apply: floatField(func(c *Config) *float64 { return &c.RateLimit.CharacterQPS })},

	{key: "sync.batchSize", legacy: []string{"BANGUMI_BATCH_SIZE"},
		apply: intField(func(c *Config) *int { return &c.Sync.BatchSize })},
	{key: "sync.incrementalBuffer",
		apply: intField(func(c *Config) *int { return &c.Sync.IncrementalBuffer })},
	{key: "sync.failureThreshold", legacy: []string{"BANGUMI_MAX_RETRIES"},
		apply: intField(func(c *Config) *int { return &c.Sync.FailureThreshold })},
	{key: "sync.failureBackoff",
		apply: stringField(func(c *Config) *string { return &c.Sync.FailureBackoff })},
	{key: "sync.notifyChannel", legacy: []string{"SELF_CHAT_ID"},
		apply: stringField(func(c *Config) *string { return &c.Sync.NotifyChannel })},

	{key: "cooldown.daily", legacy: []string{"COOLDOWN_DAILY"},
		apply: intField(func(c *Config) *int { return &c.Cooldown.Daily })},
	{key: "cooldown.biweekly", legacy: []string{"COOLDOWN_BIWEEKLY"},
		apply: intField(func(c *Config) *int { return &c.Cooldown.Biweekly })},
	{key: "cooldown.monthly", legacy: []string{"COOLDOWN_MONTHLY"},
		apply: intField(func(c *Config) *int { return &c.Cooldown.Monthly })},
	{key: "cooldown.monthlyMin", legacy: []string{"COOLDOWN_MONTHLY_MIN"},
		apply: intField(func(c *Config) *int { return &c.Cooldown.MonthlyMin })},
	{key: "cooldown.monthlyMax", legacy: []string{"COOLDOWN_MONTHLY_MAX"},
		apply: intField(func(c *Config) *int { return &c.Cooldown.MonthlyMax })},

	{key: "storage.type",
		apply: stringField(func(c *Config) *string { return &c.Storage.Type })},
	{key: "notifier.webhookURL",
		apply: stringField(func(c *Config) *string { return &c.Notifier.WebhookURL })},
}

// EnvName returns the prefixed environment variable for a configuration key,
// e.g. CATALOG_MIRROR_SYNC_BATCHSIZE for sync.batchSize
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyEnvOverrides overwrites configuration values set in the environment
func applyEnvOverrides(c *Config) error {
	v := viper.New()
	for _, b := range envBindings {
		names := append([]string{b.key, EnvName(b.key)}, b.legacy...)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b.key, err)
		}
	}

	for _, b := range envBindings {
		if !v.IsSet(b.key) {
			continue
		}
		if err := b.apply(c, v.GetString(b.key)); err != nil {
			return fmt.Errorf("%s: %w", EnvName(b.key), err)
		}
	}
	return nil
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*field(c) = raw
		return nil
	}
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", raw)
		}
		*field(c) = n
		return nil
	}
}

func floatField(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, raw string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("expected a number, got %q", raw)
		}
		*field(c) = f
		return nil
	}
}
