package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig carries the tariff and workflow constants that operators may
// tune without a redeploy.
type BillingConfig struct {
	TaxRate                 float64       `mapstructure:"tax_rate"`
	ICUHourlySurchargeCents int64         `mapstructure:"icu_hourly_surcharge_cents"`
	Currency                string        `mapstructure:"currency"`
	Timezone                string        `mapstructure:"timezone"`
	InvoiceDueDays          int           `mapstructure:"invoice_due_days"`
	DischargeMaxFuture      time.Duration `mapstructure:"discharge_max_future"`
	DischargeMaxPast        time.Duration `mapstructure:"discharge_max_past"`
	RetryMaxAttempts        int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay          time.Duration `mapstructure:"retry_base_delay"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TaxRate:                 0.085,
		ICUHourlySurchargeCents: 5000,
		Currency:                "USD",
		Timezone:                "UTC",
		InvoiceDueDays:          30,
		DischargeMaxFuture:      7 * 24 * time.Hour,
		DischargeMaxPast:        30 * 24 * time.Hour,
		RetryMaxAttempts:        3,
		RetryBaseDelay:          100 * time.Millisecond,
	}
}

// Location resolves the clinic timezone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfig wraps a fixed configuration, mostly for tests.
func NewStaticBillingConfig(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("config.billing")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/carebill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAREBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.tax_rate", defaults.TaxRate)
	v.SetDefault("billing.icu_hourly_surcharge_cents", defaults.ICUHourlySurchargeCents)
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.timezone", defaults.Timezone)
	v.SetDefault("billing.invoice_due_days", defaults.InvoiceDueDays)
	v.SetDefault("billing.discharge_max_future", defaults.DischargeMaxFuture)
	v.SetDefault("billing.discharge_max_past", defaults.DischargeMaxPast)
	v.SetDefault("billing.retry_max_attempts", defaults.RetryMaxAttempts)
	v.SetDefault("billing.retry_base_delay", defaults.RetryBaseDelay)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfig(cfg)
	if !fileLoaded {
		log.Info("billing config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := ValidateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func ValidateBillingConfig(cfg BillingConfig) error {
	switch {
	case cfg.TaxRate < 0 || cfg.TaxRate >= 1:
		return fmt.Errorf("billing.tax_rate must be in [0,1), got %v", cfg.TaxRate)
	case cfg.ICUHourlySurchargeCents < 0:
		return errors.New("billing.icu_hourly_surcharge_cents cannot be negative")
	case len(strings.TrimSpace(cfg.Currency)) != 3:
		return errors.New("billing.currency must be a 3-letter code")
	case cfg.InvoiceDueDays <= 0:
		return errors.New("billing.invoice_due_days must be positive")
	case cfg.DischargeMaxFuture < 0 || cfg.DischargeMaxPast < 0:
		return errors.New("billing discharge bounds cannot be negative")
	case cfg.RetryMaxAttempts < 1:
		return errors.New("billing.retry_max_attempts must be at least 1")
	case cfg.RetryBaseDelay < 0:
		return errors.New("billing.retry_base_delay cannot be negative")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return fmt.Errorf("billing.timezone: %w", err)
	}
	return nil
}
