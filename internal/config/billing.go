package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Plan describes how one subscription type is billed.
type Plan struct {
	SubscriptionType string `mapstructure:"subscriptionType"`
	Amount           string `mapstructure:"amount"`
	Label            string `mapstructure:"label"`
}

// BillingConfig holds the plan table used by invoice generation.
type BillingConfig struct {
	PeriodDays int    `mapstructure:"periodDays"`
	Plans      []Plan `mapstructure:"plans"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		PeriodDays: 365,
		Plans: []Plan{
			{SubscriptionType: "Lifetime", Amount: "250.00", Label: "Lifetime Membership"},
			{SubscriptionType: "Yearly + Janaza Fund", Amount: "500.00", Label: "Yearly Subscription + Janaza Fund"},
		},
	}
}

// PlanFor returns the plan configured for the subscription type.
func (c BillingConfig) PlanFor(subscriptionType string) (Plan, bool) {
	key := strings.TrimSpace(subscriptionType)
	for _, plan := range c.Plans {
		if strings.EqualFold(plan.SubscriptionType, key) {
			return plan, true
		}
	}
	return Plan{}, false
}

type PlanConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticPlanConfigHolder returns a holder that never reloads.
func NewStaticPlanConfigHolder(cfg BillingConfig) *PlanConfigHolder {
	holder := &PlanConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPlanConfigHolder() (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/duespay/config")
	v.AddConfigPath("/etc/duespay")
	v.AddConfigPath(".")

	return loadPlanConfig(v)
}

// NewPlanConfigHolderFromFile loads the plan table from an explicit path.
func NewPlanConfigHolderFromFile(path string) (*PlanConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return loadPlanConfig(v)
}

func loadPlanConfig(v *viper.Viper) (*PlanConfigHolder, error) {
	v.SetEnvPrefix("DUESPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		return NewStaticPlanConfigHolder(DefaultBillingConfig()), nil
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPlanConfigHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			zap.L().Warn("billing config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	if cfg.PeriodDays == 0 {
		cfg.PeriodDays = DefaultBillingConfig().PeriodDays
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultBillingConfig().Plans
	}
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func (h *PlanConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.PeriodDays < 1 {
		return errors.New("billing.periodDays must be at least 1")
	}
	for _, plan := range cfg.Plans {
		if strings.TrimSpace(plan.SubscriptionType) == "" {
			return errors.New("billing.plans.subscriptionType cannot be empty")
		}
		if strings.TrimSpace(plan.Label) == "" {
			return fmt.Errorf("billing.plans[%s].label cannot be empty", plan.SubscriptionType)
		}
		amount, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(plan.Amount), "$"))
		if err != nil || !amount.IsPositive() {
			return fmt.Errorf("billing.plans[%s].amount %q is invalid", plan.SubscriptionType, plan.Amount)
		}
	}
	return nil
}
