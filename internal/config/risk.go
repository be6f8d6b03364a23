package config

import (
	"fmt"
	"os"

	"lv-tradesim/internal/matching"
	"lv-tradesim/internal/types"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RiskFile is the optional per-asset-class limit file:
//
//	limits:
//	  CRYPTO:
//	    max_notional: "250000"
//	    daily_loss_cap: "5000"
type RiskFile struct {
	Limits map[string]RiskLimit `yaml:"limits"`
}

type RiskLimit struct {
	MaxNotional  string `yaml:"max_notional"`
	DailyLossCap string `yaml:"daily_loss_cap"`
}

func LoadRisk(path string) (map[types.AssetClass]matching.Limit, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk config: %w", err)
	}
	return ParseRisk(data)
}

func ParseRisk(data []byte) (map[types.AssetClass]matching.Limit, error) {
	var f RiskFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse risk config: %w", err)
	}
	out := make(map[types.AssetClass]matching.Limit, len(f.Limits))
	for class, raw := range f.Limits {
		var lim matching.Limit
		var err error
		if lim.MaxNotional, err = parseOptional(raw.MaxNotional); err != nil {
			return nil, fmt.Errorf("%s max_notional: %w", class, err)
		}
		if lim.DailyLossCap, err = parseOptional(raw.DailyLossCap); err != nil {
			return nil, fmt.Errorf("%s daily_loss_cap: %w", class, err)
		}
		out[types.AssetClass(class).Normalize()] = lim
	}
	return out, nil
}

func parseOptional(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative")
	}
	return v, nil
}
