package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alejandrodnm/ilguard/internal/adapters/venue"
	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Scenario is a replayable sequence of venue and admin events.
type Scenario struct {
	Pools  []PoolSpec  `yaml:"pools"`
	Events []EventSpec `yaml:"events"`
}

// PoolSpec names a pool key so events can refer to it by name.
type PoolSpec struct {
	Name        string `yaml:"name"`
	Currency0   string `yaml:"currency0"`
	Currency1   string `yaml:"currency1"`
	Fee         uint32 `yaml:"fee"`
	TickSpacing int32  `yaml:"tick_spacing"`
}

// EventSpec is one step. Which fields apply depends on Op.
type EventSpec struct {
	Op           string  `yaml:"op"` // initialize | add | remove | swap | pause | unpause | transfer
	Pool         string  `yaml:"pool"`
	Price        string  `yaml:"price"` // precio lineal decimal (token1 por token0)
	Owner        string  `yaml:"owner"`
	Amount0      string  `yaml:"amount0"`
	Amount1      string  `yaml:"amount1"`
	ThresholdBps *uint64 `yaml:"threshold_bps"` // nil = depósito sin protección
	PositionID   uint64  `yaml:"position_id"`
	Caller       string  `yaml:"caller"`
	NewOwner     string  `yaml:"new_owner"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadScenario: read %q: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes YAML and checks that every event names a known pool and op.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("ParseScenario: parse YAML: %w", err)
	}

	names := make(map[string]bool, len(sc.Pools))
	for _, p := range sc.Pools {
		if p.Name == "" {
			return nil, fmt.Errorf("ParseScenario: pool without name")
		}
		if names[p.Name] {
			return nil, fmt.Errorf("ParseScenario: duplicate pool %q", p.Name)
		}
		names[p.Name] = true
	}

	for i := range sc.Events {
		ev := &sc.Events[i]
		ev.Op = strings.ToLower(strings.TrimSpace(ev.Op))
		switch ev.Op {
		case "initialize", "add", "remove", "swap":
			if !names[ev.Pool] {
				return nil, fmt.Errorf("ParseScenario: event %d (%s): unknown pool %q", i, ev.Op, ev.Pool)
			}
		case "pause", "unpause", "transfer":
		default:
			return nil, fmt.Errorf("ParseScenario: event %d: unknown op %q", i, ev.Op)
		}
	}
	return &sc, nil
}

// Key builds the venue pool key.
func (p PoolSpec) Key(hooks common.Address) venue.PoolKey {
	c0 := common.HexToAddress(p.Currency0)
	c1 := common.HexToAddress(p.Currency1)
	if c0.Cmp(c1) > 0 {
		c0, c1 = c1, c0
	}
	spacing := p.TickSpacing
	if spacing == 0 {
		spacing = 60
	}
	return venue.PoolKey{Currency0: c0, Currency1: c1, Fee: p.Fee, TickSpacing: spacing, Hooks: hooks}
}

// parseWAD converts a decimal string ("2000", "0.5") to 18-decimal fixed point.
// An empty string is zero.
func parseWAD(s string) (*uint256.Int, error) {
	if strings.TrimSpace(s) == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parseWAD %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parseWAD %q: negative value", s)
	}
	x, overflow := uint256.FromBig(d.Shift(18).BigInt())
	if overflow {
		return nil, fmt.Errorf("parseWAD %q: overflows 256 bits", s)
	}
	return x, nil
}

// parseSqrtPrice converts a decimal linear price into sqrtPriceX96.
func parseSqrtPrice(s string) (*uint256.Int, error) {
	price, err := parseWAD(s)
	if err != nil {
		return nil, err
	}
	sqrtP, err := domain.PriceToSqrtPrice(price)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", s, err)
	}
	return sqrtP, nil
}
