package venue

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// rawProfile is the YAML shape of one instrument's precision rules.
// Steps are strings on purpose: "0.001" must survive parsing exactly.
type rawProfile struct {
	QuantityStep string `yaml:"quantity_step"`
	PriceTick    string `yaml:"price_tick"`
	MinQuantity  string `yaml:"min_quantity"`
	MinNotional  string `yaml:"min_notional"`
	MaxLeverage  int    `yaml:"max_leverage"`
}

// ProfileSet holds per-venue, per-coin precision rules loaded from the
// instruments file. Lookups fall back to the venue's "default" entry so
// a newly listed coin still gets sane rules until a refresh fills in
// the real ones. Safe for concurrent use: venue runners read and
// refresh entries from parallel steps.
type ProfileSet struct {
	mu     sync.RWMutex
	venues map[string]map[string]Instrument
}

// LoadProfiles reads the instrument precision file. Top level keys are
// venue driver names, second level keys are coin symbols.
func LoadProfiles(path string) (*ProfileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instrument profiles failed: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles parses instrument profile YAML content.
func ParseProfiles(data []byte) (*ProfileSet, error) {
	var raw map[string]map[string]rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing instrument profiles failed: %w", err)
	}
	ps := &ProfileSet{venues: make(map[string]map[string]Instrument, len(raw))}
	for venueName, coins := range raw {
		venueName = strings.ToLower(strings.TrimSpace(venueName))
		if venueName == "" {
			continue
		}
		table := make(map[string]Instrument, len(coins))
		for coin, rp := range coins {
			coin = strings.ToUpper(strings.TrimSpace(coin))
			inst, err := rp.toInstrument(coin)
			if err != nil {
				return nil, fmt.Errorf("instrument profile %s/%s: %w", venueName, coin, err)
			}
			table[coin] = inst
		}
		ps.venues[venueName] = table
	}
	return ps, nil
}

func (rp rawProfile) toInstrument(symbol string) (Instrument, error) {
	step, err := decimal.NewFromString(strings.TrimSpace(rp.QuantityStep))
	if err != nil || step.Sign() <= 0 {
		return Instrument{}, fmt.Errorf("invalid quantity_step %q", rp.QuantityStep)
	}
	tick, err := decimal.NewFromString(strings.TrimSpace(rp.PriceTick))
	if err != nil || tick.Sign() <= 0 {
		return Instrument{}, fmt.Errorf("invalid price_tick %q", rp.PriceTick)
	}
	minQty := step
	if s := strings.TrimSpace(rp.MinQuantity); s != "" {
		minQty, err = decimal.NewFromString(s)
		if err != nil || minQty.Sign() <= 0 {
			return Instrument{}, fmt.Errorf("invalid min_quantity %q", rp.MinQuantity)
		}
	}
	minNotional := decimal.Zero
	if s := strings.TrimSpace(rp.MinNotional); s != "" {
		minNotional, err = decimal.NewFromString(s)
		if err != nil || minNotional.Sign() < 0 {
			return Instrument{}, fmt.Errorf("invalid min_notional %q", rp.MinNotional)
		}
	}
	maxLev := rp.MaxLeverage
	if maxLev <= 0 {
		maxLev = 1
	}
	return Instrument{
		Symbol: symbol,
		Precision: Precision{
			QuantityStep: step,
			PriceTick:    tick,
			MinQuantity:  minQty,
			MinNotional:  minNotional,
		},
		MaxLeverage: maxLev,
	}, nil
}

// Instrument resolves the rules for coin on the named venue. The kind
// is stamped by the caller since the profile file does not know how a
// driver trades.
func (ps *ProfileSet) Instrument(venueName, coin string, kind Kind) (Instrument, bool) {
	if ps == nil {
		return Instrument{}, false
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	table, ok := ps.venues[strings.ToLower(strings.TrimSpace(venueName))]
	if !ok {
		return Instrument{}, false
	}
	coin = strings.ToUpper(strings.TrimSpace(coin))
	inst, ok := table[coin]
	if !ok {
		inst, ok = table["DEFAULT"]
		if !ok {
			return Instrument{}, false
		}
		inst.Symbol = coin
	}
	inst.Venue = kind
	return inst, true
}

// Exact reports whether the coin has its own entry, as opposed to
// resolving through the venue's "default" fallback.
func (ps *ProfileSet) Exact(venueName, coin string) bool {
	if ps == nil {
		return false
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	table, ok := ps.venues[strings.ToLower(strings.TrimSpace(venueName))]
	if !ok {
		return false
	}
	_, ok = table[strings.ToUpper(strings.TrimSpace(coin))]
	return ok
}

// HasVenue reports whether any profiles exist for the venue key.
func (ps *ProfileSet) HasVenue(venueName string) bool {
	if ps == nil {
		return false
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.venues[strings.ToLower(strings.TrimSpace(venueName))]
	return ok
}

// Refresh replaces one venue/coin entry, used when venue metadata is
// re-queried on demand.
func (ps *ProfileSet) Refresh(venueName string, inst Instrument) {
	if ps == nil {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	venueName = strings.ToLower(strings.TrimSpace(venueName))
	table, ok := ps.venues[venueName]
	if !ok {
		table = make(map[string]Instrument)
		ps.venues[venueName] = table
	}
	table[strings.ToUpper(strings.TrimSpace(inst.Symbol))] = inst
}
