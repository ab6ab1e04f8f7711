package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags toggles optional behaviour, optionally for a percentage of
// users. A user always lands in the same bucket for a given feature.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]*Feature
	overrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent is 0-100; users are bucketed by a hash of their ID.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	FeatureRollupReport   = "rollup.report"   // nightly report message after the roll-up
	FeatureFreeText       = "chat.free_text"  // classify plain messages into events
	FeatureDashboardCache = "dashboard.cache" // cache the dashboard read model in redis
	FeatureDashboardAPI   = "dashboard.api"   // serve the token-guarded HTTP API
)

// LoadFeatureFlags loads the defaults and applies FEATURE_* overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults: everything on at 100%.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature),
		overrides: make(map[string]map[string]bool),
	}
	for name, desc := range map[string]string{
		FeatureRollupReport:   "Send the nightly roll-up report",
		FeatureFreeText:       "Classify free text into events",
		FeatureDashboardCache: "Cache dashboards in redis",
		FeatureDashboardAPI:   "Serve the dashboard API",
	} {
		ff.features[name] = &Feature{Name: name, Description: desc, Enabled: true, RolloutPercent: 100}
	}
	return ff
}

// loadFromEnvironment reads FEATURE_<NAME>=true|false|<percent>, e.g.
// FEATURE_ROLLUP_REPORT=25 sends the report to a quarter of the users.
func (ff *FeatureFlags) loadFromEnvironment() {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	for name, f := range ff.features {
		raw := strings.TrimSpace(os.Getenv(featureNameToEnvKey(name)))
		if raw == "" {
			continue
		}
		if b, err := strconv.ParseBool(raw); err == nil {
			f.Enabled = b
			if b {
				f.RolloutPercent = 100
			}
			continue
		}
		if pct, err := strconv.Atoi(raw); err == nil && pct >= 0 && pct <= 100 {
			f.Enabled = pct > 0
			f.RolloutPercent = pct
		}
	}
}

// featureNameToEnvKey converts "rollup.report" to "FEATURE_ROLLUP_REPORT".
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
	return "FEATURE_" + key
}

// Enabled reports whether a feature is on at all.
func (ff *FeatureFlags) Enabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	f, ok := ff.features[name]
	return ok && f.Enabled
}

// EnabledFor reports whether a feature is on for userID.
func (ff *FeatureFlags) EnabledFor(name, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if o, ok := ff.overrides[userID]; ok {
		if enabled, ok := o[name]; ok {
			return enabled
		}
	}

	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	return inRollout(userID, name, f.RolloutPercent)
}

func inRollout(userID, name string, percent int) bool {
	if percent <= 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID + ":" + name))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride forces a feature on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.overrides[userID] == nil {
		ff.overrides[userID] = make(map[string]bool)
	}
	ff.overrides[userID][name] = enabled
}

// SetRolloutPercent updates the rollout of a feature.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("feature %s: rollout %d out of range", name, percent)
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.features[name]
	if !ok {
		return fmt.Errorf("feature %s: %w", name, ErrUnknownFeature)
	}
	f.RolloutPercent = percent
	f.Enabled = percent > 0
	return nil
}

// ErrUnknownFeature is returned for names that are not registered.
var ErrUnknownFeature = fmt.Errorf("unknown feature")
