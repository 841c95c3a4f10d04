package config

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"spoon/internal/model"
)

// RestaurantConfig represents a single restaurant.
type RestaurantConfig struct {
	ID          int64                    `yaml:"id"`
	Name        string                   `yaml:"name"`
	Timezone    string                   `yaml:"timezone"`
	IsActive    bool                     `yaml:"is_active"`
	CleanupCron string                   `yaml:"cleanup_cron,omitempty"`
	Policy      *CombinationPolicyConfig `yaml:"combination_policy,omitempty"`
}

// CombinationPolicyConfig sets each optional component to optional, required
// or forbidden.
type CombinationPolicyConfig struct {
	Entrada   string `yaml:"entrada"`
	Principio string `yaml:"principio"`
	Bebida    string `yaml:"bebida"`
}

// DefaultsConfig represents global default settings.
type DefaultsConfig struct {
	Policy      *CombinationPolicyConfig `yaml:"combination_policy"`
	CleanupCron string                   `yaml:"cleanup_cron"`
}

// RestaurantsConfig is the root configuration for restaurants.yaml.
type RestaurantsConfig struct {
	Restaurants []RestaurantConfig `yaml:"restaurants"`
	Defaults    DefaultsConfig     `yaml:"defaults"`
}

// LoadRestaurantsConfig loads and validates restaurants configuration from YAML file.
func LoadRestaurantsConfig(path string) (*RestaurantsConfig, error) {
	if path == "" {
		path = "configs/restaurants.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read restaurants config: %w", err)
	}

	var cfg RestaurantsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse restaurants config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate restaurants config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors. A missing timezone is
// allowed here; it is reported when a decision needs the zone.
func (c *RestaurantsConfig) Validate() error {
	if len(c.Restaurants) == 0 {
		return fmt.Errorf("no restaurants defined")
	}

	ids := make(map[int64]bool)
	for i, r := range c.Restaurants {
		if r.ID <= 0 {
			return fmt.Errorf("restaurant[%d]: id must be positive, got %d", i, r.ID)
		}
		if ids[r.ID] {
			return fmt.Errorf("restaurant[%d]: duplicate id %d", i, r.ID)
		}
		ids[r.ID] = true

		if r.Name == "" {
			return fmt.Errorf("restaurant[%d]: name is required", i)
		}
		if r.Timezone != "" {
			if _, err := time.LoadLocation(r.Timezone); err != nil {
				return fmt.Errorf("restaurant[%d]: unknown timezone '%s'", i, r.Timezone)
			}
		}
		if r.Policy != nil {
			if err := validatePolicy(r.Policy, fmt.Sprintf("restaurant[%d].combination_policy", i)); err != nil {
				return err
			}
		}
	}

	if c.Defaults.Policy != nil {
		if err := validatePolicy(c.Defaults.Policy, "defaults.combination_policy"); err != nil {
			return err
		}
	}
	return nil
}

func validatePolicy(p *CombinationPolicyConfig, prefix string) error {
	fields := []struct {
		name  string
		value string
	}{
		{"entrada", p.Entrada},
		{"principio", p.Principio},
		{"bebida", p.Bebida},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if !model.ComponentRule(f.value).Valid() {
			return fmt.Errorf("%s.%s: invalid rule '%s', expected optional, required or forbidden", prefix, f.name, f.value)
		}
	}
	return nil
}

// applyDefaults applies default values to restaurants without explicit configuration.
func (c *RestaurantsConfig) applyDefaults() {
	for i := range c.Restaurants {
		if c.Restaurants[i].Policy == nil && c.Defaults.Policy != nil {
			p := *c.Defaults.Policy
			c.Restaurants[i].Policy = &p
		}
		if c.Restaurants[i].CleanupCron == "" {
			c.Restaurants[i].CleanupCron = c.Defaults.CleanupCron
		}
	}
}

// CombinationPolicy converts the YAML policy, unset rules becoming optional.
func (r RestaurantConfig) CombinationPolicy() model.CombinationPolicy {
	policy := model.DefaultCombinationPolicy()
	if r.Policy == nil {
		return policy
	}
	if r.Policy.Entrada != "" {
		policy.Entrada = model.ComponentRule(r.Policy.Entrada)
	}
	if r.Policy.Principio != "" {
		policy.Principio = model.ComponentRule(r.Policy.Principio)
	}
	if r.Policy.Bebida != "" {
		policy.Bebida = model.ComponentRule(r.Policy.Bebida)
	}
	return policy
}

// Registry holds the current restaurants configuration and is safe for
// concurrent use while the file watcher swaps it.
type Registry struct {
	mu   sync.RWMutex
	byID map[int64]RestaurantConfig
}

func NewRegistry(cfg *RestaurantsConfig) *Registry {
	r := &Registry{}
	r.Update(cfg)
	return r
}

// Update replaces the configuration.
func (r *Registry) Update(cfg *RestaurantsConfig) {
	byID := make(map[int64]RestaurantConfig)
	if cfg != nil {
		for _, rc := range cfg.Restaurants {
			byID[rc.ID] = rc
		}
	}
	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()
}

func (r *Registry) Restaurant(id int64) (RestaurantConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.byID[id]
	return rc, ok
}

// TimezoneFor returns the restaurant's configured zone identifier.
func (r *Registry) TimezoneFor(id int64) (string, bool) {
	rc, ok := r.Restaurant(id)
	if !ok || rc.Timezone == "" {
		return "", false
	}
	return rc.Timezone, true
}

// PolicyFor returns the restaurant's combination policy.
func (r *Registry) PolicyFor(id int64) (model.CombinationPolicy, bool) {
	rc, ok := r.Restaurant(id)
	if !ok {
		return model.CombinationPolicy{}, false
	}
	return rc.CombinationPolicy(), true
}

// Active lists active restaurants by id.
func (r *Registry) Active() []RestaurantConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RestaurantConfig, 0, len(r.byID))
	for _, rc := range r.byID {
		if rc.IsActive {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
