package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is a chart of accounts file: tenants, each with a tree of accounts.
type Seed struct {
	Tenants []SeedTenant `yaml:"tenants"`
}

type SeedTenant struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Accounts []SeedAccount `yaml:"accounts,omitempty"`
}

type SeedAccount struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Children []SeedAccount `yaml:"children,omitempty"`
}

// SeedAccountRef is one account of a flattened seed tree. ParentID is empty
// for roots.
type SeedAccountRef struct {
	ID       string
	Name     string
	ParentID string
}

// LoadSeed reads and checks a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate requires every tenant and account to have an id and a name, and
// ids to be unique within their scope.
func (s *Seed) Validate() error {
	if len(s.Tenants) == 0 {
		return errors.New("seed: no tenants")
	}
	tenants := make(map[string]bool, len(s.Tenants))
	for i, t := range s.Tenants {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("seed: tenant %d needs an id and a name", i)
		}
		if tenants[t.ID] {
			return fmt.Errorf("seed: duplicate tenant %s", t.ID)
		}
		tenants[t.ID] = true

		seen := make(map[string]bool)
		for _, ref := range t.Flatten() {
			if ref.ID == "" || ref.Name == "" {
				return fmt.Errorf("seed: tenant %s: account under %q needs an id and a name", t.ID, ref.ParentID)
			}
			if seen[ref.ID] {
				return fmt.Errorf("seed: tenant %s: duplicate account %s", t.ID, ref.ID)
			}
			seen[ref.ID] = true
		}
	}
	return nil
}

// Flatten lists the tenant's accounts depth first, parents before children.
func (t SeedTenant) Flatten() []SeedAccountRef {
	var out []SeedAccountRef
	var walk func(parentID string, accounts []SeedAccount)
	walk = func(parentID string, accounts []SeedAccount) {
		for _, a := range accounts {
			out = append(out, SeedAccountRef{ID: a.ID, Name: a.Name, ParentID: parentID})
			walk(a.ID, a.Children)
		}
	}
	walk("", t.Accounts)
	return out
}
