package adapter

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/kenjobs/jobsync/internal/model"
)

const adzunaDefaultCountry = "za"

// Settings carries the per-source connection settings from configuration.
type Settings struct {
	BaseURL string
	APIKey  string
	AppID   string
	Host    string
	Country string
}

type builder struct {
	needsKey   bool
	needsAppID bool
	build      func(s Settings, client *http.Client) model.Source
}

var registry = map[string]builder{
	JSearchName: {
		needsKey: true,
		build: func(s Settings, c *http.Client) model.Source {
			return NewJSearchAdapter(s.BaseURL, s.APIKey, s.Host, s.Country, c)
		},
	},
	AdzunaName: {
		needsKey:   true,
		needsAppID: true,
		build: func(s Settings, c *http.Client) model.Source {
			country := s.Country
			if country == "" {
				country = adzunaDefaultCountry
			}
			return NewAdzunaAdapter(s.BaseURL, s.AppID, s.APIKey, country, c)
		},
	},
	ArbeitnowName: {
		build: func(s Settings, c *http.Client) model.Source {
			return NewArbeitnowAdapter(s.BaseURL, c)
		},
	},
	FindworkName: {
		needsKey: true,
		build: func(s Settings, c *http.Client) model.Source {
			return NewFindworkAdapter(s.BaseURL, s.APIKey, c)
		},
	},
	ReedName: {
		needsKey: true,
		build: func(s Settings, c *http.Client) model.Source {
			return NewReedAdapter(s.BaseURL, s.APIKey, c)
		},
	},
}

// Names returns the known adapter names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a registered adapter.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// CheckSettings returns an error if name is unknown or its credentials are
// missing.
func CheckSettings(name string, s Settings) error {
	b, ok := registry[name]
	if !ok {
		return fmt.Errorf("unknown source %q (known: %v)", name, Names())
	}
	if b.needsKey && s.APIKey == "" {
		return fmt.Errorf("source %s requires api_key", name)
	}
	if b.needsAppID && s.AppID == "" {
		return fmt.Errorf("source %s requires app_id", name)
	}
	return nil
}

// New builds the adapter registered under name.
func New(name string, s Settings, client *http.Client) (model.Source, error) {
	if err := CheckSettings(name, s); err != nil {
		return nil, err
	}
	return registry[name].build(s, client), nil
}
