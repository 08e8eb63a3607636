package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/middleware/auth"
)

type fixturesFile struct {
	Stores []storeEntry `yaml:"stores"`
}

type storeEntry struct {
	Slug             string          `yaml:"slug"`
	Name             string          `yaml:"name"`
	Currency         string          `yaml:"currency"`
	OrderConfirmURL  string          `yaml:"order_confirm_url"`
	CheckoutErrorURL string          `yaml:"checkout_error_url"`
	Providers        []providerEntry `yaml:"providers"`
	Webhooks         []webhookEntry  `yaml:"webhooks"`
	Staff            []staffEntry    `yaml:"staff"`
}

type providerEntry struct {
	Type        string                 `yaml:"type"`
	TestMode    bool                   `yaml:"test_mode"`
	IsActive    *bool                  `yaml:"is_active"`
	Credentials map[string]interface{} `yaml:"credentials"`
}

type webhookEntry struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type staffEntry struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
}

// storeFixture is one store with everything that hangs off it.
type storeFixture struct {
	Store     *model.Store
	Providers []*model.ProviderConfig
	Webhooks  []*model.Webhook
	Staff     []staffEntry
}

func loadFixtures(path string) ([]*storeFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures file: %w", err)
	}
	return parseFixtures(data)
}

func parseFixtures(data []byte) ([]*storeFixture, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var file fixturesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal fixtures yaml: %w", err)
	}

	fixtures := make([]*storeFixture, 0, len(file.Stores))
	seen := make(map[string]bool, len(file.Stores))
	for i, entry := range file.Stores {
		slug := strings.TrimSpace(entry.Slug)
		if slug == "" {
			return nil, fmt.Errorf("stores[%d]: slug is required", i)
		}
		if seen[slug] {
			return nil, fmt.Errorf("stores[%d]: duplicate slug %q", i, slug)
		}
		seen[slug] = true

		currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
		if len(currency) != 3 {
			return nil, fmt.Errorf("stores[%d]: currency must be a 3-letter code", i)
		}

		name := entry.Name
		if name == "" {
			name = slug
		}

		fixture := &storeFixture{
			Store: &model.Store{
				Slug:             slug,
				Name:             name,
				Currency:         currency,
				OrderConfirmURL:  entry.OrderConfirmURL,
				CheckoutErrorURL: entry.CheckoutErrorURL,
			},
		}

		for j, p := range entry.Providers {
			providerType := provider.Type(strings.ToLower(strings.TrimSpace(p.Type)))
			switch providerType {
			case provider.TypeStripe, provider.TypePayPal, provider.TypePayMe:
			default:
				return nil, fmt.Errorf("stores[%d].providers[%d]: unknown provider %q", i, j, p.Type)
			}

			credentials, err := json.Marshal(p.Credentials)
			if err != nil {
				return nil, fmt.Errorf("stores[%d].providers[%d]: encode credentials: %w", i, j, err)
			}

			isActive := true
			if p.IsActive != nil {
				isActive = *p.IsActive
			}

			fixture.Providers = append(fixture.Providers, &model.ProviderConfig{
				ProviderType: string(providerType),
				Credentials:  credentials,
				TestMode:     p.TestMode,
				IsActive:     isActive,
			})
		}

		for j, w := range entry.Webhooks {
			if w.URL == "" {
				return nil, fmt.Errorf("stores[%d].webhooks[%d]: url is required", i, j)
			}
			events := w.Events
			if len(events) == 0 {
				events = []string{"*"}
			}
			fixture.Webhooks = append(fixture.Webhooks, &model.Webhook{
				URL:      w.URL,
				Events:   events,
				Secret:   w.Secret,
				IsActive: true,
			})
		}

		for j, s := range entry.Staff {
			if s.ID == "" {
				return nil, fmt.Errorf("stores[%d].staff[%d]: id is required", i, j)
			}
			switch s.Role {
			case "":
				entry.Staff[j].Role = auth.RoleStaff
			case auth.RoleOwner, auth.RoleAdmin, auth.RoleStaff:
			default:
				return nil, fmt.Errorf("stores[%d].staff[%d]: unknown role %q", i, j, s.Role)
			}
		}
		fixture.Staff = entry.Staff

		fixtures = append(fixtures, fixture)
	}

	return fixtures, nil
}
