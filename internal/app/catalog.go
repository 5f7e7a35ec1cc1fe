/**
 * @description
 * This file implements the provider catalog: the detailed list of bank providers the
 * service accepts, built from the upstream provider list and cached in Redis.
 *
 * @notes
 * - The catalog is filtered by country and by provider code markers so only the
 *   corporate banking providers the product supports are offered.
 * - Detail fetches are retried with backoff on any error; providers whose
 *   details still cannot be fetched are skipped, not fatal.
 */
package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
	"github.com/Qompa-Fi/banking-service/internal/store"
	"github.com/Qompa-Fi/banking-service/pkg/prometeoclient"
)

const providerDetailConcurrency = 8

// defaultDetailRetry applies when CatalogOptions leaves DetailRetry unset.
var defaultDetailRetry = prometeoclient.RetryPolicy{
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     3 * time.Second,
	MaxAttempts:    3,
}

// ProviderAPI is the part of the upstream client the catalog needs.
type ProviderAPI interface {
	ListProviders(ctx context.Context) ([]domain.ProviderSummary, error)
	GetProvider(ctx context.Context, code string) (*domain.Provider, error)
}

// CatalogOptions tunes which providers make it into the catalog.
type CatalogOptions struct {
	Country     string
	CodeFilters []string
	TTL         time.Duration
	// DetailRetry bounds the attempts per provider detail fetch.
	DetailRetry prometeoclient.RetryPolicy
}

// ProviderCatalog serves the supported providers.
type ProviderCatalog struct {
	api    ProviderAPI
	cache  store.ProviderCache
	opts   CatalogOptions
	logger zerolog.Logger
	sleep  prometeoclient.Sleeper

	refreshMu sync.Mutex
}

func NewProviderCatalog(api ProviderAPI, cache store.ProviderCache, opts CatalogOptions, logger zerolog.Logger) *ProviderCatalog {
	if opts.DetailRetry.MaxAttempts < 1 {
		opts.DetailRetry = defaultDetailRetry
	}
	return &ProviderCatalog{
		api:    api,
		cache:  cache,
		opts:   opts,
		logger: logger.With().Str("component", "provider_catalog").Logger(),
		sleep:  prometeoclient.SleepContext,
	}
}

// sandboxProvider describes the upstream test provider, which accepts any
// well formed username and password.
var sandboxProvider = domain.Provider{
	Name:    domain.SandboxProvider,
	Country: "PE",
	AuthFields: []domain.AuthField{
		{Name: "username", Type: "text", Label: "Username"},
		{Name: "password", Type: "password", Label: "Password"},
	},
	Bank: domain.Bank{Code: "test", Name: "Sandbox"},
}

// Providers returns the cached catalog, building it on a miss.
func (c *ProviderCatalog) Providers(ctx context.Context) ([]domain.Provider, error) {
	if providers, ok := c.cache.GetProviders(ctx); ok {
		return providers, nil
	}
	return c.rebuild(ctx, false)
}

// Warm rebuilds the catalog even when a cached copy exists.
func (c *ProviderCatalog) Warm(ctx context.Context) error {
	_, err := c.rebuild(ctx, true)
	return err
}

// FindProvider returns the provider named name. Unknown names are an invalid
// argument.
func (c *ProviderCatalog) FindProvider(ctx context.Context, name string) (*domain.Provider, error) {
	if name == domain.SandboxProvider {
		p := sandboxProvider
		return &p, nil
	}

	providers, err := c.Providers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range providers {
		if providers[i].Name == name {
			p := providers[i]
			return &p, nil
		}
	}
	return nil, invalidArgument("no provider found with name '%s'", name)
}

// rebuild fetches the catalog from the upstream and stores it in the cache.
func (c *ProviderCatalog) rebuild(ctx context.Context, force bool) ([]domain.Provider, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have rebuilt it while this one waited.
	if !force {
		if providers, ok := c.cache.GetProviders(ctx); ok {
			return providers, nil
		}
	}

	summaries, err := c.api.ListProviders(ctx)
	if err != nil {
		return nil, translateUpstream(c.logger, "list_providers", err)
	}

	selected := c.filter(summaries)
	providers := c.fetchDetails(ctx, selected)
	if len(providers) == 0 {
		c.logger.Error().Int("listed", len(summaries)).Int("selected", len(selected)).Msg("provider catalog is empty")
		return nil, ErrSomethingWentWrong
	}

	c.cache.PutProviders(ctx, providers, c.opts.TTL)
	c.logger.Info().Int("providers", len(providers)).Msg("provider catalog refreshed")
	return providers, nil
}

func (c *ProviderCatalog) filter(summaries []domain.ProviderSummary) []domain.ProviderSummary {
	var out []domain.ProviderSummary
	for _, s := range summaries {
		if c.opts.Country != "" && !strings.EqualFold(s.Country, c.opts.Country) {
			continue
		}
		if len(c.opts.CodeFilters) > 0 && !containsAny(strings.ToLower(s.Code), c.opts.CodeFilters) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (c *ProviderCatalog) fetchDetails(ctx context.Context, summaries []domain.ProviderSummary) []domain.Provider {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		providers []domain.Provider
		sem       = make(chan struct{}, providerDetailConcurrency)
	)

	for _, s := range summaries {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p, err := c.getProvider(ctx, code)
			if err != nil {
				c.logger.Warn().Err(err).Str("provider", code).Msg("failed to fetch provider details; skipping")
				return
			}
			mu.Lock()
			providers = append(providers, *p)
			mu.Unlock()
		}(s.Code)
	}
	wg.Wait()

	sort.Slice(providers, func(i, j int) bool { return providers[i].Name < providers[j].Name })
	return providers
}

// getProvider fetches one provider, repeating failed calls with a doubling
// delay until the attempts run out or ctx is done.
func (c *ProviderCatalog) getProvider(ctx context.Context, code string) (*domain.Provider, error) {
	policy := c.opts.DetailRetry
	for attempt := 1; ; attempt++ {
		p, err := c.api.GetProvider(ctx, code)
		if err == nil {
			if attempt > 1 {
				c.logger.Debug().Str("provider", code).Int("attempts", attempt).Msg("provider details fetched after retrying")
			}
			return p, nil
		}
		if attempt >= policy.MaxAttempts || ctx.Err() != nil {
			return nil, err
		}

		delay := policy.Delay(attempt)
		c.logger.Warn().Err(err).Str("provider", code).Dur("backoff", delay).Msg("failed to fetch provider details; retrying")
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, err
		}
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
