// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/go-a2a/sqlexcel/a2a"
)

const (
	// DefaultCardCacheSize is the number of agent cards a [CardResolver] keeps.
	DefaultCardCacheSize = 64
	// DefaultCardTTL is how long a resolved agent card is reused.
	DefaultCardTTL = 5 * time.Minute
	// DefaultCardFetchTimeout bounds one agent card request.
	DefaultCardFetchTimeout = 30 * time.Second
)

// CardResolver fetches and caches agent cards.
type CardResolver struct {
	hc           *http.Client
	logger       *slog.Logger
	size         int
	ttl          time.Duration
	fetchTimeout time.Duration
	cache        *expirable.LRU[string, *a2a.AgentCard]
	group        singleflight.Group
}

// ResolverOption configures a [CardResolver].
type ResolverOption func(*CardResolver)

// WithResolverHTTPClient sets the [*http.Client] cards are fetched with.
func WithResolverHTTPClient(hc *http.Client) ResolverOption {
	return func(r *CardResolver) {
		r.hc = hc
	}
}

// WithResolverLogger sets the [*slog.Logger] for the [CardResolver].
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *CardResolver) {
		r.logger = logger
	}
}

// WithCardFetchTimeout bounds each agent card request.
func WithCardFetchTimeout(d time.Duration) ResolverOption {
	return func(r *CardResolver) {
		r.fetchTimeout = d
	}
}

// WithCardCache sets the capacity and the lifetime of cached cards.
// A non-positive ttl disables caching.
func WithCardCache(size int, ttl time.Duration) ResolverOption {
	return func(r *CardResolver) {
		r.size = size
		r.ttl = ttl
	}
}

// NewCardResolver creates a new [CardResolver].
func NewCardResolver(opts ...ResolverOption) *CardResolver {
	r := &CardResolver{
		hc:           &http.Client{},
		logger:       slog.Default(),
		size:         DefaultCardCacheSize,
		ttl:          DefaultCardTTL,
		fetchTimeout: DefaultCardFetchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ttl > 0 && r.size > 0 {
		r.cache = expirable.NewLRU[string, *a2a.AgentCard](r.size, nil, r.ttl)
	}
	return r
}

// Resolve returns the validated agent card published under baseURL. Concurrent
// lookups of the same agent share one request.
func (r *CardResolver) Resolve(ctx context.Context, baseURL string) (*a2a.AgentCard, error) {
	key := strings.TrimRight(baseURL, "/")
	if r.cache != nil {
		if card, ok := r.cache.Get(key); ok {
			return card, nil
		}
	}

	// The shared fetch outlives any single caller; each caller stops waiting
	// when its own context ends.
	ch := r.group.DoChan(key, func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if r.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, r.fetchTimeout)
			defer cancel()
		}
		card, err := r.fetch(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Add(key, card)
		}
		return card, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, NewDiscoveryError(key, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		r.logger.WarnContext(ctx, "agent card resolution failed", "base_url", key, "error", res.Err)
		return nil, res.Err
	}
	card := res.Val.(*a2a.AgentCard)
	r.logger.DebugContext(ctx, "agent card resolved", "base_url", key, "name", card.Name, "shared", res.Shared)
	return card, nil
}

// Invalidate drops the cached card of baseURL.
func (r *CardResolver) Invalidate(baseURL string) {
	if r.cache != nil {
		r.cache.Remove(strings.TrimRight(baseURL, "/"))
	}
}

// Client resolves the card of the agent under baseURL and returns a [Client] for it.
func (r *CardResolver) Client(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	card, err := r.Resolve(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	return NewFromCard(card, opts...)
}

func (r *CardResolver) fetch(ctx context.Context, baseURL string) (*a2a.AgentCard, error) {
	targetURL := baseURL + a2a.AgentCardWellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, http.NoBody)
	if err != nil {
		return nil, NewDiscoveryError(baseURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, NewDiscoveryError(baseURL, NewNetworkError("fetch agent card", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewDiscoveryError(baseURL, NewHTTPError(resp.StatusCode, fmt.Sprintf("fetch agent card from %s", targetURL), nil))
	}

	var card a2a.AgentCard
	dec := jsontext.NewDecoder(resp.Body)
	if err := json.UnmarshalDecode(dec, &card, json.DefaultOptionsV2()); err != nil {
		return nil, NewDiscoveryError(baseURL, fmt.Errorf("decode agent card: %w", err))
	}
	if err := ValidateAgentCard(&card); err != nil {
		return nil, NewDiscoveryError(baseURL, err)
	}
	return &card, nil
}

// ValidateAgentCard checks the fields every agent card must carry.
func ValidateAgentCard(card *a2a.AgentCard) error {
	if card == nil {
		return NewValidationError("", "agent card is nil")
	}
	if card.Name == "" {
		return NewValidationError("name", "agent card missing required field")
	}
	if card.URL == "" {
		return NewValidationError("url", "agent card missing required field")
	}
	if card.Version == "" {
		return NewValidationError("version", "agent card missing required field")
	}

	seen := make(map[string]bool, len(card.Skills))
	for i, skill := range card.Skills {
		if skill.ID == "" {
			return NewValidationError(fmt.Sprintf("skills[%d].id", i), "skill missing required field")
		}
		if seen[skill.ID] {
			return NewValidationError(fmt.Sprintf("skills[%d].id", i), fmt.Sprintf("duplicate skill id %q", skill.ID))
		}
		seen[skill.ID] = true
	}
	return nil
}

// FindSkill finds a skill by ID in an agent card.
func FindSkill(card *a2a.AgentCard, skillID string) (*a2a.AgentSkill, bool) {
	for i := range card.Skills {
		if card.Skills[i].ID == skillID {
			return &card.Skills[i], true
		}
	}
	return nil, false
}

// SupportedOutputModes returns the output modes of a skill, falling back to the
// agent's default output modes.
func SupportedOutputModes(card *a2a.AgentCard, skillID string) []string {
	if skill, ok := FindSkill(card, skillID); ok && len(skill.OutputModes) > 0 {
		return skill.OutputModes
	}
	return card.DefaultOutputModes
}
