// Package directory resolves opaque user ids to display profiles, with
// time-bounded caching in front of users.list.
package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/josephj/slack-copilot/internal/slack"
)

// freshFor is the cache freshness window.
const freshFor = 30 * time.Minute

// Profile is a workspace user's display profile. Immutable once fetched
// within a cache epoch.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RealName    string `json:"real_name"`
	Title       string `json:"title"`
	DisplayName string `json:"display_name"`
}

// BestName picks the most human-readable name available: display name,
// then real name, then the raw account name.
func (p Profile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.RealName != "" {
		return p.RealName
	}
	return p.Name
}

// Directory is one cache epoch of the user directory.
type Directory struct {
	Entries   map[string]Profile
	FetchedAt time.Time
}

// Lookup returns the profile for id, if present.
func (d Directory) Lookup(id string) (Profile, bool) {
	p, ok := d.Entries[id]
	return p, ok
}

// Lister is the slice of the Slack client the cache needs.
type Lister interface {
	UsersList(ctx context.Context, token string) ([]slack.Member, error)
}

// Cache serves the user directory with a freshness window. Concurrent
// misses share a single in-flight fetch; on refresh failure a stale
// directory is served as a degraded-but-valid fallback.
type Cache struct {
	lister Lister
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *Directory

	flight singleflight.Group
}

// NewCache creates an empty cache backed by the given lister.
func NewCache(lister Lister, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		lister: lister,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock. Test seam.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Resolve returns the user directory, fetching it if the cached epoch is
// missing or older than the freshness window. A refresh failure degrades
// to the stale epoch when one exists; only a cold-cache failure
// propagates.
func (c *Cache) Resolve(ctx context.Context, token string) (Directory, error) {
	c.mu.RLock()
	cached := c.current
	c.mu.RUnlock()

	if cached != nil && c.now().Sub(cached.FetchedAt) < freshFor {
		return *cached, nil
	}

	v, err, _ := c.flight.Do("directory", func() (any, error) {
		// Re-check under the flight: a concurrent caller may have
		// already refreshed while we waited.
		c.mu.RLock()
		current := c.current
		c.mu.RUnlock()
		if current != nil && c.now().Sub(current.FetchedAt) < freshFor {
			return *current, nil
		}

		members, err := c.lister.UsersList(ctx, token)
		if err != nil {
			if current != nil {
				c.logger.Warn("directory refresh failed, serving stale entries",
					slog.Time("fetched_at", current.FetchedAt),
					slog.String("error", err.Error()),
				)
				return *current, nil
			}
			return Directory{}, err
		}

		fresh := Directory{
			Entries:   make(map[string]Profile, len(members)),
			FetchedAt: c.now(),
		}
		for _, m := range members {
			fresh.Entries[m.ID] = Profile{
				ID:          m.ID,
				Name:        m.Name,
				RealName:    m.RealName,
				Title:       m.Profile.Title,
				DisplayName: m.Profile.DisplayName,
			}
		}

		c.mu.Lock()
		c.current = &fresh
		c.mu.Unlock()

		return fresh, nil
	})
	if err != nil {
		return Directory{}, err
	}
	return v.(Directory), nil
}

// Clear drops the cached epoch. Called on context teardown.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
