// Package poscache keeps the latest reported GPS fix per radio origin.
// Held only in memory; lost across restart by design.
package poscache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Position is the latest known fix for an origin.
type Position struct {
	Lat        float64
	Lon        float64
	ReceivedAt time.Time
	SeenCount  uint64
}

// Cache is safe for one writer (the radio reader) and many readers.
// Entries never expire; growth is bounded by the radio neighborhood.
type Cache struct {
	c   *cache.Cache
	now func() time.Time
}

func New() *Cache {
	return NewWithNow(time.Now)
}

// NewWithNow injects the time source, used by tests to control ages.
func NewWithNow(now func() time.Time) *Cache {
	return &Cache{
		c:   cache.New(cache.NoExpiration, 0),
		now: now,
	}
}

// Update replaces the whole record for origin and increments its seen count.
func (p *Cache) Update(origin string, lat, lon float64) {
	var count uint64 = 1
	if prev, found := p.c.Get(origin); found {
		count = prev.(Position).SeenCount + 1
	}
	p.c.Set(origin, Position{
		Lat:        lat,
		Lon:        lon,
		ReceivedAt: p.now(),
		SeenCount:  count,
	}, cache.NoExpiration)
}

func (p *Cache) Get(origin string) (Position, bool) {
	v, found := p.c.Get(origin)
	if !found {
		return Position{}, false
	}
	return v.(Position), true
}

// Age returns how old the cached fix is. Future-dated fixes report zero.
func (p *Cache) Age(origin string) (time.Duration, bool) {
	pos, found := p.Get(origin)
	if !found {
		return 0, false
	}
	age := p.now().Sub(pos.ReceivedAt)
	if age < 0 {
		age = 0
	}
	return age, true
}

// Origins lists every origin with a cached fix.
func (p *Cache) Origins() []string {
	items := p.c.Items()
	origins := make([]string, 0, len(items))
	for origin := range items {
		origins = append(origins, origin)
	}
	return origins
}

func (p *Cache) Len() int {
	return p.c.ItemCount()
}
