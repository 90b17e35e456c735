package core

import (
	"sync"
	"testing"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

func TestTableCacheSharesTables(t *testing.T) {
	cache := NewTableCache(0)
	p := model.DefaultPhysicalParameters()

	a := NewPatternModel(p, WithTableCache(cache))
	b := NewPatternModel(p, WithTableCache(cache))

	if cache.Builds() != 1 {
		t.Fatalf("builds = %d, want 1 for two models with the same parameters", cache.Builds())
	}
	if a.Lookup(2.2) != b.Lookup(2.2) {
		t.Fatalf("shared tables must answer identically")
	}
}

func TestTableCacheSingleFlight(t *testing.T) {
	cache := NewTableCache(4)
	p := model.DefaultPhysicalParameters()
	p.DiameterM = 0.9

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			NewPatternModel(p, WithTableCache(cache))
		}()
	}
	wg.Wait()

	if cache.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", cache.Len())
	}
	// Late goroutines may miss the in-flight call and rebuild, but never
	// more than once per caller.
	if b := cache.Builds(); b < 1 || b > 8 {
		t.Fatalf("builds = %d, want within [1, 8]", b)
	}
}

func TestTableCacheEvictsOldest(t *testing.T) {
	cache := NewTableCache(2)
	base := model.DefaultPhysicalParameters()

	for _, d := range []float64{0.5, 0.6, 0.7} {
		p := base
		p.DiameterM = d
		NewPatternModel(p, WithTableCache(cache))
	}
	if cache.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", cache.Len())
	}

	p := base
	p.DiameterM = 0.5
	NewPatternModel(p, WithTableCache(cache))
	if cache.Builds() != 4 {
		t.Fatalf("builds = %d, want 4 after re-requesting an evicted table", cache.Builds())
	}

	p.DiameterM = 0.7
	NewPatternModel(p, WithTableCache(cache))
	if cache.Builds() != 4 {
		t.Fatalf("builds = %d, want 4 for a cached table", cache.Builds())
	}
}
