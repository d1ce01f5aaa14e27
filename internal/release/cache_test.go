// SPDX-License-Identifier: MPL-2.0

package release

import (
	"sync"
	"testing"
	"time"
)

func TestCachePutThenGet(t *testing.T) {
	c := NewCache()
	c.Put("owner/repo", Release{TagName: "v1.0.0"})

	got := c.Get("owner/repo")
	if got == nil || got.TagName != "v1.0.0" {
		t.Fatalf("Get after Put = %+v, want tag v1.0.0", got)
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewCache()
	if got := c.Get("owner/unknown"); got != nil {
		t.Errorf("Get on empty cache = %+v, want nil", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	now := time.Now()
	c := NewCache(WithClock(func() time.Time { return now }))

	c.Put("owner/repo", Release{TagName: "v1.0.0"})

	// Just inside the TTL the entry is still served.
	now = now.Add(DefaultTTL - time.Second)
	if got := c.Get("owner/repo"); got == nil {
		t.Fatal("entry expired before TTL elapsed")
	}

	// Past the TTL the entry is evicted on lookup and stays gone.
	now = now.Add(2 * time.Second)
	if got := c.Get("owner/repo"); got != nil {
		t.Fatalf("Get after TTL = %+v, want nil", got)
	}
	if got := c.Get("owner/repo"); got != nil {
		t.Fatal("expired entry was resurrected by a second lookup")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted, Len() = %d", c.Len())
	}
}

func TestCachePutReplaces(t *testing.T) {
	c := NewCache()
	c.Put("owner/repo", Release{TagName: "v1.0.0"})
	c.Put("owner/repo", Release{TagName: "v1.1.0"})

	if got := c.Get("owner/repo"); got == nil || got.TagName != "v1.1.0" {
		t.Fatalf("Get after replacing Put = %+v, want tag v1.1.0", got)
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache()
	c.Put("a/a", Release{TagName: "v1.0.0"})
	c.Put("b/b", Release{TagName: "v2.0.0"})

	c.ClearRepo("a/a")
	if c.Get("a/a") != nil {
		t.Error("ClearRepo left the entry behind")
	}
	if c.Get("b/b") == nil {
		t.Error("ClearRepo removed an unrelated entry")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Clear left %d entries", c.Len())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("owner/repo", Release{TagName: "v1.0.0"})
				c.Get("owner/repo")
				c.Get("owner/other")
			}
		}()
	}
	wg.Wait()

	if got := c.Get("owner/repo"); got == nil {
		t.Fatal("entry lost under concurrent access")
	}
}
