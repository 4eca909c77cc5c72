package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[domain.StageSuggestion](5 * time.Minute)
	defer c.Close()

	c.Set("tenant-123:5000:abc", domain.StageSuggestion{Stage: domain.StageQualified})
	val, ok := c.Get("tenant-123:5000:abc")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val.Stage != domain.StageQualified {
		t.Errorf("expected qualified, got %s", val.Stage)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](40 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(80 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected no live entries, got %d", c.Len())
	}
}

func TestCache_Update(t *testing.T) {
	c := cache.New[domain.ImportJob](5 * time.Minute)
	defer c.Close()

	first, kept := c.Update("job-1", func(cur domain.ImportJob, ok bool) (domain.ImportJob, bool) {
		if ok {
			t.Error("expected absent key on first update")
		}
		cur.ID = "job-1"
		cur.Progress = 40
		return cur, true
	})
	if !kept || first.Progress != 40 {
		t.Fatalf("expected stored job at 40, got %+v (kept=%v)", first, kept)
	}

	c.Update("job-1", func(cur domain.ImportJob, ok bool) (domain.ImportJob, bool) {
		if !ok {
			t.Error("expected existing key on second update")
		}
		cur.Progress = 100
		cur.Status = domain.ImportCompleted
		return cur, true
	})

	job, _ := c.Get("job-1")
	if job.Progress != 100 || job.Status != domain.ImportCompleted {
		t.Errorf("unexpected job state: %+v", job)
	}
}

func TestCache_UpdateExpiredKeyLeavesNoEntry(t *testing.T) {
	c := cache.New[domain.ImportJob](40 * time.Millisecond)
	defer c.Close()

	c.Set("job-1", domain.ImportJob{ID: "job-1", Progress: 30})
	time.Sleep(80 * time.Millisecond)

	_, kept := c.Update("job-1", func(cur domain.ImportJob, ok bool) (domain.ImportJob, bool) {
		if ok {
			t.Error("expected the expired job to read as absent")
		}
		return cur, ok
	})
	if kept {
		t.Error("expected nothing stored")
	}
	if _, ok := c.Get("job-1"); ok {
		t.Fatal("expired job must not be revived as a blank entry")
	}
	if c.Len() != 0 {
		t.Errorf("expected no live entries, got %d", c.Len())
	}
}

func TestCache_UpdateAbsentKeyWithoutKeep(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Update("missing", func(cur string, ok bool) (string, bool) { return cur, ok })
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected no entry for an absent key")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected key to be deleted")
	}
}
