package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

type staticAccounts []string

func (a staticAccounts) Users(ctx context.Context) ([]string, error) {
	return a, nil
}

func openBolt(t *testing.T, path string) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	return db
}

func TestCollector_RestoresAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	db := openBolt(t, path)

	c, err := NewCollector(db, New(), nil, path, time.Minute)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.Add(FamilySegmentWrites, "save", ResultOK)
	c.Add(FamilySegmentWrites, "save", ResultOK)
	c.Add(FamilyTokenVerifications, ResultError)
	c.Add(FamilyHTTPRequests, "GET", "/segments/{id}", "200")
	c.Add("no_such_family", "x")

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	db.Close()

	db = openBolt(t, path)
	defer db.Close()

	m := New()
	c, err = NewCollector(db, m, nil, path, time.Minute)
	if err != nil {
		t.Fatalf("NewCollector() reopen error = %v", err)
	}
	defer c.Stop()

	if got := c.Total(FamilySegmentWrites, "save", ResultOK); got != 2 {
		t.Errorf("Total(segment_writes save ok) = %v, want 2", got)
	}
	if got := counterValue(t, m.SegmentWritesTotal.WithLabelValues("save", "ok")); got != 2 {
		t.Errorf("restored segment writes = %v, want 2", got)
	}
	if got := counterValue(t, m.HTTPRequestsTotal.WithLabelValues("GET", "/segments/{id}", "200")); got != 1 {
		t.Errorf("restored http requests = %v, want 1", got)
	}
	if got := c.Total("no_such_family", "x"); got != 0 {
		t.Errorf("unknown family total = %v, want 0", got)
	}
}

func TestCollector_IgnoresCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	db := openBolt(t, path)
	defer db.Close()

	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMetrics)
		if err != nil {
			return err
		}
		return b.Put(keyCounters, []byte("{not json"))
	})
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}

	c, err := NewCollector(db, New(), nil, path, time.Minute)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	c.Stop()
}

func TestCollector_SystemMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	db := openBolt(t, path)
	defer db.Close()

	m := New()
	c, err := NewCollector(db, m, staticAccounts{"u1", "u2"}, path, time.Second)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	defer c.Stop()

	c.collectSystemMetrics(context.Background())

	if got := gaugeValue(t, m.Accounts); got != 2 {
		t.Errorf("Accounts = %v, want 2", got)
	}
	if got := gaugeValue(t, m.StorageUsedBytes); got <= 0 {
		t.Errorf("StorageUsedBytes = %v, want > 0", got)
	}
}

func TestIncHelpers_UseGlobalCollector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	db := openBolt(t, path)
	defer db.Close()

	m := New()
	c, err := NewCollector(db, m, nil, path, time.Second)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	defer c.Stop()

	SetGlobal(m)
	SetGlobalCollector(c)
	defer SetGlobal(nil)
	defer SetGlobalCollector(nil)

	IncHistoryExport("xlsx")
	IncMailCheck(ResultOK)

	if got := c.Total(FamilyHistoryExports, "xlsx"); got != 1 {
		t.Errorf("Total(history_exports xlsx) = %v, want 1", got)
	}
	if got := counterValue(t, m.MailChecksTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("MailChecksTotal = %v, want 1", got)
	}
}
