package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// memBlobs is an in-memory domain.BlobWriter and domain.BlobReader.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.puts++
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type auditRecorder struct{ events []string }

func (a *auditRecorder) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditRecorder) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchive_OncePerMarket(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	audit := &auditRecorder{}
	a := NewArchiver(blobs, blobs, audit)
	a.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	m := domain.Market{ID: 42, Status: domain.MarketStatusSettled, Options: []string{"a", "b"}, TotalPool: 300}
	positions := []domain.Position{{MarketID: 42, User: domain.Identity{1}, Amount: 300}}

	wrote, err := a.Archive(ctx, m, positions)
	if err != nil || !wrote {
		t.Fatalf("Archive = %v, %v", wrote, err)
	}
	wrote, err = a.Archive(ctx, m, positions)
	if err != nil || wrote {
		t.Fatalf("second Archive = %v, %v", wrote, err)
	}
	if blobs.puts != 1 || len(audit.events) != 1 {
		t.Errorf("puts = %d, audit = %v", blobs.puts, audit.events)
	}

	doc, err := a.Load(ctx, 42)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Market.TotalPool != 300 || len(doc.Positions) != 1 || !doc.ArchivedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("archive = %+v", doc)
	}
	if _, err := a.Load(ctx, 43); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Load missing err = %v", err)
	}
}

func TestArchive_RewritesAfterLaterClaims(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, nil)

	m := domain.Market{ID: 7, Status: domain.MarketStatusCancelled, Options: []string{"a", "b"}, TotalPool: 200}
	positions := []domain.Position{
		{MarketID: 7, User: domain.Identity{1}, Amount: 100},
		{MarketID: 7, User: domain.Identity{2}, OptionIndex: 1, Amount: 100},
	}
	if wrote, err := a.Archive(ctx, m, positions); err != nil || !wrote {
		t.Fatalf("Archive = %v, %v", wrote, err)
	}

	positions[0].Claimed = true
	tests := []struct {
		name string
		want bool
	}{
		{"new claim rewrites", true},
		{"unchanged claims skip", false},
	}
	for _, tt := range tests {
		wrote, err := a.Archive(ctx, m, positions)
		if err != nil || wrote != tt.want {
			t.Fatalf("%s: Archive = %v, %v", tt.name, wrote, err)
		}
	}

	doc, err := a.Load(ctx, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.ClaimedCount() != 1 || !doc.Positions[0].Claimed {
		t.Errorf("archived positions = %+v", doc.Positions)
	}
	if blobs.puts != 2 {
		t.Errorf("puts = %d, want 2", blobs.puts)
	}
}

func TestArchive_RejectsLiveMarket(t *testing.T) {
	a := NewArchiver(newMemBlobs(), newMemBlobs(), nil)
	if _, err := a.Archive(context.Background(), domain.Market{ID: 1, Status: domain.MarketStatusOpen}, nil); err == nil {
		t.Fatal("archived an open market")
	}
}

func TestArchiveEvents(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, nil)
	at := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	events := []domain.Event{
		domain.NewEvent(domain.EventMarketCreated, 1, domain.Identity{1}, at),
		domain.NewEvent(domain.EventBetPlaced, 1, domain.Identity{2}, at),
	}

	path, err := a.ArchiveEvents(context.Background(), events)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if want := "events/2025-01-31/" + events[0].ID + ".jsonl"; path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if lines := bytes.Count(blobs.objects[path], []byte("\n")); lines != 2 {
		t.Errorf("lines = %d", lines)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"https://r2.example.com", false, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}
