package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// MarketArchiver implements domain.Archiver. It writes one JSON document per
// terminal market and newline-delimited JSON for event batches.
//
// Archived records are not removed from the primary store.
type MarketArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates a MarketArchiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *MarketArchiver {
	return &MarketArchiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		now:    time.Now,
	}
}

// Archive uploads m and its positions to markets/<id>.json. An existing
// document is rewritten only when positions carry more claims than it does;
// otherwise Archive reports false without writing.
func (a *MarketArchiver) Archive(ctx context.Context, m domain.Market, positions []domain.Position) (bool, error) {
	if !m.Status.Terminal() {
		return false, fmt.Errorf("s3blob: archive market %d: status %s is not terminal", m.ID, m.Status)
	}

	path := MarketPath(m.ID)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive market %d: %w", m.ID, err)
	}
	if exists {
		prev, err := a.Load(ctx, m.ID)
		if err != nil {
			return false, fmt.Errorf("s3blob: archive market %d: %w", m.ID, err)
		}
		if prev.ClaimedCount() >= domain.ClaimedCount(positions) {
			return false, nil
		}
	}

	doc := domain.MarketArchive{Market: m, Positions: positions, ArchivedAt: a.now().UTC()}
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive market %d marshal: %w", m.ID, err)
	}
	if err := a.put(ctx, path, data, "application/json"); err != nil {
		return false, fmt.Errorf("s3blob: archive market %d upload: %w", m.ID, err)
	}

	if a.audit != nil {
		err := a.audit.Log(ctx, "archive.market", map[string]any{
			"path":      path,
			"market_id": m.ID,
			"status":    string(m.Status),
			"positions": len(positions),
			"claimed":   domain.ClaimedCount(positions),
		})
		if err != nil {
			return true, fmt.Errorf("s3blob: archive market %d audit log: %w", m.ID, err)
		}
	}
	return true, nil
}

// Load reads back an archived market.
func (a *MarketArchiver) Load(ctx context.Context, marketID uint64) (domain.MarketArchive, error) {
	body, err := a.reader.Get(ctx, MarketPath(marketID))
	if err != nil {
		return domain.MarketArchive{}, err
	}
	defer body.Close()

	var doc domain.MarketArchive
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return domain.MarketArchive{}, fmt.Errorf("s3blob: decode archive %d: %w", marketID, err)
	}
	return doc, nil
}

// ArchiveEvents writes a batch of events as JSONL under
// events/YYYY-MM-DD/<first event id>.jsonl and returns the path.
func (a *MarketArchiver) ArchiveEvents(ctx context.Context, events []domain.Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	buf, err := marshalJSONL(events)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive events marshal: %w", err)
	}
	path := EventsPath(events[0])
	if err := a.put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive events upload: %w", err)
	}
	return path, nil
}

// put switches to multipart uploads for payloads above one part.
func (a *MarketArchiver) put(ctx context.Context, path string, data []byte, contentType string) error {
	if int64(len(data)) > minPartSize {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(data), contentType)
}

// MarketPath is the object key of a market archive.
//
//	markets/42.json
func MarketPath(marketID uint64) string {
	return "markets/" + strconv.FormatUint(marketID, 10) + ".json"
}

// EventsPath partitions event batches by the UTC day of their first event.
//
//	events/2025-01-31/5f0c...jsonl
func EventsPath(first domain.Event) string {
	return fmt.Sprintf("events/%s/%s.jsonl", first.At.UTC().Format("2006-01-02"), first.ID)
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*MarketArchiver)(nil)
