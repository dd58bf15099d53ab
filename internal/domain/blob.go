package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// MarketArchive is the document written for a terminal market.
type MarketArchive struct {
	Market     Market     `json:"market"`
	Positions  []Position `json:"positions"`
	ArchivedAt time.Time  `json:"archived_at"`
}

// ClaimedCount returns how many archived positions were paid out or refunded.
func (a MarketArchive) ClaimedCount() int { return ClaimedCount(a.Positions) }

// ClaimedCount returns how many of positions are marked claimed.
func ClaimedCount(positions []Position) int {
	n := 0
	for _, p := range positions {
		if p.Claimed {
			n++
		}
	}
	return n
}

// OutstandingClaims counts positions of a terminal market that may still
// claim: unclaimed winners of a settled market, or any unclaimed position of
// a cancelled one. Live markets report zero.
func OutstandingClaims(m Market, positions []Position) int {
	n := 0
	for _, p := range positions {
		if p.Claimed {
			continue
		}
		switch m.Status {
		case MarketStatusCancelled:
			n++
		case MarketStatusSettled:
			if m.FinalOutcome != nil && p.OptionIndex == *m.FinalOutcome {
				n++
			}
		}
	}
	return n
}

// Archiver copies terminal markets to cold storage. Archive reports false
// when the stored copy already reflects every claim in positions.
type Archiver interface {
	Archive(ctx context.Context, m Market, positions []Position) (bool, error)
}
