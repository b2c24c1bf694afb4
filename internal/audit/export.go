package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ObjectStore is the archive target for exports.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Export describes one uploaded archive.
type Export struct {
	Key    string    `json:"key"`
	Events int       `json:"events"`
	URL    string    `json:"url"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// Exporter writes a time range of events as NDJSON to object storage.
type Exporter struct {
	events    Lister
	store     ObjectStore
	urlExpiry time.Duration
}

func NewExporter(events Lister, store ObjectStore) *Exporter {
	return &Exporter{events: events, store: store, urlExpiry: 15 * time.Minute}
}

func (x *Exporter) Export(ctx context.Context, from, to time.Time) (*Export, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("export range is empty: %s..%s", from, to)
	}
	events, err := x.events.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, err
		}
	}
	key := fmt.Sprintf("audit/%s_%s.ndjson", from.UTC().Format("20060102T150405Z"), to.UTC().Format("20060102T150405Z"))
	if err := x.store.UploadFile(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/x-ndjson"); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := x.store.GetPresignedURL(ctx, key, x.urlExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return &Export{Key: key, Events: len(events), URL: url, From: from.UTC(), To: to.UTC()}, nil
}
