// Package report renders a run summary as JSON and archives it to a blob
// store.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"filmmigrate/internal/blob"
	"filmmigrate/internal/migrate"
)

const (
	// Prefix is the key prefix every archived report shares.
	Prefix      = "runs/"
	contentType = "application/json"
	keyLayout   = "20060102T150405Z"
)

// Document is the archived form of a run.
type Document struct {
	Status string `json:"status"`
	migrate.Summary
	Totals migrate.KindSummary `json:"totals"`
}

// NewDocument wraps s with its derived status and totals.
func NewDocument(s migrate.Summary) Document {
	return Document{Status: s.Status(), Summary: s, Totals: s.Totals()}
}

// Key returns the object key a summary is archived under.
func Key(s migrate.Summary) string {
	return fmt.Sprintf("%s%s-%s.json", Prefix, s.StartedAt.UTC().Format(keyLayout), s.RunID)
}

// Encode renders s as indented JSON.
func Encode(s migrate.Summary) ([]byte, error) {
	b, err := json.MarshalIndent(NewDocument(s), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(b, '\n'), nil
}

// Archive stores the JSON report of s. Reports are write-once; archiving the
// same run twice fails with blob.ErrExists.
func Archive(ctx context.Context, store blob.Store, s migrate.Summary) (blob.Info, error) {
	b, err := Encode(s)
	if err != nil {
		return blob.Info{}, err
	}
	info, err := store.Put(ctx, Key(s), bytes.NewReader(b), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"status": s.Status(), "run-id": s.RunID},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive report: %w", err)
	}
	return info, nil
}

// Load reads back an archived report.
func Load(ctx context.Context, store blob.Store, key string) (Document, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("load report: %w", err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return Document{}, fmt.Errorf("read report %s: %w", key, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("decode report %s: %w", key, err)
	}
	return doc, nil
}

// List returns the archived reports, oldest first.
func List(ctx context.Context, store blob.Store) ([]blob.Info, error) {
	infos, err := store.List(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return infos, nil
}
