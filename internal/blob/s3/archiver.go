package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sincore/aggregator/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Archiver moves settled trades older than the retention window out of the
// database and into object storage as JSON Lines, one object per run.
type Archiver struct {
	client    *s3.Client
	bucket    string
	trades    domain.SettledTradeStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver over the given client and trade store.
// retention is how long trades stay in the database before they are archived.
func NewArchiver(c *Client, trades domain.SettledTradeStore, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		client:    c.S3(),
		bucket:    c.Bucket(),
		trades:    trades,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run archives everything older than the retention window and deletes the
// archived rows. Rows are deleted only after the upload succeeded. Returns
// the number of trades archived.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.retention)

	trades, err := a.trades.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list trades for archive: %w", err)
	}
	if len(trades) == 0 {
		a.logger.Info("nothing to archive", slog.Time("cutoff", cutoff))
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			return 0, fmt.Errorf("s3blob: encode trade %s: %w", t.ID, err)
		}
	}

	key := archiveKey(cutoff)
	if err := a.upload(ctx, key, &buf); err != nil {
		return 0, err
	}

	deleted, err := a.trades.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: delete archived trades: %w", err)
	}

	a.logger.Info("archive complete",
		slog.String("key", key),
		slog.Int("archived", len(trades)),
		slog.Int64("deleted", deleted))
	return len(trades), nil
}

func (a *Archiver) upload(ctx context.Context, key string, body *bytes.Buffer) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}

	// Multipart handles archives of any size; small payloads go up as a
	// single part anyway.
	uploader := manager.NewUploader(a.client, func(u *manager.Uploader) {
		u.PartSize = minPartSize
	})
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: upload archive %s: %w", key, err)
	}
	return nil
}

func archiveKey(cutoff time.Time) string {
	return fmt.Sprintf("archives/settled_trades/%s.jsonl", cutoff.Format("2006-01-02T15-04-05Z"))
}
