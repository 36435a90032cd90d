// Package export delivers finished ledger archives to configured
// destinations. The ledger service produces the archive bytes and records
// the copy; sinks only move bytes to storage.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fairgate/internal/domain"
)

// Sink writes one archive under a destination-specific location and
// returns a URI describing where it landed. Close releases any client
// connections the sink holds.
type Sink interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
	Close() error
}

// NewSink builds the sink matching the destination kind. It dispatches to
// the appropriate storage-specific constructor.
func NewSink(ctx context.Context, dest *domain.ExportDestination) (Sink, error) {
	if dest == nil {
		return nil, fmt.Errorf("destination is nil")
	}
	switch dest.Kind {
	case domain.DestinationS3:
		return NewS3Sink(dest)
	case domain.DestinationAzure:
		return NewAzureSink(dest)
	case domain.DestinationGCS:
		return NewGCSSink(ctx, dest)
	case domain.DestinationFile:
		return NewFileSink(dest)
	default:
		return nil, fmt.Errorf("unsupported destination kind %q", dest.Kind)
	}
}

// ArchiveName builds the object name for one export run, for example
// "ledger-000000000001-000000000500-20260821T120000Z.jsonl". A zero toSeq
// means the run extended through the chain head at export time.
func ArchiveName(fromSeq, toSeq int64, ext string, now time.Time) string {
	to := "head"
	if toSeq > 0 {
		to = fmt.Sprintf("%012d", toSeq)
	}
	return fmt.Sprintf("ledger-%012d-%s-%s.%s",
		fromSeq, to, now.UTC().Format("20060102T150405Z"), strings.TrimPrefix(ext, "."))
}

// joinKey prepends the configured prefix to an archive name.
func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// contentType maps an archive name to its MIME type.
func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	case strings.HasSuffix(name, ".jsonl"):
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
