package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"fairgate/internal/domain"
)

// ExportFormat selects the export encoding.
type ExportFormat string

// Supported export encodings.
const (
	FormatCSV   ExportFormat = "csv"
	FormatJSONL ExportFormat = "jsonl"
)

// ParseExportFormat validates a format string.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", domain.ErrValidation("unknown export format %q, want csv or jsonl", s)
	}
}

// ExportSpec bounds one export run. ToSeq 0 means through the current
// head. Destination, when set, names where the copy is being written and
// is recorded in the data_access event alongside the range.
type ExportSpec struct {
	FromSeq     int64
	ToSeq       int64
	Format      ExportFormat
	Destination string
}

var csvHeader = []string{
	"sequence_no", "prev_hash", "this_hash", "event_type",
	"principal_id", "role_at_time", "subject_id", "payload", "created_at",
}

type exportRow struct {
	SequenceNo  int64          `json:"sequence_no"`
	PrevHash    string         `json:"prev_hash"`
	ThisHash    string         `json:"this_hash"`
	EventType   string         `json:"event_type"`
	PrincipalID string         `json:"principal_id"`
	RoleAtTime  string         `json:"role_at_time"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// Export streams a copy of the chain in [spec.FromSeq, spec.ToSeq] to w,
// including prev_hash and this_hash so an external verifier can re-run the
// chain check. The caller's field mask is re-applied; the export itself is
// recorded as a data_access event and a failed recording fails the export.
func (s *Service) Export(ctx context.Context, caller *domain.Principal, spec ExportSpec, w io.Writer) (int64, error) {
	snap, err := s.policies.Current()
	if err != nil {
		return 0, err
	}
	mask := snap.MaskFor(caller.Role, domain.OpLedgerExport)

	fromSeq, toSeq, format := spec.FromSeq, spec.ToSeq, spec.Format
	if fromSeq < 1 {
		fromSeq = 1
	}

	var csvw *csv.Writer
	if format == FormatCSV {
		csvw = csv.NewWriter(w)
		if err := csvw.Write(csvHeader); err != nil {
			return 0, fmt.Errorf("write export header: %w", err)
		}
	}
	enc := json.NewEncoder(w)

	var count int64
	next := fromSeq
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		events, err := s.repo.ListRange(ctx, next, toSeq, verifyBatchSize)
		if err != nil {
			return count, domain.ErrLedgerUnavailable(err)
		}
		if len(events) == 0 {
			break
		}

		for i := range events {
			e := &events[i]
			payload := e.Payload
			if !mask.Empty() {
				payload = mask.Apply(payload)
			}

			switch format {
			case FormatCSV:
				payloadJSON, err := json.Marshal(payload)
				if err != nil {
					return count, fmt.Errorf("marshal payload: %w", err)
				}
				rec := []string{
					strconv.FormatInt(e.SequenceNo, 10),
					e.PrevHash,
					e.ThisHash,
					string(e.EventType),
					e.PrincipalID,
					e.RoleAtTime,
					e.SubjectID,
					string(payloadJSON),
					e.CreatedAt.UTC().Format(time.RFC3339Nano),
				}
				if err := csvw.Write(rec); err != nil {
					return count, fmt.Errorf("write export row: %w", err)
				}
			case FormatJSONL:
				row := exportRow{
					SequenceNo:  e.SequenceNo,
					PrevHash:    e.PrevHash,
					ThisHash:    e.ThisHash,
					EventType:   string(e.EventType),
					PrincipalID: e.PrincipalID,
					RoleAtTime:  e.RoleAtTime,
					SubjectID:   e.SubjectID,
					Payload:     payload,
					CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
				}
				if err := enc.Encode(row); err != nil {
					return count, fmt.Errorf("write export row: %w", err)
				}
			default:
				return count, domain.ErrValidation("unknown export format %q", string(format))
			}
			count++
		}

		next = events[len(events)-1].SequenceNo + 1
		if toSeq > 0 && next > toSeq {
			break
		}
	}

	if csvw != nil {
		csvw.Flush()
		if err := csvw.Error(); err != nil {
			return count, fmt.Errorf("flush export: %w", err)
		}
	}

	payload := map[string]any{
		"action":   "ledger_export",
		"format":   string(format),
		"from_seq": fromSeq,
		"to_seq":   toSeq,
		"events":   count,
	}
	if spec.Destination != "" {
		payload["destination"] = spec.Destination
	}
	if _, err := s.Append(ctx, domain.EventInput{
		EventType:   domain.EventDataAccess,
		PrincipalID: caller.ID,
		RoleAtTime:  string(caller.Role),
		Payload:     payload,
	}); err != nil {
		return count, err
	}

	return count, nil
}
