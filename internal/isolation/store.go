// Package isolation owns the segregated demographic partition and every
// path across its boundary. Records enter through WriteIsolated, leave only
// as threshold-gated aggregate statistics, and content pipelines are
// screened so demographic material cannot drift into the general path.
//
// The partition is a separate DuckDB database with its own file. The
// connection handle type is unexported: no package outside this one can
// construct or borrow the isolated credential, which makes the storage-level
// separation a compile-time property on top of the engine-level one.
package isolation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"fairgate/internal/domain"
)

// partition wraps the isolated DuckDB handle. Only the Router holds one.
type partition struct {
	db *sql.DB
}

var partitionSchema = []string{
	`CREATE TABLE IF NOT EXISTS demographic_records (
		id            VARCHAR PRIMARY KEY,
		subject_id    VARCHAR NOT NULL,
		collected_via VARCHAR NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_demographic_records_subject ON demographic_records(subject_id)`,
	`CREATE TABLE IF NOT EXISTS demographic_attributes (
		record_id VARCHAR NOT NULL,
		name      VARCHAR NOT NULL,
		value     VARCHAR NOT NULL,
		PRIMARY KEY (record_id, name)
	)`,
}

// openPartition opens (or creates) the isolated database and bootstraps its
// schema. An empty path opens an in-memory partition, used by tests.
func openPartition(path string) (*partition, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open isolated partition: %w", err)
	}
	for _, stmt := range partitionSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrap isolated schema: %w", err)
		}
	}
	return &partition{db: db}, nil
}

func (p *partition) close() error {
	return p.db.Close()
}

// insert writes one record and its attributes in a single transaction. The
// transaction is committed by the caller once the ledger has accepted the
// matching data_access event.
func (p *partition) insert(ctx context.Context, rec *domain.IsolatedRecord) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin isolated write: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO demographic_records (id, subject_id, collected_via, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.SubjectID, rec.CollectedVia, rec.CreatedAt)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("insert isolated record: %w", err)
	}

	for name, value := range rec.Attributes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO demographic_attributes (record_id, name, value)
			VALUES (?, ?, ?)
		`, rec.ID, name, value)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("insert isolated attribute: %w", err)
		}
	}
	return tx, nil
}

// groupCount is one aggregation cell before thresholding.
type groupCount struct {
	labels map[string]string
	n      int
}

// aggregate computes distinct-subject counts grouped by one or two
// attribute names, optionally restricted to the given subject ids. Records
// missing a grouped attribute do not form a cell.
func (p *partition) aggregate(ctx context.Context, groupBy []string, subjectIDs []string) ([]groupCount, error) {
	stmt := `
		SELECT a1.value, COUNT(DISTINCT r.subject_id) AS n
		FROM demographic_records r
		JOIN demographic_attributes a1 ON a1.record_id = r.id AND a1.name = ?`
	args := []interface{}{groupBy[0]}

	twoKeys := len(groupBy) == 2
	if twoKeys {
		stmt = `
		SELECT a1.value, a2.value, COUNT(DISTINCT r.subject_id) AS n
		FROM demographic_records r
		JOIN demographic_attributes a1 ON a1.record_id = r.id AND a1.name = ?
		JOIN demographic_attributes a2 ON a2.record_id = r.id AND a2.name = ?`
		args = append(args, groupBy[1])
	}

	if subjectIDs != nil {
		if len(subjectIDs) == 0 {
			return nil, nil
		}
		stmt += ` WHERE r.subject_id IN (` + placeholders(len(subjectIDs)) + `)`
		for _, id := range subjectIDs {
			args = append(args, id)
		}
	}

	if twoKeys {
		stmt += ` GROUP BY a1.value, a2.value ORDER BY a1.value, a2.value`
	} else {
		stmt += ` GROUP BY a1.value ORDER BY a1.value`
	}

	rows, err := p.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate isolated records: %w", err)
	}
	defer rows.Close()

	groups := make([]groupCount, 0)
	for rows.Next() {
		g := groupCount{labels: make(map[string]string, len(groupBy))}
		var v1, v2 string
		if twoKeys {
			if err := rows.Scan(&v1, &v2, &g.n); err != nil {
				return nil, fmt.Errorf("scan aggregate row: %w", err)
			}
			g.labels[groupBy[0]] = v1
			g.labels[groupBy[1]] = v2
		} else {
			if err := rows.Scan(&v1, &g.n); err != nil {
				return nil, fmt.Errorf("scan aggregate row: %w", err)
			}
			g.labels[groupBy[0]] = v1
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate isolated records: %w", err)
	}
	return groups, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
