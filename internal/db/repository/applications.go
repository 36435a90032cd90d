package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"fairgate/internal/domain"
)

var _ domain.ApplicationRepository = (*ApplicationRepo)(nil)

// applicationScopeColumns lists the columns a scope filter may constrain.
// Policy templates referencing any other column fail closed here rather
// than being interpolated into SQL.
var applicationScopeColumns = map[string]bool{
	"assigned_to": true,
	"status":      true,
	"id":          true,
}

// ApplicationRepo stores loan applications in SQLite. Scope filters are
// folded into every read so a row outside the caller's scope produces the
// same result as a row that does not exist.
type ApplicationRepo struct {
	db *sql.DB
}

// NewApplicationRepo creates a new ApplicationRepo.
func NewApplicationRepo(db *sql.DB) *ApplicationRepo {
	return &ApplicationRepo{db: db}
}

// Create inserts a new application.
func (r *ApplicationRepo) Create(ctx context.Context, a *domain.Application) (*domain.Application, error) {
	if a == nil {
		return nil, domain.ErrValidation("application is required")
	}
	if a.ID == "" {
		a.ID = domain.NewID()
	}
	if a.Status == "" {
		a.Status = domain.ApplicationStatusReceived
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (id, applicant_name, ssn_last4, income_cents, amount_cents, status, assigned_to)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ApplicantName, a.SSNLast4, a.IncomeCents, a.AmountCents, string(a.Status), a.AssignedTo)
	if err != nil {
		return nil, mapDBError(err)
	}

	return r.GetByID(ctx, a.ID, nil)
}

// GetByID returns an application by ID, constrained to the given scope.
func (r *ApplicationRepo) GetByID(ctx context.Context, id string, scope *domain.ScopeFilter) (*domain.Application, error) {
	clause, args, err := applicationScopeClause(scope)
	if err != nil {
		return nil, err
	}

	stmt := `
		SELECT id, applicant_name, ssn_last4, income_cents, amount_cents, status, assigned_to, created_at, updated_at
		FROM applications WHERE id = ?` + clause

	row := r.db.QueryRowContext(ctx, stmt, append([]interface{}{id}, args...)...)
	app, err := scanApplication(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return app, nil
}

// List returns applications within scope, newest first.
func (r *ApplicationRepo) List(ctx context.Context, scope *domain.ScopeFilter, page domain.PageRequest) ([]domain.Application, int64, error) {
	clause, args, err := applicationScopeClause(scope)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countStmt := `SELECT COUNT(*) FROM applications WHERE 1 = 1` + clause
	if err := r.db.QueryRowContext(ctx, countStmt, args...).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	stmt := `
		SELECT id, applicant_name, ssn_last4, income_cents, amount_cents, status, assigned_to, created_at, updated_at
		FROM applications WHERE 1 = 1` + clause + `
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, stmt, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close()

	apps := make([]domain.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, mapDBError(err)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapDBError(err)
	}
	return apps, total, nil
}

// SetStatus transitions an application to a new status.
func (r *ApplicationRepo) SetStatus(ctx context.Context, id string, status domain.ApplicationStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE applications
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), id)
	if err != nil {
		return mapDBError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	return nil
}

// SubjectIDsWithStatus returns the ids of applications currently in any of
// the given statuses. The aggregation path joins these against the isolated
// partition; only identifiers cross the boundary, never the other way.
func (r *ApplicationRepo) SubjectIDsWithStatus(ctx context.Context, statuses []string) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM applications WHERE status IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapDBError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err)
	}
	return ids, nil
}

func applicationScopeClause(scope *domain.ScopeFilter) (string, []interface{}, error) {
	if scope == nil {
		return "", nil, nil
	}
	if !applicationScopeColumns[scope.Column] {
		return "", nil, domain.ErrScope("column %q cannot scope applications", scope.Column)
	}
	return " AND " + scope.Column + " = ?", []interface{}{scope.Value}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*domain.Application, error) {
	var (
		app                  domain.Application
		status               string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&app.ID,
		&app.ApplicantName,
		&app.SSNLast4,
		&app.IncomeCents,
		&app.AmountCents,
		&status,
		&app.AssignedTo,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Status = domain.ApplicationStatus(status)
	app.CreatedAt = createdAt
	app.UpdatedAt = updatedAt
	return &app, nil
}
