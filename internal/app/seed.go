package app

import (
	"context"
	"fmt"
	"log/slog"

	"fairgate/internal/db/repository"
	"fairgate/internal/domain"
	"fairgate/internal/isolation"
)

// seedPrincipal attributes the seeded records on the ledger. Intake is the
// role that collects applications and voluntary demographics in real use.
var seedPrincipal = &domain.Principal{ID: "demo_intake", Role: domain.RoleIntakeAgent}

type seedApplication struct {
	app          domain.Application
	demographics map[string]string
}

var seedApplications = []seedApplication{
	{
		app: domain.Application{
			ID: "app_demo_1", ApplicantName: "Dana Whitfield", SSNLast4: "4821",
			IncomeCents: 7_250_000, AmountCents: 32_000_000,
			Status: domain.ApplicationStatusInReview, AssignedTo: "officer_ramos",
		},
		demographics: map[string]string{"gender": "female", "ethnicity": "white", "age_band": "30-39"},
	},
	{
		app: domain.Application{
			ID: "app_demo_2", ApplicantName: "Luis Herrera", SSNLast4: "9034",
			IncomeCents: 5_480_000, AmountCents: 21_500_000,
			Status: domain.ApplicationStatusInReview, AssignedTo: "officer_ramos",
		},
		demographics: map[string]string{"gender": "male", "ethnicity": "hispanic", "age_band": "40-49"},
	},
	{
		app: domain.Application{
			ID: "app_demo_3", ApplicantName: "Priya Raman", SSNLast4: "1177",
			IncomeCents: 9_900_000, AmountCents: 45_000_000,
			Status: domain.ApplicationStatusReceived, AssignedTo: "officer_chen",
		},
		demographics: map[string]string{"gender": "female", "ethnicity": "asian", "age_band": "30-39"},
	},
	{
		app: domain.Application{
			ID: "app_demo_4", ApplicantName: "Marcus Bell", SSNLast4: "6615",
			IncomeCents: 4_100_000, AmountCents: 18_000_000,
			Status: domain.ApplicationStatusDecided, AssignedTo: "officer_chen",
		},
		demographics: map[string]string{"gender": "male", "ethnicity": "black", "age_band": "50-59"},
	},
	{
		app: domain.Application{
			ID: "app_demo_5", ApplicantName: "Elaine Okafor", SSNLast4: "3388",
			IncomeCents: 6_700_000, AmountCents: 27_500_000,
			Status: domain.ApplicationStatusReceived, AssignedTo: "officer_ramos",
		},
		demographics: map[string]string{"gender": "female", "ethnicity": "black", "age_band": "20-29"},
	},
	{
		app: domain.Application{
			ID: "app_demo_6", ApplicantName: "Tom Kaczmarek", SSNLast4: "5502",
			IncomeCents: 8_300_000, AmountCents: 38_000_000,
			Status: domain.ApplicationStatusClosed, AssignedTo: "officer_chen",
		},
	},
}

// seedDemo loads a small browsable dataset on first boot outside
// production. Idempotent: an applications table with any rows is left
// alone. Demographics go through the isolation router like real
// collection does, so the seed also leaves an honest ledger trail.
func seedDemo(ctx context.Context, applications *repository.ApplicationRepo, isolationRouter *isolation.Router, logger *slog.Logger) error {
	_, total, err := applications.List(ctx, nil, domain.PageRequest{MaxResults: 1})
	if err != nil {
		return fmt.Errorf("check applications: %w", err)
	}
	if total > 0 {
		return nil
	}

	collected := 0
	for i := range seedApplications {
		s := seedApplications[i]
		if _, err := applications.Create(ctx, &s.app); err != nil {
			return fmt.Errorf("create %s: %w", s.app.ID, err)
		}
		if len(s.demographics) == 0 {
			continue
		}
		_, err := isolationRouter.WriteIsolated(ctx, seedPrincipal, &domain.IsolatedRecord{
			SubjectID:    s.app.ID,
			Attributes:   s.demographics,
			CollectedVia: "voluntary_form",
		})
		if err != nil {
			return fmt.Errorf("collect demographics for %s: %w", s.app.ID, err)
		}
		collected++
	}

	logger.Info("demo data seeded",
		"applications", len(seedApplications), "demographic_records", collected)
	return nil
}
