package ui

import (
	"fmt"

	"fairgate/internal/domain"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

type securityPageData struct {
	Verify *chainStatusData
	Events []eventRowData
	Total  int64
	Page   domain.PageRequest
	CSRF   Node
}

func securityPage(principal domain.Principal, d securityPageData) Node {
	eventsNode := Node(emptyStateCard("No security events recorded in the last 30 days."))
	if len(d.Events) > 0 {
		eventsNode = eventsTable(d.Events)
	}

	return appPage(
		"Security",
		"security",
		principal,
		verifyCard(d.Verify, d.CSRF),
		Div(
			Class(cardClass("section-heading")),
			H2(Class("h4"), Text("Security events, last 30 days")),
		),
		quickFilterCard("Filter visible events by principal, subject, or payload"),
		eventsNode,
		paginationCard("/ui/security", d.Page, d.Total),
	)
}

func verifyCard(result *chainStatusData, csrf Node) Node {
	resultNode := Node(P(Class(mutedClass()), Text("Run a verification to recompute the hash chain.")))
	if result != nil {
		if result.Valid {
			resultNode = P(
				statusLabel("intact", "success"),
				Text(fmt.Sprintf(" %d events verified, every link holds.", result.Checked)),
			)
		} else {
			broken := "a link is broken"
			if result.FirstBrokenAt != nil {
				broken = fmt.Sprintf("first break at sequence %d", *result.FirstBrokenAt)
			}
			resultNode = P(
				statusLabel("BROKEN", "danger"),
				Text(fmt.Sprintf(" %d events checked; %s.", result.Checked, broken)),
			)
		}
	}

	return Div(
		Class(cardClass()),
		H2(Class("h4"), Text("Chain verification")),
		P(Class(mutedClass()), Text("Recomputes every hash link in the range. Leave both bounds empty to walk the whole chain.")),
		Form(
			Class("d-flex flex-wrap flex-items-end gap-2"),
			Method("post"),
			Action("/ui/security/verify"),
			csrf,
			Div(
				Label(Class(mutedClass()), Text("From sequence")),
				Input(Type("text"), Class("form-control"), Name("from_seq"), Placeholder("1")),
			),
			Div(
				Label(Class(mutedClass()), Text("To sequence")),
				Input(Type("text"), Class("form-control"), Name("to_seq"), Placeholder("head")),
			),
			Button(Type("submit"), Class(primaryButtonClass()), Text("Verify")),
		),
		resultNode,
	)
}
