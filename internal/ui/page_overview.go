package ui

import (
	"fmt"
	"strconv"

	"fairgate/internal/domain"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

type chainStatusData struct {
	Valid         bool
	Checked       int64
	FirstBrokenAt *int64
}

type overviewData struct {
	DecisionCount int64
	OverrideCount int64
	SecurityCount int64
	Chain         *chainStatusData
	Recent        []eventRowData
}

func overviewPage(principal domain.Principal, d overviewData) Node {
	cards := []Node{
		statCard("Decisions", strconv.FormatInt(d.DecisionCount, 10), "recorded in the last 7 days"),
		statCard("Overrides", strconv.FormatInt(d.OverrideCount, 10), "recorded in the last 7 days"),
		statCard("Security events", strconv.FormatInt(d.SecurityCount, 10), "recorded in the last 30 days"),
		chainCard(d.Chain),
	}

	recentNode := Node(emptyStateCard("No decisions recorded in the last 7 days."))
	if len(d.Recent) > 0 {
		recentNode = eventsTable(d.Recent)
	}

	return appPage(
		"Overview",
		"home",
		principal,
		Div(Class("stat-grid"), Group(cards)),
		Div(
			Class(cardClass("section-heading")),
			Div(
				Class("d-flex flex-justify-between flex-items-center"),
				H2(Class("h4"), Text("Recent decisions")),
				A(Href("/ui/ledger?event_type=decision"), Text("Open ledger ->")),
			),
		),
		recentNode,
	)
}

func statCard(label, value, hint string) Node {
	return Div(
		Class(cardClass("stat-card")),
		P(Class(mutedClass()), Text(label)),
		P(Class("stat-value"), Text(value)),
		P(Class(mutedClass()), Text(hint)),
	)
}

func chainCard(c *chainStatusData) Node {
	if c == nil {
		return Div(
			Class(cardClass("stat-card")),
			P(Class(mutedClass()), Text("Chain integrity")),
			P(Class("stat-value"), Text("-")),
			P(Class(mutedClass()), Text("verification not permitted for this role")),
		)
	}
	if !c.Valid {
		broken := "link broken"
		if c.FirstBrokenAt != nil {
			broken = fmt.Sprintf("first break at sequence %d", *c.FirstBrokenAt)
		}
		return Div(
			Class(cardClass("stat-card", "stat-card-danger")),
			P(Class(mutedClass()), Text("Chain integrity")),
			P(Class("stat-value"), statusLabel("BROKEN", "danger")),
			P(Class(mutedClass()), Text(broken)),
		)
	}
	return Div(
		Class(cardClass("stat-card")),
		P(Class(mutedClass()), Text("Chain integrity")),
		P(Class("stat-value"), statusLabel("intact", "success")),
		P(Class(mutedClass()), Text(fmt.Sprintf("%d events verified", c.Checked))),
	)
}
