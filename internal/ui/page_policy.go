package ui

import (
	"fairgate/internal/domain"

	. "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	. "maragu.dev/gomponents/html"
)

type grantRowData struct {
	Filter    string
	Role      string
	Operation string
	Scope     string
	Mask      string
}

type policyPageData struct {
	Version  string
	Hash     string
	LoadedAt string
	Grants   []grantRowData
}

func policyPage(principal domain.Principal, d policyPageData) Node {
	grantRows := make([]Node, 0, len(d.Grants))
	for i := range d.Grants {
		row := d.Grants[i]
		grantRows = append(grantRows, Tr(
			data.Show(containsExpr(row.Filter)),
			Td(Text(row.Role)),
			Td(Text(row.Operation)),
			Td(Text(row.Scope)),
			Td(Text(row.Mask)),
		))
	}

	grantsNode := Node(emptyStateCard("The active snapshot grants nothing."))
	if len(grantRows) > 0 {
		grantsNode = Div(
			Class(cardClass("table-wrap")),
			Table(
				Class("data-table"),
				THead(Tr(Th(Text("Role")), Th(Text("Operation")), Th(Text("Scope")), Th(Text("Masked fields")))),
				TBody(Group(grantRows)),
			),
		)
	}

	return appPage(
		"Policy",
		"policy",
		principal,
		Div(
			Class(cardClass()),
			Dl(
				Class("trace-meta"),
				Dt(Class(mutedClass()), Text("Version")),
				Dd(Text(d.Version)),
				Dt(Class(mutedClass()), Text("Content hash")),
				Dd(Text(d.Hash)),
				Dt(Class(mutedClass()), Text("Loaded")),
				Dd(Text(d.LoadedAt)),
			),
		),
		quickFilterCard("Filter grants by role or operation"),
		grantsNode,
	)
}
