package ui

import (
	"net/url"

	"fairgate/internal/domain"

	. "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	. "maragu.dev/gomponents/html"
)

type ledgerSearchQuery struct {
	SubjectID string
	EventType string
	Window    string
}

type eventRowData struct {
	Filter    string
	Seq       string
	SeqURL    string
	Time      string
	Type      string
	Principal string
	Role      string
	Subject   string
	Payload   string
}

var eventTypeOptions = []string{
	string(domain.EventQuery),
	string(domain.EventToolCall),
	string(domain.EventDataAccess),
	string(domain.EventDecision),
	string(domain.EventOverride),
	string(domain.EventSecurityEvent),
	string(domain.EventSystem),
}

var windowOptions = []string{"24h", "7d", "30d", "90d"}

func ledgerSearchPage(principal domain.Principal, q ledgerSearchQuery, rows []eventRowData, page domain.PageRequest, total int64) Node {
	tableNode := Node(emptyStateCard("No events match this search."))
	if len(rows) > 0 {
		tableNode = eventsTable(rows)
	}

	scopeLine := Node(nil)
	if q.SubjectID != "" {
		scopeLine = Div(
			Class(cardClass()),
			P(Class(mutedClass()), Text("Showing the full recorded history for case "+q.SubjectID+".")),
		)
	}

	return appPage(
		"Ledger",
		"ledger",
		principal,
		searchFormCard(q),
		scopeLine,
		quickFilterCard("Filter visible events by principal, subject, or payload"),
		tableNode,
		paginationCard(ledgerBasePath(q), page, total),
	)
}

func searchFormCard(q ledgerSearchQuery) Node {
	typeOptions := []Node{optionSelected("", "All types", q.EventType)}
	for _, t := range eventTypeOptions {
		typeOptions = append(typeOptions, optionSelected(t, t, q.EventType))
	}
	window := []Node{}
	for _, wd := range windowOptions {
		window = append(window, optionSelected(wd, "Last "+wd, q.Window))
	}

	return Div(
		Class(cardClass("toolbar")),
		Form(
			Class("d-flex flex-wrap flex-items-end gap-2"),
			Method("get"),
			Action("/ui/ledger"),
			Div(
				Label(Class(mutedClass()), Text("Subject")),
				Input(Type("text"), Class("form-control"), Name("subject_id"), Value(q.SubjectID), Placeholder("app_01hx...")),
			),
			Div(
				Label(Class(mutedClass()), Text("Event type")),
				Select(Class("form-select"), Name("event_type"), Group(typeOptions)),
			),
			Div(
				Label(Class(mutedClass()), Text("Window")),
				Select(Class("form-select"), Name("window"), Group(window)),
			),
			Button(Type("submit"), Class(primaryButtonClass()), Text("Search")),
		),
	)
}

func optionSelected(value, label, selected string) Node {
	if value == selected {
		return Option(Value(value), Selected(), Text(label))
	}
	return Option(Value(value), Text(label))
}

func ledgerBasePath(q ledgerSearchQuery) string {
	params := url.Values{}
	if q.SubjectID != "" {
		params.Set("subject_id", q.SubjectID)
	}
	if q.EventType != "" {
		params.Set("event_type", q.EventType)
	}
	if q.Window != "" {
		params.Set("window", q.Window)
	}
	if len(params) == 0 {
		return "/ui/ledger"
	}
	return "/ui/ledger?" + params.Encode()
}

func eventsTable(rows []eventRowData) Node {
	tableRows := make([]Node, 0, len(rows))
	for i := range rows {
		row := rows[i]
		seqCell := Node(Text(row.Seq))
		if row.SeqURL != "" {
			seqCell = A(Href(row.SeqURL), Text(row.Seq))
		}
		tableRows = append(tableRows, Tr(
			data.Show(containsExpr(row.Filter)),
			Td(seqCell),
			Td(Text(row.Time)),
			Td(statusLabel(row.Type, eventTypeTone(row.Type))),
			Td(Text(row.Principal)),
			Td(Text(dash(row.Role))),
			Td(Text(dash(row.Subject))),
			Td(Class("payload-cell"), Text(row.Payload)),
		))
	}
	return Div(
		Class(cardClass("table-wrap")),
		Table(
			Class("data-table"),
			THead(Tr(Th(Text("Seq")), Th(Text("Recorded")), Th(Text("Type")), Th(Text("Principal")), Th(Text("Role")), Th(Text("Subject")), Th(Text("Payload")))),
			TBody(Group(tableRows)),
		),
	)
}

type traceDetailData struct {
	Seq       string
	Time      string
	Type      string
	Principal string
	Role      string
	Subject   string
	PrevHash  string
	ThisHash  string
	Payload   string
	Related   []eventRowData
}

func decisionTracePage(principal domain.Principal, d traceDetailData) Node {
	meta := []Node{
		traceMetaRow("Sequence", d.Seq),
		traceMetaRow("Recorded", d.Time),
		traceMetaRow("Type", d.Type),
		traceMetaRow("Principal", d.Principal),
		traceMetaRow("Role at time", dash(d.Role)),
		traceMetaRow("Subject", dash(d.Subject)),
		traceMetaRow("Payload", d.Payload),
		traceMetaRow("Previous hash", d.PrevHash),
		traceMetaRow("This hash", d.ThisHash),
	}

	relatedNode := Node(emptyStateCard("Nothing was recorded for this subject before the decision."))
	if len(d.Related) > 0 {
		relatedNode = eventsTable(d.Related)
	}

	return appPage(
		"Decision "+d.Seq,
		"ledger",
		principal,
		Div(Class(cardClass()), Dl(Class("trace-meta"), Group(meta))),
		Div(
			Class(cardClass("section-heading")),
			H2(Class("h4"), Text("Recorded before this decision")),
		),
		relatedNode,
	)
}

func traceMetaRow(label, value string) Node {
	return Group([]Node{
		Dt(Class(mutedClass()), Text(label)),
		Dd(Text(value)),
	})
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
