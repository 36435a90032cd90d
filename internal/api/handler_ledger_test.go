package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairgate/internal/domain"
)

func decideApplication(a *testAPI, appID, officerID string) int64 {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/applications/"+appID+"/decision", officer(officerID), map[string]any{
		"outcome":   "APPROVE",
		"rationale": "income supports the requested amount",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var body decisionResponse
	decodeBody(a.t, rec, &body)
	return body.SequenceNo
}

func TestSubjectHistory(t *testing.T) {
	a := newTestAPI(t)
	appID := createApplicationFor(a, "officer_7")
	decideApplication(a, appID, "officer_7")

	rec := a.do(http.MethodGet, "/v1/ledger/subjects/"+appID+"/events", compliance(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body eventListResponse
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Events)
	types := make([]string, 0, len(body.Events))
	for _, ev := range body.Events {
		assert.Equal(t, appID, ev.SubjectID)
		assert.NotEmpty(t, ev.ThisHash)
		types = append(types, ev.EventType)
	}
	assert.Contains(t, types, "query")
	assert.Contains(t, types, "decision")
}

func TestSubjectHistory_RemasksPerCaller(t *testing.T) {
	a := newTestAPI(t)
	_, err := a.ledger.Append(context.Background(), domain.EventInput{
		EventType:   domain.EventDataAccess,
		PrincipalID: "importer_1",
		RoleAtTime:  string(domain.RoleAdmin),
		SubjectID:   "app_9",
		Payload:     map[string]any{"ssn_last4": "1234", "action": "bulk_import"},
	})
	require.NoError(t, err)

	// The stored payload is raw; masking happens on the way out, per caller.
	rec := a.do(http.MethodGet, "/v1/ledger/subjects/app_9/events", compliance(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var masked eventListResponse
	decodeBody(t, rec, &masked)
	require.Len(t, masked.Events, 1)
	assert.Equal(t, domain.MaskedValue, masked.Events[0].Payload["ssn_last4"])
	assert.Equal(t, "bulk_import", masked.Events[0].Payload["action"])

	rec = a.do(http.MethodGet, "/v1/ledger/subjects/app_9/events", admin(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var raw eventListResponse
	decodeBody(t, rec, &raw)
	require.Len(t, raw.Events, 1)
	assert.Equal(t, "1234", raw.Events[0].Payload["ssn_last4"])
}

func TestDecisionTrace(t *testing.T) {
	a := newTestAPI(t)
	appID := createApplicationFor(a, "officer_7")
	seq := decideApplication(a, appID, "officer_7")

	rec := a.do(http.MethodGet, fmt.Sprintf("/v1/ledger/decisions/%d/trace", seq), compliance(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body traceResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, seq, body.Decision.SequenceNo)
	assert.Equal(t, "decision", body.Decision.EventType)
	assert.Equal(t, appID, body.Decision.SubjectID)
	require.NotEmpty(t, body.Related)
	for _, ev := range body.Related {
		assert.Equal(t, appID, ev.SubjectID)
		assert.Less(t, ev.SequenceNo, seq)
	}
}

func TestDecisionTrace_RejectsNonDecisionSequence(t *testing.T) {
	a := newTestAPI(t)
	createApplicationFor(a, "officer_7")

	// Sequence 1 is the authorization event for the create, not a decision.
	rec := a.do(http.MethodGet, "/v1/ledger/decisions/1/trace", compliance(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/v1/ledger/decisions/abc/trace", compliance(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchLedger(t *testing.T) {
	a := newTestAPI(t)
	appID := createApplicationFor(a, "officer_7")
	decideApplication(a, appID, "officer_7")

	window := map[string]any{
		"from": time.Now().Add(-time.Hour),
		"to":   time.Now().Add(time.Hour),
	}

	body := map[string]any{"event_type": "decision"}
	for k, v := range window {
		body[k] = v
	}
	rec := a.do(http.MethodPost, "/v1/ledger/search", compliance(), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var typed eventListResponse
	decodeBody(t, rec, &typed)
	require.Len(t, typed.Events, 1)
	assert.Equal(t, "decision", typed.Events[0].EventType)
	assert.EqualValues(t, 1, typed.TotalCount)
}

func TestSearchLedger_Predicate(t *testing.T) {
	a := newTestAPI(t)
	appID := createApplicationFor(a, "officer_7")
	decideApplication(a, appID, "officer_7")

	rec := a.do(http.MethodPost, "/v1/ledger/search", compliance(), map[string]any{
		"from":      time.Now().Add(-time.Hour),
		"to":        time.Now().Add(time.Hour),
		"predicate": `event_type == "decision" and payload.get("outcome") == "APPROVE"`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body eventListResponse
	decodeBody(t, rec, &body)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "decision", body.Events[0].EventType)
	// The total counts the window before predicate filtering.
	assert.Greater(t, body.TotalCount, int64(len(body.Events)))
}

func TestSearchLedger_BadInputs(t *testing.T) {
	a := newTestAPI(t)
	window := map[string]any{
		"from": time.Now().Add(-time.Hour),
		"to":   time.Now().Add(time.Hour),
	}

	badPredicate := map[string]any{"predicate": "(("}
	for k, v := range window {
		badPredicate[k] = v
	}
	rec := a.do(http.MethodPost, "/v1/ledger/search", compliance(), badPredicate)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	badType := map[string]any{"event_type": "gossip"}
	for k, v := range window {
		badType[k] = v
	}
	rec = a.do(http.MethodPost, "/v1/ledger/search", compliance(), badType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyLedger(t *testing.T) {
	a := newTestAPI(t)
	appID := createApplicationFor(a, "officer_7")
	decideApplication(a, appID, "officer_7")

	rec := a.do(http.MethodPost, "/v1/ledger/verify", compliance(), map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body verifyResponse
	decodeBody(t, rec, &body)
	assert.True(t, body.Valid)
	assert.Greater(t, body.Checked, int64(1))
	assert.Nil(t, body.FirstBrokenAt)

	rec = a.do(http.MethodPost, "/v1/ledger/verify", compliance(), map[string]any{"from_seq": 2, "to_seq": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.True(t, body.Valid)
	assert.EqualValues(t, 1, body.Checked)
}

func TestExportLedger_StreamsArchive(t *testing.T) {
	a := newTestAPI(t)
	appID := createApplicationFor(a, "officer_7")
	decideApplication(a, appID, "officer_7")

	rec := a.do(http.MethodPost, "/v1/ledger/export", compliance(), map[string]any{"format": "jsonl"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	count, err := strconv.Atoi(rec.Header().Get("X-Export-Events"))
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		assert.NotEmpty(t, row["this_hash"])
		lines++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, count, lines)

	// The copy itself is on the record.
	ev := a.lastEvent()
	assert.Equal(t, domain.EventDataAccess, ev.EventType)
	assert.Equal(t, "ledger_export", ev.Payload["action"])
	assert.Equal(t, "http_response", ev.Payload["destination"])

	rec = a.do(http.MethodPost, "/v1/ledger/export", compliance(), map[string]any{"format": "csv"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	header, err := bufio.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, header, "sequence_no")
}

func TestExportLedger_ToFileDestination(t *testing.T) {
	a := newTestAPI(t)
	appID := createApplicationFor(a, "officer_7")
	decideApplication(a, appID, "officer_7")

	dir := t.TempDir()
	rec := a.do(http.MethodPost, "/v1/destinations", admin(), map[string]any{
		"name":      "archive",
		"kind":      "FILE",
		"directory": dir,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/v1/ledger/export", compliance(), map[string]any{
		"format":      "jsonl",
		"destination": "archive",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body exportResponse
	decodeBody(t, rec, &body)
	assert.Greater(t, body.Events, int64(0))
	require.True(t, strings.HasPrefix(body.Location, dir), body.Location)

	data, err := os.ReadFile(body.Location)
	require.NoError(t, err)
	gotLines := int64(bytes.Count(data, []byte("\n")))
	assert.Equal(t, body.Events, gotLines)

	ev := a.lastEvent()
	assert.Equal(t, "ledger_export", ev.Payload["action"])
	assert.Equal(t, "archive", ev.Payload["destination"])
}

func TestExportLedger_BadInputs(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/v1/ledger/export", compliance(), map[string]any{"format": "xml"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/v1/ledger/export", compliance(), map[string]any{
		"format":      "jsonl",
		"destination": "never-registered",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
