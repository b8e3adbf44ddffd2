package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

func newHandlerFixture(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.svc), f
}

func postJSON(e *echo.Echo, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_PreviewMerge(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	body := fmt.Sprintf(`{"source_patient_id":%q,"target_patient_id":%q}`, f.source.ID, f.target.ID)
	c, rec := postJSON(e, "/patients/merge/preview", body)

	if err := h.PreviewMerge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var got Preview
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.CanMerge {
		t.Errorf("expected mergeable preview, conflicts: %v", got.Conflicts)
	}
	if got.TotalRecordsToMove != 4 {
		t.Errorf("expected 4 records to move, got %d", got.TotalRecordsToMove)
	}
}

func TestHandler_PreviewMerge_MissingIDs(t *testing.T) {
	h, _ := newHandlerFixture(t)
	e := echo.New()

	c, _ := postJSON(e, "/patients/merge/preview", `{}`)
	err := h.PreviewMerge(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_PreviewMerge_SamePatient(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	body := fmt.Sprintf(`{"source_patient_id":%q,"target_patient_id":%q}`, f.source.ID, f.source.ID)
	c, _ := postJSON(e, "/patients/merge/preview", body)
	err := h.PreviewMerge(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_PreviewMerge_NotFound(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	body := fmt.Sprintf(`{"source_patient_id":%q,"target_patient_id":%q}`, uuid.New(), f.target.ID)
	c, _ := postJSON(e, "/patients/merge/preview", body)
	err := h.PreviewMerge(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_ExecuteMerge(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	body := fmt.Sprintf(`{"source_patient_id":%q,"target_patient_id":%q,"acting_user_id":"user-42"}`,
		f.source.ID, f.target.ID)
	c, rec := postJSON(e, "/patients/merge", body)

	if err := h.ExecuteMerge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var got Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.MergedPatientID != f.target.ID {
		t.Errorf("expected merged id %s, got %s", f.target.ID, got.MergedPatientID)
	}
	if got.PerRelationCounts["orders"] != 3 {
		t.Errorf("expected 3 orders in result, got %d", got.PerRelationCounts["orders"])
	}
}

func TestHandler_ExecuteMerge_ActorFromToken(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	body := fmt.Sprintf(`{"source_patient_id":%q,"target_patient_id":%q}`, f.source.ID, f.target.ID)
	c, rec := postJSON(e, "/patients/merge", body)
	ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "token-user")
	c.SetRequest(c.Request().WithContext(ctx))

	if err := h.ExecuteMerge(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	entries, err := f.audits.ListByPatient(context.Background(), f.target.ID)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %v, %v", entries, err)
	}
	if entries[0].ActorID != "token-user" {
		t.Errorf("expected actor from token, got %q", entries[0].ActorID)
	}
}

func TestHandler_ExecuteMerge_MissingActor(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	body := fmt.Sprintf(`{"source_patient_id":%q,"target_patient_id":%q}`, f.source.ID, f.target.ID)
	c, _ := postJSON(e, "/patients/merge", body)
	err := h.ExecuteMerge(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ExecuteMerge_Conflict(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	f.source.BillingCustomerID = strPtr("cus_111")
	f.target.BillingCustomerID = strPtr("cus_222")
	if err := f.patients.Update(context.Background(), f.source); err != nil {
		t.Fatal(err)
	}
	if err := f.patients.Update(context.Background(), f.target); err != nil {
		t.Fatal(err)
	}

	body := fmt.Sprintf(`{"source_patient_id":%q,"target_patient_id":%q,"acting_user_id":"user-42"}`,
		f.source.ID, f.target.ID)
	c, _ := postJSON(e, "/patients/merge", body)
	err := h.ExecuteMerge(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_MergeHistory(t *testing.T) {
	h, f := newHandlerFixture(t)
	e := echo.New()

	if _, err := f.svc.Execute(context.Background(), f.source.ID, f.target.ID, "user-42"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.target.ID.String())

	if err := h.MergeHistory(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var got []AuditEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ActorID != "user-42" {
		t.Errorf("unexpected history: %v", got)
	}
}

func TestHandler_MergeHistory_BadID(t *testing.T) {
	h, _ := newHandlerFixture(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.MergeHistory(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
