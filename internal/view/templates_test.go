package view

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderNotFoundPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, "pages/not_found.html", TemplateData{Title: "Not found", CurrentPath: "/missing"}))
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Page not found")
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "12,500", FormatNumber(12500))
	assert.Equal(t, "1,234.50", FormatNumber(1234.5))
	assert.Equal(t, "42", FormatNumber(42.0))
	assert.Equal(t, "7", FormatNumber("7"))
	assert.Equal(t, "n/a", FormatNumber("n/a"))
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Ready With Warning", Humanize("READY_WITH_WARNING"))
	assert.Equal(t, "In Use", Humanize("IN_USE"))
	assert.Equal(t, "", Humanize("  "))
}

func TestWithQueryKeepsOtherParameters(t *testing.T) {
	q := url.Values{"status": {"PENDING"}, "page": {"1"}}
	assert.Equal(t, "?page=3&status=PENDING", WithQuery(q, "page", 3))
	assert.Equal(t, "1", q.Get("page"))
}

func TestNilEngine(t *testing.T) {
	var engine *Engine
	assert.Error(t, engine.Render(httptest.NewRecorder(), "x", TemplateData{}))
}

func TestNewTemplateDataConsumesFlash(t *testing.T) {
	sess := &shared.Session{ID: "s1"}
	sess.Set(shared.CSRFSessionKey, "token")
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Saved"})
	req := httptest.NewRequest("GET", "/vehicles", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	td := NewTemplateData(req, "Vehicles", nil)
	require.NotNil(t, td.Flash)
	assert.Equal(t, "Saved", td.Flash.Message)
	assert.Equal(t, "token", td.CSRFToken)
	assert.Equal(t, "/vehicles", td.CurrentPath)
	assert.Nil(t, sess.PopFlash())
}
