package templates

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risicle/digitalmarketplace-supplier-frontend/session"
)

func TestRendererParsesAllPages(t *testing.T) {
	r, err := NewRenderer("https://assets.example.com")
	require.NoError(t, err)

	for _, name := range []string{
		"error",
		"briefs/brief_response",
		"briefs/response_result",
		"briefs/ineligible",
		"briefs/start_response",
		"briefs/clarification_question",
		"briefs/qa_session",
		"frameworks/dashboard",
		"frameworks/updates",
		"frameworks/declaration_overview",
		"frameworks/declaration_section",
		"frameworks/declaration_reuse",
		"agreements/signer_details",
		"agreements/signature_upload",
		"agreements/contract_review",
		"variations/variation",
	} {
		assert.Contains(t, r.pages, name)
	}
}

func TestRenderWritesStatusAndBody(t *testing.T) {
	r, err := NewRenderer("https://assets.example.com")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusGone, "error", Page{
		Title: "Expired",
		Data: map[string]interface{}{
			"Heading": "This framework is closed",
			"Message": "You can no longer edit your declaration.",
		},
	})

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "This framework is closed")
	assert.Contains(t, rec.Body.String(), "https://assets.example.com/stylesheets/application.css")
}

func TestRenderUnknownTemplateIs500(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusOK, "nope/missing", Page{})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRenderShowsFlashesAndErrors(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusBadRequest, "error", Page{
		Title:   "Problem",
		Flashes: []session.Flash{{Message: "Your question has been sent.", Category: "success"}},
		Errors:  map[string]string{"signerName": "You must provide the full name of the person signing on behalf of the company"},
		Data:    map[string]interface{}{"Heading": "h", "Message": "m"},
	})

	body := rec.Body.String()
	assert.Contains(t, body, "Your question has been sent.")
	assert.Contains(t, body, "You must provide the full name of the person signing on behalf of the company")
}
