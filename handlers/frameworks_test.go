package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/documents"
)

func TestDashboardShowsDeclarationAndServiceCounts(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")
	app.api.supplierFrameworks["g-cloud-7"] = &models.SupplierFramework{
		SupplierID:    1234,
		FrameworkSlug: "g-cloud-7",
		Declaration:   models.Declaration{"status": "started"},
	}
	app.api.draftServices = []models.DraftService{
		{Status: models.DraftSubmitted},
		{Status: models.DraftSubmitted},
		{Status: models.DraftNotSubmitted},
	}

	rec := app.get(t, "/suppliers/frameworks/g-cloud-7")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "started")
	assert.Contains(t, body, "2 services marked as complete")
	assert.Contains(t, body, "1 draft services")
}

func TestDashboardRecordsOpenApplicationInSession(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")
	app.api.supplierFrameworks["g-cloud-7"] = &models.SupplierFramework{
		SupplierID:    1234,
		FrameworkSlug: "g-cloud-7",
	}

	rec := app.get(t, "/suppliers/frameworks/g-cloud-7")
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	loaded := app.sessions.Load(&http.Request{Header: http.Header{"Cookie": {cookies[len(cookies)-1].String()}}})
	assert.Equal(t, "g-cloud-7", loaded.CurrentlyApplyingTo)
}

func TestDashboardWithoutInterestStillRenders(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")

	rec := app.get(t, "/suppliers/frameworks/g-cloud-7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not-started")
}

func TestDashboardComingFrameworkIs404(t *testing.T) {
	app := newTestApp(t)
	fw := app.openFramework("g-cloud-9")
	fw.Status = models.FrameworkComing

	rec := app.get(t, "/suppliers/frameworks/g-cloud-9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardShowsUnsignedVariationPrompt(t *testing.T) {
	app := newTestApp(t)
	fw := app.openFramework("g-cloud-8")
	fw.Status = models.FrameworkLive
	fw.Variations = map[string]models.Variation{"1": {CreatedAt: time.Now()}}
	app.api.supplierFrameworks["g-cloud-8"] = &models.SupplierFramework{
		SupplierID:        1234,
		FrameworkSlug:     "g-cloud-8",
		OnFramework:       true,
		AgreementReturned: true,
		Declaration:       models.Declaration{"status": "complete"},
	}

	rec := app.get(t, "/suppliers/frameworks/g-cloud-8")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/suppliers/frameworks/g-cloud-8/contract-variation/1")
}

func TestDashboardHidesVariationPromptOnceAgreed(t *testing.T) {
	app := newTestApp(t)
	fw := app.openFramework("g-cloud-8")
	fw.Status = models.FrameworkLive
	fw.Variations = map[string]models.Variation{"1": {CreatedAt: time.Now()}}
	app.api.supplierFrameworks["g-cloud-8"] = &models.SupplierFramework{
		SupplierID:        1234,
		FrameworkSlug:     "g-cloud-8",
		OnFramework:       true,
		AgreementReturned: true,
		AgreedVariations:  map[string]models.AgreedVariation{"1": {AgreedUserID: 123}},
	}

	rec := app.get(t, "/suppliers/frameworks/g-cloud-8")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "/contract-variation/1\"")
}

func TestStartApplicationRegistersInterestAndEmails(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7", rec.Header().Get("Location"))

	assert.Equal(t, []string{"g-cloud-7"}, app.api.registeredInterest)
	require.Len(t, app.mailer.sent, 1)
	assert.Equal(t, []string{"email@email.com"}, app.mailer.sent[0].To)
	assert.Contains(t, app.mailer.sent[0].Subject, "started your G-Cloud 7 application")

	require.Len(t, app.api.auditEvents, 1)
	assert.Equal(t, "register_framework_interest", app.api.auditEvents[0].Type)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	loaded := app.sessions.Load(&http.Request{Header: http.Header{"Cookie": {cookies[len(cookies)-1].String()}}})
	assert.Equal(t, "g-cloud-7", loaded.CurrentlyApplyingTo)
}

func TestStartApplicationClosedFrameworkIs404(t *testing.T) {
	app := newTestApp(t)
	fw := app.openFramework("g-cloud-7")
	fw.Status = models.FrameworkLive

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, app.api.registeredInterest)
}

func TestStartApplicationEmailFailureIs503(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")
	app.mailer.err = apierrors.Unavailable("failed to send email", nil)

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpdatesListsCommunications(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")
	app.store.objects = []documents.Object{
		{Key: "g-cloud-7/communications/update-1.pdf", Filename: "update-1.pdf"},
	}

	rec := app.get(t, "/suppliers/frameworks/g-cloud-7/updates")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "update-1.pdf")
	assert.Contains(t, body, "https://documents.test/g-cloud-7/communications/update-1.pdf")
}

func TestUpdatesStorageFailureIs503(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")
	app.store.listErr = apierrors.Unavailable("failed to list documents", nil)

	rec := app.get(t, "/suppliers/frameworks/g-cloud-7/updates")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFrameworkClarificationValidation(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		app := newTestApp(t)
		app.openFramework("g-cloud-7")

		rec := app.post(t, "/suppliers/frameworks/g-cloud-7/updates",
			url.Values{"clarification_question": {"  "}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Add text if you want to ask a question.")
	})
}

func TestFrameworkClarificationWhileOpenGoesToClarificationInbox(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/updates",
		url.Values{"clarification_question": {"When is the deadline?"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7/updates", rec.Header().Get("Location"))

	require.Len(t, app.mailer.sent, 2)
	assert.Equal(t, []string{"clarification-questions@example.com"}, app.mailer.sent[0].To)
	assert.Equal(t, "email@email.com", app.mailer.sent[0].ReplyTo)
	assert.Equal(t, []string{"email@email.com"}, app.mailer.sent[1].To)

	require.Len(t, app.api.auditEvents, 1)
	assert.Equal(t, "send_clarification_question", app.api.auditEvents[0].Type)
}

func TestFrameworkClarificationFiveThousandCharactersAllowed(t *testing.T) {
	app := newTestApp(t)
	app.openFramework("g-cloud-7")

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/updates",
		url.Values{"clarification_question": {strings.Repeat("é", 5000)}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Len(t, app.mailer.sent, 2)
}

func TestFrameworkClarificationAfterCloseGoesToSupportWithoutConfirmation(t *testing.T) {
	app := newTestApp(t)
	fw := app.openFramework("g-cloud-7")
	fw.ClarificationQuestionsOpen = false

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/updates",
		url.Values{"clarification_question": {"Can I change my declaration?"}})
	require.Equal(t, http.StatusFound, rec.Code)

	require.Len(t, app.mailer.sent, 1)
	assert.Equal(t, []string{"follow-up@example.com"}, app.mailer.sent[0].To)
	assert.Contains(t, app.mailer.sent[0].Subject, "application question")

	require.Len(t, app.api.auditEvents, 1)
	assert.Equal(t, "send_application_question", app.api.auditEvents[0].Type)
}
