package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/session"
)

// seedSigningFramework puts the supplier on a standstill framework with a
// draft agreement ready to sign
func (a *testApp) seedSigningFramework(slug string) *models.FrameworkAgreement {
	fw := a.openFramework(slug)
	fw.Status = models.FrameworkStandstill
	a.api.supplierFrameworks[slug] = &models.SupplierFramework{
		SupplierID:    1234,
		FrameworkSlug: slug,
		OnFramework:   true,
		Declaration: models.Declaration{
			"status":              string(models.DeclarationComplete),
			"primaryContactEmail": "contact@example.com",
		},
	}
	agreement := &models.FrameworkAgreement{ID: 234, SupplierID: 1234, FrameworkSlug: slug}
	a.api.agreements[234] = agreement
	return agreement
}

func (a *testApp) postFile(t *testing.T, path, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(a.loginCookie(t))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateAgreementRedirectsToSignerDetails(t *testing.T) {
	app := newTestApp(t)
	app.seedSigningFramework("g-cloud-7")

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/agreement", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7/234/signer-details", rec.Header().Get("Location"))
}

func TestCreateAgreementWhileOpenIs404(t *testing.T) {
	app := newTestApp(t)
	app.seedSigningFramework("g-cloud-7")
	app.api.frameworks["g-cloud-7"].Status = models.FrameworkOpen

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/agreement", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAgreementNotOnFrameworkIs404(t *testing.T) {
	app := newTestApp(t)
	app.seedSigningFramework("g-cloud-7")
	app.api.supplierFrameworks["g-cloud-7"].OnFramework = false

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/agreement", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignerDetailsScope(t *testing.T) {
	t.Run("someone else's agreement", func(t *testing.T) {
		app := newTestApp(t)
		agreement := app.seedSigningFramework("g-cloud-7")
		agreement.SupplierID = 5678

		rec := app.get(t, "/suppliers/frameworks/g-cloud-7/234/signer-details")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("agreement for a different framework", func(t *testing.T) {
		app := newTestApp(t)
		agreement := app.seedSigningFramework("g-cloud-7")
		agreement.FrameworkSlug = "g-cloud-6"

		rec := app.get(t, "/suppliers/frameworks/g-cloud-7/234/signer-details")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown agreement id", func(t *testing.T) {
		app := newTestApp(t)
		app.seedSigningFramework("g-cloud-7")

		rec := app.get(t, "/suppliers/frameworks/g-cloud-7/999/signer-details")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSignerDetailsValidation(t *testing.T) {
	cases := []struct {
		name    string
		form    url.Values
		message string
	}{
		{
			name:    "missing name",
			form:    url.Values{"signerRole": {"Director"}},
			message: "You must provide the full name of the person signing on behalf of the company",
		},
		{
			name:    "missing role",
			form:    url.Values{"signerName": {"Signer Name"}},
			message: "You must provide the role of the person signing on behalf of the company",
		},
		{
			name:    "name too long",
			form:    url.Values{"signerName": {strings.Repeat("a", 256)}, "signerRole": {"Director"}},
			message: "You must provide a name under 256 characters",
		},
		{
			name:    "role too long",
			form:    url.Values{"signerName": {"Signer Name"}, "signerRole": {strings.Repeat("a", 256)}},
			message: "You must provide a role under 256 characters",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			app.seedSigningFramework("g-cloud-7")

			rec := app.post(t, "/suppliers/frameworks/g-cloud-7/234/signer-details", tc.form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
			assert.Empty(t, app.api.agreementUpdates)
		})
	}
}

func TestSignerDetailsTrimsAndAcceptsMaxLength(t *testing.T) {
	app := newTestApp(t)
	app.seedSigningFramework("g-cloud-7")

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/234/signer-details", url.Values{
		"signerName": {"  " + strings.Repeat("a", 255) + "  "},
		"signerRole": {" Director "},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7/234/signature-upload", rec.Header().Get("Location"))

	require.Len(t, app.api.agreementUpdates, 1)
	details := app.api.agreementUpdates[0]["signedAgreementDetails"].(map[string]interface{})
	assert.Equal(t, strings.Repeat("a", 255), details["signerName"])
	assert.Equal(t, "Director", details["signerRole"])
}

func TestSignerDetailsSkipsToReviewWhenPageAlreadyUploaded(t *testing.T) {
	app := newTestApp(t)
	agreement := app.seedSigningFramework("g-cloud-7")
	agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/1234-signed-framework-agreement-2016-08-19-1547.pdf"

	cookie, err := app.sessions.Mint(&session.Session{
		UserID:        123,
		SupplierID:    1234,
		Name:          "NÄme",
		EmailAddress:  "email@email.com",
		SupplierName:  "Supplier Nme",
		SignaturePage: "signature.pdf",
	})
	require.NoError(t, err)

	form := url.Values{"signerName": {"Signer Name"}, "signerRole": {"Director"}}
	req := httptest.NewRequest(http.MethodPost, "/suppliers/frameworks/g-cloud-7/234/signer-details",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7/234/contract-review", rec.Header().Get("Location"))
}

func TestSignatureUploadValidation(t *testing.T) {
	pdf := []byte("%PDF-1.4 content")
	cases := []struct {
		name     string
		filename string
		data     []byte
		message  string
	}{
		{
			name:     "empty file",
			filename: "signature.pdf",
			data:     nil,
			message:  "The file must not be empty",
		},
		{
			name:     "wrong file type",
			filename: "signature.gif",
			data:     pdf,
			message:  "The file must be a PDF, JPG or PNG",
		},
		{
			name:     "file too large",
			filename: "signature.pdf",
			data:     bytes.Repeat([]byte("a"), 5*1024*1024+1),
			message:  "The file must be less than 5MB",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			app.seedSigningFramework("g-cloud-7")

			rec := app.postFile(t, "/suppliers/frameworks/g-cloud-7/234/signature-upload",
				"signature_page", tc.filename, tc.data)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
			assert.Empty(t, app.store.saved)
		})
	}

	t.Run("no file chosen", func(t *testing.T) {
		app := newTestApp(t)
		app.seedSigningFramework("g-cloud-7")

		rec := app.post(t, "/suppliers/frameworks/g-cloud-7/234/signature-upload", url.Values{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "You must choose a file to upload")
	})

	t.Run("no file but page already uploaded continues to review", func(t *testing.T) {
		app := newTestApp(t)
		agreement := app.seedSigningFramework("g-cloud-7")
		agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/page.pdf"

		rec := app.post(t, "/suppliers/frameworks/g-cloud-7/234/signature-upload", url.Values{})
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/suppliers/frameworks/g-cloud-7/234/contract-review", rec.Header().Get("Location"))
		assert.Empty(t, app.store.saved)
	})
}

func TestSignatureUploadStoresFileAndRecordsPath(t *testing.T) {
	app := newTestApp(t)
	app.seedSigningFramework("g-cloud-7")

	rec := app.postFile(t, "/suppliers/frameworks/g-cloud-7/234/signature-upload",
		"signature_page", "signed page.jpeg", []byte("jpeg bytes"))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7/234/contract-review", rec.Header().Get("Location"))

	require.Len(t, app.store.saved, 1)
	saved := app.store.saved[0]
	assert.Regexp(t, `^g-cloud-7/agreements/1234/1234-signed-framework-agreement-\d{4}-\d{2}-\d{2}-\d{4}\.jpg$`, saved.Key)
	assert.Equal(t, "image/jpeg", saved.ContentType)
	assert.Equal(t, "Supplier_Nme-1234-signed-signature-page.jpg", saved.DownloadFilename)
	assert.Equal(t, []byte("jpeg bytes"), saved.Data)

	require.Len(t, app.api.agreementUpdates, 1)
	assert.Equal(t, saved.Key, app.api.agreementUpdates[0]["signedAgreementPath"])

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	loaded := app.sessions.Load(&http.Request{Header: http.Header{"Cookie": {cookies[len(cookies)-1].String()}}})
	assert.Equal(t, "signed page.jpeg", loaded.SignaturePage)
}

func TestContractReviewRequiresDetailsAndUpload(t *testing.T) {
	t.Run("no signer details", func(t *testing.T) {
		app := newTestApp(t)
		agreement := app.seedSigningFramework("g-cloud-7")
		agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/page.pdf"

		rec := app.get(t, "/suppliers/frameworks/g-cloud-7/234/contract-review")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no uploaded page", func(t *testing.T) {
		app := newTestApp(t)
		agreement := app.seedSigningFramework("g-cloud-7")
		agreement.SignedAgreementDetails = &models.AgreementDetails{SignerName: "Signer Name", SignerRole: "Director"}

		rec := app.get(t, "/suppliers/frameworks/g-cloud-7/234/contract-review")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestContractReviewShowsSignerAndSignaturePage(t *testing.T) {
	app := newTestApp(t)
	agreement := app.seedSigningFramework("g-cloud-7")
	agreement.SignedAgreementDetails = &models.AgreementDetails{SignerName: "Signer Name", SignerRole: "Director"}
	agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/page.pdf"

	rec := app.get(t, "/suppliers/frameworks/g-cloud-7/234/contract-review")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Signer Name")
	assert.Contains(t, body, "Director")
	assert.Contains(t, body, "https://documents.test/g-cloud-7/agreements/1234/page.pdf")
}

func TestContractReviewSubmitRequiresAuthorisation(t *testing.T) {
	app := newTestApp(t)
	agreement := app.seedSigningFramework("g-cloud-7")
	agreement.SignedAgreementDetails = &models.AgreementDetails{SignerName: "Signer Name", SignerRole: "Director"}
	agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/page.pdf"

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/234/contract-review", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "You must confirm you have the authority to return the agreement")
	assert.Empty(t, app.api.signedAgreements)
	assert.Empty(t, app.mailer.sent)
}

func TestContractReviewSubmitSignsAndEmails(t *testing.T) {
	app := newTestApp(t)
	agreement := app.seedSigningFramework("g-cloud-7")
	agreement.SignedAgreementDetails = &models.AgreementDetails{SignerName: "Signer Name", SignerRole: "Director"}
	agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/page.pdf"

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/234/contract-review",
		url.Values{"authorisation": {"on"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7", rec.Header().Get("Location"))

	assert.Equal(t, []int{234}, app.api.signedAgreements)
	require.Len(t, app.mailer.sent, 1)
	assert.Equal(t, []string{"email@email.com", "contact@example.com"}, app.mailer.sent[0].To)
}

func TestContractReviewSubmitDeduplicatesContactEmail(t *testing.T) {
	app := newTestApp(t)
	agreement := app.seedSigningFramework("g-cloud-7")
	agreement.SignedAgreementDetails = &models.AgreementDetails{SignerName: "Signer Name", SignerRole: "Director"}
	agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/page.pdf"
	app.api.supplierFrameworks["g-cloud-7"].Declaration["primaryContactEmail"] = "EMAIL@email.com"

	app.post(t, "/suppliers/frameworks/g-cloud-7/234/contract-review",
		url.Values{"authorisation": {"on"}})

	require.Len(t, app.mailer.sent, 1)
	assert.Equal(t, []string{"email@email.com"}, app.mailer.sent[0].To)
}

func TestContractReviewSubmitRedirectsToPendingVariation(t *testing.T) {
	app := newTestApp(t)
	agreement := app.seedSigningFramework("g-cloud-7")
	agreement.SignedAgreementDetails = &models.AgreementDetails{SignerName: "Signer Name", SignerRole: "Director"}
	agreement.SignedAgreementPath = "g-cloud-7/agreements/1234/page.pdf"
	app.api.frameworks["g-cloud-7"].Variations = map[string]models.Variation{"1": {}}

	rec := app.post(t, "/suppliers/frameworks/g-cloud-7/234/contract-review",
		url.Values{"authorisation": {"on"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/suppliers/frameworks/g-cloud-7/contract-variation/1", rec.Header().Get("Location"))
}
