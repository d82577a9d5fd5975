package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/documents"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/notify"
	"github.com/risicle/digitalmarketplace-supplier-frontend/templates"
)

const (
	maxSignatureSize = 5 * 1024 * 1024
	maxSignerLength  = 255
)

// signingContext gathers everything the agreement signing pages need, after
// checking the supplier is allowed to sign at all.
type signingContext struct {
	framework         *models.Framework
	supplierFramework *models.SupplierFramework
	agreement         *models.FrameworkAgreement
}

// signingContextFrom authorises an agreement-scoped request. Signing is only
// possible during standstill and live, for suppliers awarded a place, on
// their own agreement. Everything else is a 404.
func (s *Server) signingContextFrom(r *http.Request) (*signingContext, error) {
	framework, err := s.frameworkFrom(r)
	if err != nil {
		return nil, err
	}
	if !framework.SigningAllowed() {
		return nil, apierrors.NotFound("framework agreement cannot be signed now")
	}
	sf, err := s.supplierFrameworkFrom(r, framework.Slug)
	if err != nil {
		return nil, err
	}
	if !sf.OnFramework {
		return nil, apierrors.NotFound("supplier is not on this framework")
	}

	agreementID, err := strconv.Atoi(chi.URLParam(r, "agreementID"))
	if err != nil {
		return nil, apierrors.NotFound("no such agreement")
	}
	agreement, err := s.api.GetFrameworkAgreement(r.Context(), agreementID)
	if err != nil {
		return nil, err
	}
	if agreement.SupplierID != sessionFrom(r).SupplierID || agreement.FrameworkSlug != framework.Slug {
		return nil, apierrors.NotFound("no such agreement")
	}
	return &signingContext{framework: framework, supplierFramework: sf, agreement: agreement}, nil
}

// CreateAgreement starts the signing flow by creating a draft agreement
func (s *Server) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if !framework.SigningAllowed() {
		s.renderError(w, r, apierrors.NotFound("framework agreement cannot be signed now"))
		return
	}
	sf, err := s.supplierFrameworkFrom(r, framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if !sf.OnFramework {
		s.renderError(w, r, apierrors.NotFound("supplier is not on this framework"))
		return
	}

	agreement, err := s.api.CreateFrameworkAgreement(r.Context(), sess.SupplierID, framework.Slug, sess.EmailAddress)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/suppliers/frameworks/%s/%d/signer-details", framework.Slug, agreement.ID), http.StatusFound)
}

// SignerDetailsForm asks who is signing on behalf of the supplier
func (s *Server) SignerDetailsForm(w http.ResponseWriter, r *http.Request) {
	sc, err := s.signingContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderSignerDetails(w, r, sc, sc.agreement.SignerName(), sc.agreement.SignerRole(), nil)
}

func (s *Server) renderSignerDetails(w http.ResponseWriter, r *http.Request, sc *signingContext, name, role string, errors map[string]string) {
	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	sess := sessionFrom(r)
	s.render.Render(w, status, "agreements/signer_details", templates.Page{
		Title:   "Signer details",
		Session: sess,
		Errors:  errors,
		Data: map[string]interface{}{
			"Framework":    sc.framework,
			"AgreementID":  sc.agreement.ID,
			"SupplierName": sess.SupplierName,
			"SignerName":   name,
			"SignerRole":   role,
		},
	})
}

// validateSignerField checks one signer detail is present and short enough
func validateSignerField(value, requiredMessage, lengthMessage string) (string, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return value, requiredMessage
	}
	if len(value) > maxSignerLength {
		return value, lengthMessage
	}
	return value, ""
}

// SignerDetailsSubmit records the signer's name and role on the agreement.
// When a signature page was already uploaded in this session, the supplier
// skips straight to the review step.
func (s *Server) SignerDetailsSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sc, err := s.signingContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}

	errors := map[string]string{}
	name, msg := validateSignerField(r.PostFormValue("signerName"),
		"You must provide the full name of the person signing on behalf of the company",
		"You must provide a name under 256 characters")
	if msg != "" {
		errors["signerName"] = msg
	}
	role, msg := validateSignerField(r.PostFormValue("signerRole"),
		"You must provide the role of the person signing on behalf of the company",
		"You must provide a role under 256 characters")
	if msg != "" {
		errors["signerRole"] = msg
	}
	if len(errors) > 0 {
		s.renderSignerDetails(w, r, sc, name, role, errors)
		return
	}

	fields := map[string]interface{}{
		"signedAgreementDetails": map[string]interface{}{
			"signerName": name,
			"signerRole": role,
		},
	}
	if err := s.api.UpdateFrameworkAgreement(r.Context(), sc.agreement.ID, fields, sess.EmailAddress); err != nil {
		s.renderError(w, r, err)
		return
	}

	next := fmt.Sprintf("/suppliers/frameworks/%s/%d/signature-upload", sc.framework.Slug, sc.agreement.ID)
	if sess.SignaturePage != "" && sc.agreement.SignedAgreementPath != "" {
		next = fmt.Sprintf("/suppliers/frameworks/%s/%d/contract-review", sc.framework.Slug, sc.agreement.ID)
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// SignatureUploadForm asks for the signed signature page file
func (s *Server) SignatureUploadForm(w http.ResponseWriter, r *http.Request) {
	sc, err := s.signingContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	uploadedAt := ""
	if sc.agreement.SignedAgreementPath != "" {
		if exists, _ := s.store.Exists(r.Context(), sc.agreement.SignedAgreementPath); exists {
			uploadedAt = uploadTimestampFromPath(sc.agreement.SignedAgreementPath)
		}
	}
	s.renderSignatureUpload(w, r, sc, uploadedAt, nil)
}

// uploadTimestampFromPath recovers the display timestamp from a stored
// upload path built by documents.UploadPath.
func uploadTimestampFromPath(storedPath string) string {
	base := strings.TrimSuffix(path.Base(storedPath), path.Ext(storedPath))
	parts := strings.Split(base, "-")
	if len(parts) < 4 {
		return ""
	}
	stamp := strings.Join(parts[len(parts)-4:], "-")
	parsed, err := time.Parse("2006-01-02-1504", stamp)
	if err != nil {
		return ""
	}
	return parsed.Format("Monday 2 January 2006 at 15:04")
}

func (s *Server) renderSignatureUpload(w http.ResponseWriter, r *http.Request, sc *signingContext, uploadedAt string, errors map[string]string) {
	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	s.render.Render(w, status, "agreements/signature_upload", templates.Page{
		Title:   "Upload your signature page",
		Session: sessionFrom(r),
		Errors:  errors,
		Data: map[string]interface{}{
			"Framework":   sc.framework,
			"AgreementID": sc.agreement.ID,
			"SignerName":  sc.agreement.SignerName(),
			"UploadedAt":  uploadedAt,
		},
	})
}

// SignatureUploadSubmit validates and stores the signed signature page
func (s *Server) SignatureUploadSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sc, err := s.signingContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	// Resubmitting without choosing a new file continues with the page
	// uploaded earlier.
	continueWithExisting := func() bool {
		if sc.agreement.SignedAgreementPath == "" {
			return false
		}
		http.Redirect(w, r, fmt.Sprintf("/suppliers/frameworks/%s/%d/contract-review", sc.framework.Slug, sc.agreement.ID), http.StatusFound)
		return true
	}

	if err := r.ParseMultipartForm(maxSignatureSize + 1024); err != nil {
		if continueWithExisting() {
			return
		}
		s.renderSignatureUpload(w, r, sc, "", map[string]string{"signature_page": "You must choose a file to upload"})
		return
	}
	file, header, err := r.FormFile("signature_page")
	if err != nil {
		if continueWithExisting() {
			return
		}
		s.renderSignatureUpload(w, r, sc, "", map[string]string{"signature_page": "You must choose a file to upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSignatureSize+1))
	if err != nil {
		s.renderError(w, r, apierrors.Internal("failed to read upload", err))
		return
	}
	if len(data) == 0 {
		s.renderSignatureUpload(w, r, sc, "", map[string]string{"signature_page": "The file must not be empty"})
		return
	}
	ext := documents.FileExtension(header.Filename)
	contentType, ok := documents.ContentTypeFor(ext)
	if !ok {
		s.renderSignatureUpload(w, r, sc, "", map[string]string{"signature_page": "The file must be a PDF, JPG or PNG"})
		return
	}
	if len(data) > maxSignatureSize {
		s.renderSignatureUpload(w, r, sc, "", map[string]string{"signature_page": "The file must be less than 5MB"})
		return
	}

	key := documents.UploadPath(sc.framework.Slug, sess.SupplierID, "agreements", "signed-framework-agreement", ext, time.Now())
	downloadFilename := documents.DownloadFilename(sess.SupplierName, sess.SupplierID, "signed-signature-page", ext)
	if err := s.store.Save(r.Context(), key, data, contentType, downloadFilename); err != nil {
		s.renderError(w, r, err)
		return
	}

	fields := map[string]interface{}{"signedAgreementPath": key}
	if err := s.api.UpdateFrameworkAgreement(r.Context(), sc.agreement.ID, fields, sess.EmailAddress); err != nil {
		s.renderError(w, r, err)
		return
	}

	sess.SetSignaturePage(header.Filename)
	s.saveSession(w, sess)
	http.Redirect(w, r, fmt.Sprintf("/suppliers/frameworks/%s/%d/contract-review", sc.framework.Slug, sc.agreement.ID), http.StatusFound)
}

// ContractReviewForm shows the signer details and uploaded page for a final
// check before the agreement is returned
func (s *Server) ContractReviewForm(w http.ResponseWriter, r *http.Request) {
	sc, err := s.signingContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if sc.agreement.SignerName() == "" || sc.agreement.SignedAgreementPath == "" {
		s.renderError(w, r, apierrors.NotFound("agreement is not ready for review"))
		return
	}
	s.renderContractReview(w, r, sc, nil)
}

func (s *Server) renderContractReview(w http.ResponseWriter, r *http.Request, sc *signingContext, errors map[string]string) {
	sess := sessionFrom(r)
	signatureURL, err := s.store.SignedURL(r.Context(), sc.agreement.SignedAgreementPath, signedURLTTL)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	filename := sess.SignaturePage
	if filename == "" {
		filename = path.Base(sc.agreement.SignedAgreementPath)
	}

	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	s.render.Render(w, status, "agreements/contract_review", templates.Page{
		Title:   "Check your signature page",
		Session: sess,
		Errors:  errors,
		Data: map[string]interface{}{
			"Framework":             sc.framework,
			"AgreementID":           sc.agreement.ID,
			"SupplierName":          sess.SupplierName,
			"SignerName":            sc.agreement.SignerName(),
			"SignerRole":            sc.agreement.SignerRole(),
			"SignaturePageURL":      signatureURL,
			"SignaturePageFilename": filename,
		},
	})
}

// ContractReviewSubmit returns the signed agreement: the supplier confirms
// their authority, the agreement is marked signed and confirmation email
// goes to the user and the declared contact.
func (s *Server) ContractReviewSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sc, err := s.signingContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if sc.agreement.SignerName() == "" || sc.agreement.SignedAgreementPath == "" {
		s.renderError(w, r, apierrors.NotFound("agreement is not ready for review"))
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}
	if r.PostFormValue("authorisation") == "" {
		s.renderContractReview(w, r, sc, map[string]string{
			"authorisation": "You must confirm you have the authority to return the agreement",
		})
		return
	}

	if _, err := s.api.SignFrameworkAgreement(r.Context(), sc.agreement.ID, sess.UserID, sess.EmailAddress); err != nil {
		s.renderError(w, r, err)
		return
	}

	recipients := []string{sess.EmailAddress}
	if contact := sc.supplierFramework.PrimaryContactEmail(); contact != "" && !strings.EqualFold(contact, sess.EmailAddress) {
		recipients = append(recipients, contact)
	}
	email := notify.Email{
		To:      recipients,
		Subject: fmt.Sprintf("Your %s signature page has been received", sc.framework.Name),
		Body: fmt.Sprintf("You've returned your %s framework agreement signature page.\n\n"+
			"The Crown Commercial Service will countersign it and make it available on your framework dashboard.", sc.framework.Name),
		Tags: []string{"framework-agreement-returned", sc.framework.Slug},
	}
	if err := s.mailer.Send(r.Context(), email); err != nil {
		s.renderError(w, r, err)
		return
	}

	sess.ClearSignaturePage()
	sess.AddFlash("Your framework agreement has been returned to the Crown Commercial Service to be countersigned.", "success")
	s.saveSession(w, sess)

	next := "/suppliers/frameworks/" + sc.framework.Slug
	if s.contractVariations {
		pending := s.unsignedVariationsAfterSigning(sc.framework, sc.supplierFramework)
		if len(pending) > 0 {
			next = fmt.Sprintf("/suppliers/frameworks/%s/contract-variation/%s", sc.framework.Slug, pending[0])
		}
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// unsignedVariationsAfterSigning lists unagreed variation ids as of the
// moment the agreement was returned. The agreement-returned precondition is
// satisfied by the sign call that just succeeded.
func (s *Server) unsignedVariationsAfterSigning(framework *models.Framework, sf *models.SupplierFramework) []string {
	signed := *sf
	signed.AgreementReturned = true
	return s.unsignedVariations(framework, &signed)
}
