package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/notify"
	"github.com/risicle/digitalmarketplace-supplier-frontend/templates"
)

// variationContext holds everything the contract variation pages need
type variationContext struct {
	framework         *models.Framework
	supplierFramework *models.SupplierFramework
	variationID       string
	variation         models.Variation
}

// variationContextFrom authorises a variation request. The feature must be
// on, the variation must exist, and the supplier must be on the framework
// with a returned agreement to vary.
func (s *Server) variationContextFrom(r *http.Request) (*variationContext, error) {
	if !s.contractVariations {
		return nil, apierrors.NotFound("contract variations are not available")
	}
	framework, err := s.frameworkFrom(r)
	if err != nil {
		return nil, err
	}
	variationID := chi.URLParam(r, "variationID")
	variation, ok := framework.Variations[variationID]
	if !ok {
		return nil, apierrors.NotFound("no such contract variation")
	}
	sf, err := s.supplierFrameworkFrom(r, framework.Slug)
	if err != nil {
		return nil, err
	}
	if !sf.OnFramework || !sf.AgreementReturned {
		return nil, apierrors.NotFound("supplier has no agreement to vary")
	}
	return &variationContext{
		framework:         framework,
		supplierFramework: sf,
		variationID:       variationID,
		variation:         variation,
	}, nil
}

// ContractVariation shows the variation text, or its acceptance record once
// the supplier has agreed
func (s *Server) ContractVariation(w http.ResponseWriter, r *http.Request) {
	vc, err := s.variationContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderVariation(w, r, vc, nil)
}

func (s *Server) renderVariation(w http.ResponseWriter, r *http.Request, vc *variationContext, errors map[string]string) {
	sess := sessionFrom(r)
	agreed, hasAgreed := vc.supplierFramework.AgreedVariations[vc.variationID]

	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	data := map[string]interface{}{
		"Framework":     vc.framework,
		"VariationID":   vc.variationID,
		"SupplierName":  sess.SupplierName,
		"Agreed":        hasAgreed,
		"Countersigned": vc.variation.Countersigned(),
	}
	if hasAgreed {
		data["AgreedUserName"] = agreed.AgreedUserName
		data["AgreedAt"] = agreed.AgreedAt.Format("Monday 2 January 2006")
	}
	if vc.variation.Countersigned() {
		data["CountersignerName"] = vc.variation.CountersignerName
		data["CountersignerRole"] = vc.variation.CountersignerRole
	}

	s.render.Render(w, status, "variations/variation", templates.Page{
		Title:   vc.framework.Name + " contract variation",
		Session: sess,
		Flashes: s.takeFlashes(w, sess),
		Errors:  errors,
		Data:    data,
	})
}

// ContractVariationAccept records the supplier's acceptance. Accepting an
// already-accepted variation re-renders the agreed state without another
// API call or email.
func (s *Server) ContractVariationAccept(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	vc, err := s.variationContextFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if _, alreadyAgreed := vc.supplierFramework.AgreedVariations[vc.variationID]; alreadyAgreed {
		s.renderVariation(w, r, vc, nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}
	if r.PostFormValue("accept_changes") == "" {
		s.renderVariation(w, r, vc, map[string]string{
			"accept_changes": "You need to accept these changes to continue.",
		})
		return
	}

	agreed, err := s.api.AgreeFrameworkVariation(r.Context(), sess.SupplierID, vc.framework.Slug, vc.variationID, sess.UserID, sess.EmailAddress)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	recipients := []string{sess.EmailAddress}
	if contact := vc.supplierFramework.PrimaryContactEmail(); contact != "" && !strings.EqualFold(contact, sess.EmailAddress) {
		recipients = append(recipients, contact)
	}
	email := notify.Email{
		To:      recipients,
		Subject: fmt.Sprintf("You have accepted the %s contract variation", vc.framework.Name),
		Body: fmt.Sprintf("You have accepted the proposed changes to the %s framework agreement.\n\n"+
			"The changes will take effect when the Crown Commercial Service countersigns them.", vc.framework.Name),
		Tags: []string{"contract-variation-agreed", vc.framework.Slug},
	}
	if err := s.mailer.Send(r.Context(), email); err != nil {
		s.renderError(w, r, err)
		return
	}

	if agreed.AgreedUserName == "" {
		agreed.AgreedUserName = sess.Name
	}
	if vc.supplierFramework.AgreedVariations == nil {
		vc.supplierFramework.AgreedVariations = map[string]models.AgreedVariation{}
	}
	vc.supplierFramework.AgreedVariations[vc.variationID] = *agreed

	sess.AddFlash("You have accepted the proposed changes.", "success")
	s.renderVariation(w, r, vc, nil)
}
