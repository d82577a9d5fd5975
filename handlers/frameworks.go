package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/notify"
	"github.com/risicle/digitalmarketplace-supplier-frontend/session"
	"github.com/risicle/digitalmarketplace-supplier-frontend/templates"
)

const signedURLTTL = 30 * time.Minute

// frameworkFrom loads the framework named in the URL. Frameworks that have
// not opened yet are treated as not found.
func (s *Server) frameworkFrom(r *http.Request) (*models.Framework, error) {
	slug := chi.URLParam(r, "frameworkSlug")
	framework, err := s.api.GetFramework(r.Context(), slug)
	if err != nil {
		return nil, err
	}
	if framework.Status == models.FrameworkComing {
		return nil, apierrors.NotFound("framework is not open yet")
	}
	return framework, nil
}

// draftCount pairs a label with a count for the dashboard services summary
type draftCount struct {
	Label string
	Count int
}

// FrameworkDashboard shows the supplier's status for one framework:
// declaration progress, draft services, agreement state and any contract
// variations awaiting acceptance.
func (s *Server) FrameworkDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	var supplierFramework *models.SupplierFramework
	sf, err := s.api.GetSupplierFramework(r.Context(), sess.SupplierID, framework.Slug)
	if err == nil {
		supplierFramework = sf
	} else if !apierrors.IsNotFound(err) {
		s.renderError(w, r, err)
		return
	}

	drafts, err := s.api.FindDraftServices(r.Context(), sess.SupplierID, framework.Slug)
	if err != nil && !apierrors.IsNotFound(err) {
		s.renderError(w, r, err)
		return
	}
	counts := map[models.DraftServiceStatus]int{}
	for _, d := range drafts {
		counts[d.Status]++
	}
	draftCounts := []draftCount{
		{Label: "services marked as complete", Count: counts[models.DraftSubmitted]},
		{Label: "draft services", Count: counts[models.DraftNotSubmitted]},
		{Label: "services that failed", Count: counts[models.DraftFailed]},
	}

	declarationStatus := models.DeclarationNotStarted
	countersignedURL := ""
	var unsignedVariations []string
	if supplierFramework != nil {
		declarationStatus = supplierFramework.Declaration.Status()
		if supplierFramework.CountersignedPath != "" {
			countersignedURL, err = s.store.SignedURL(r.Context(), supplierFramework.CountersignedPath, signedURLTTL)
			if err != nil {
				s.renderError(w, r, err)
				return
			}
		}
		unsignedVariations = s.unsignedVariations(framework, supplierFramework)
	}

	// Remember the open framework so other pages can link back to the
	// application in progress.
	if framework.Status == models.FrameworkOpen && supplierFramework != nil {
		sess.SetCurrentlyApplyingTo(framework.Slug)
		s.saveSession(w, sess)
	}

	s.render.Render(w, http.StatusOK, "frameworks/dashboard", templates.Page{
		Title:   framework.Name,
		Session: sess,
		Flashes: s.takeFlashes(w, sess),
		Data: map[string]interface{}{
			"Framework":          framework,
			"SupplierFramework":  supplierFramework,
			"DeclarationStatus":  declarationStatus,
			"DraftCounts":        draftCounts,
			"SigningAllowed":     framework.SigningAllowed(),
			"CountersignedURL":   countersignedURL,
			"UnsignedVariations": unsignedVariations,
			"ApplicationMade": framework.Status != models.FrameworkOpen &&
				declarationStatus == models.DeclarationComplete && counts[models.DraftSubmitted] > 0,
		},
	})
}

// unsignedVariations lists the framework's variation ids the supplier has
// not yet agreed, oldest first. Only suppliers with a returned agreement
// are prompted, and only when the feature is on.
func (s *Server) unsignedVariations(framework *models.Framework, sf *models.SupplierFramework) []string {
	if !s.contractVariations || !sf.OnFramework || !sf.AgreementReturned {
		return nil
	}
	var ids []string
	for id := range framework.Variations {
		if _, agreed := sf.AgreedVariations[id]; !agreed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// takeFlashes drains the session's flash messages and persists the change
func (s *Server) takeFlashes(w http.ResponseWriter, sess *session.Session) []session.Flash {
	flashes := sess.TakeFlashes()
	if len(flashes) > 0 {
		s.saveSession(w, sess)
	}
	return flashes
}

// StartFrameworkApplication registers the supplier's interest in an open
// framework, emails confirmation and marks the application in the session.
func (s *Server) StartFrameworkApplication(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if framework.Status != models.FrameworkOpen {
		s.renderError(w, r, apierrors.NotFound("framework is not open to applications"))
		return
	}

	if _, err := s.api.RegisterFrameworkInterest(r.Context(), sess.SupplierID, framework.Slug, sess.EmailAddress); err != nil {
		s.renderError(w, r, err)
		return
	}
	s.audit(r.Context(), "register_framework_interest", sess.EmailAddress,
		map[string]interface{}{"frameworkSlug": framework.Slug},
		"suppliers", fmt.Sprintf("%d", sess.SupplierID))

	email := notify.Email{
		To:      []string{sess.EmailAddress},
		Subject: fmt.Sprintf("You have started your %s application", framework.Name),
		Body: fmt.Sprintf("You have started your %s application.\n\n"+
			"You must make your supplier declaration and have at least one service marked as complete "+
			"before the deadline to be considered.", framework.Name),
		Tags: []string{"framework-application-started", framework.Slug},
	}
	if err := s.mailer.Send(r.Context(), email); err != nil {
		s.renderError(w, r, err)
		return
	}

	sess.SetCurrentlyApplyingTo(framework.Slug)
	s.saveSession(w, sess)
	http.Redirect(w, r, "/suppliers/frameworks/"+framework.Slug, http.StatusFound)
}

// FrameworkUpdates shows framework communications and the question form
func (s *Server) FrameworkUpdates(w http.ResponseWriter, r *http.Request) {
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderFrameworkUpdates(w, r, framework, "", nil)
}

type communication struct {
	Filename string
	URL      string
}

func (s *Server) renderFrameworkUpdates(w http.ResponseWriter, r *http.Request, framework *models.Framework, question string, errors map[string]string) {
	objects, err := s.store.List(r.Context(), framework.Slug+"/communications/")
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	communications := make([]communication, 0, len(objects))
	for _, obj := range objects {
		url, err := s.store.SignedURL(r.Context(), obj.Key, signedURLTTL)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		communications = append(communications, communication{Filename: obj.Filename, URL: url})
	}

	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	sess := sessionFrom(r)
	s.render.Render(w, status, "frameworks/updates", templates.Page{
		Title:   framework.Name + " updates",
		Session: sess,
		Flashes: s.takeFlashes(w, sess),
		Errors:  errors,
		Data: map[string]interface{}{
			"Framework":                  framework,
			"Communications":             communications,
			"ClarificationQuestionsOpen": framework.ClarificationQuestionsOpen,
			"ClarificationQuestion":      question,
		},
	})
}

// FrameworkClarificationSubmit routes a supplier question to the
// clarification inbox while questions are open, or to the support team
// afterwards. Clarification answers are published to all suppliers, so the
// two paths audit differently.
func (s *Server) FrameworkClarificationSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}
	question := r.PostFormValue("clarification_question")
	if strings.TrimSpace(question) == "" {
		s.renderFrameworkUpdates(w, r, framework, question,
			map[string]string{"clarification_question": "Add text if you want to ask a question."})
		return
	}
	if len([]rune(question)) > maxQuestionLength {
		s.renderFrameworkUpdates(w, r, framework, question,
			map[string]string{"clarification_question": "Question cannot be longer than 5000 characters"})
		return
	}

	if framework.ClarificationQuestionsOpen {
		email := notify.Email{
			To:      []string{s.clarificationEmail},
			Subject: fmt.Sprintf("%s clarification question", framework.Name),
			Body:    question,
			ReplyTo: sess.EmailAddress,
			Tags:    []string{"clarification-question", framework.Slug},
		}
		if err := s.mailer.Send(r.Context(), email); err != nil {
			s.renderError(w, r, err)
			return
		}
		confirmation := notify.Email{
			To:      []string{sess.EmailAddress},
			Subject: fmt.Sprintf("Your clarification question for %s", framework.Name),
			Body: fmt.Sprintf("You asked the following clarification question about %s:\n\n%s\n\n"+
				"All clarification questions and answers will be published on the updates page.", framework.Name, question),
			Tags: []string{"clarification-question-confirmation", framework.Slug},
		}
		if err := s.mailer.Send(r.Context(), confirmation); err != nil {
			s.renderError(w, r, err)
			return
		}
		s.audit(r.Context(), "send_clarification_question", sess.EmailAddress,
			map[string]interface{}{"frameworkSlug": framework.Slug, "question": question},
			"suppliers", fmt.Sprintf("%d", sess.SupplierID))
		sess.AddFlash("Your clarification question has been sent. Answers to all clarification questions will be published on this page.", "success")
	} else {
		email := notify.Email{
			To:      []string{s.followUpEmail},
			Subject: fmt.Sprintf("%s application question", framework.Name),
			Body:    question,
			ReplyTo: sess.EmailAddress,
			Tags:    []string{"application-question", framework.Slug},
		}
		if err := s.mailer.Send(r.Context(), email); err != nil {
			s.renderError(w, r, err)
			return
		}
		s.audit(r.Context(), "send_application_question", sess.EmailAddress,
			map[string]interface{}{"frameworkSlug": framework.Slug, "question": question},
			"suppliers", fmt.Sprintf("%d", sess.SupplierID))
		sess.AddFlash("Your question has been sent. You'll get a reply from the Crown Commercial Service soon.", "success")
	}

	s.saveSession(w, sess)
	http.Redirect(w, r, "/suppliers/frameworks/"+framework.Slug+"/updates", http.StatusFound)
}
