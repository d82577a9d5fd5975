package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/notify"
	"github.com/risicle/digitalmarketplace-supplier-frontend/templates"
)

const (
	reasonNotOnFramework = "supplier-not-on-framework"
	reasonNotOnLot       = "supplier-not-on-lot"
	reasonNotOnRole      = "supplier-not-on-role"

	maxQuestionLength = 5000
	maxQuestionWords  = 100
)

// briefFrom loads the brief named in the URL and checks it is open to
// responses. Draft and closed briefs are treated as not found.
func (s *Server) briefFrom(r *http.Request) (*models.Brief, error) {
	briefID, err := strconv.Atoi(chi.URLParam(r, "briefID"))
	if err != nil {
		return nil, apierrors.NotFound("no such opportunity")
	}
	brief, err := s.api.GetBrief(r.Context(), briefID)
	if err != nil {
		return nil, err
	}
	if brief.Status != models.BriefLive {
		return nil, apierrors.NotFound("opportunity is not open to applications")
	}
	return brief, nil
}

// eligibilityReason determines why a supplier cannot respond to a brief,
// narrowing from framework to lot to specialist role. An empty reason means
// the supplier is eligible.
func (s *Server) eligibilityReason(ctx context.Context, supplierID int, brief *models.Brief) (string, error) {
	onFramework, err := s.api.FindServices(ctx, supplierID, brief.FrameworkSlug, "", "")
	if err != nil {
		return "", err
	}
	if len(onFramework) == 0 {
		return reasonNotOnFramework, nil
	}

	onLot, err := s.api.FindServices(ctx, supplierID, brief.FrameworkSlug, brief.LotSlug, "")
	if err != nil {
		return "", err
	}
	if len(onLot) == 0 {
		return reasonNotOnLot, nil
	}

	if brief.SpecialistRole != "" {
		onRole, err := s.api.FindServices(ctx, supplierID, brief.FrameworkSlug, brief.LotSlug, brief.SpecialistRole)
		if err != nil {
			return "", err
		}
		if len(onRole) == 0 {
			return reasonNotOnRole, nil
		}
	}
	return "", nil
}

// checkEligible renders the ineligibility reason page when the supplier
// cannot respond, returning false to stop the caller.
func (s *Server) checkEligible(w http.ResponseWriter, r *http.Request, brief *models.Brief) bool {
	reason, err := s.eligibilityReason(r.Context(), sessionFrom(r).SupplierID, brief)
	if err != nil {
		s.renderError(w, r, err)
		return false
	}
	if reason != "" {
		// The framework-level reason carries a family-specific slug for
		// analytics; the lot and role reasons use the reason itself.
		dataReason := reason
		if reason == reasonNotOnFramework {
			dataReason = "supplier-not-on-" + brief.FrameworkFamily
		}
		s.render.Render(w, http.StatusBadRequest, "briefs/ineligible", templates.Page{
			Title:   "You can't apply for this opportunity",
			Session: sessionFrom(r),
			Data: map[string]interface{}{
				"Brief":      brief,
				"Reason":     reason,
				"DataReason": dataReason,
			},
		})
		return false
	}
	return true
}

// submittedResponse returns the supplier's submitted response, or nil when
// only drafts exist.
func submittedResponse(responses []models.BriefResponse) *models.BriefResponse {
	for i := range responses {
		if responses[i].Status == models.BriefResponseSubmitted {
			return &responses[i]
		}
	}
	return nil
}

// redirectAlreadyApplied flashes that the supplier already applied and sends
// them to the result page.
func (s *Server) redirectAlreadyApplied(w http.ResponseWriter, r *http.Request, briefID int) {
	sess := sessionFrom(r)
	sess.AddFlash("You already applied for this opportunity.", "error")
	s.saveSession(w, sess)
	http.Redirect(w, r, fmt.Sprintf("/suppliers/opportunities/%d/responses/result", briefID), http.StatusFound)
}

// BriefResponseStart is the entry point for applying to a brief. A submitted
// response routes to the result page; a draft offers to pick up where the
// supplier left off.
func (s *Server) BriefResponseStart(w http.ResponseWriter, r *http.Request) {
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if !s.checkEligible(w, r, brief) {
		return
	}
	responses, err := s.api.FindBriefResponses(r.Context(), brief.ID, sessionFrom(r).SupplierID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if submittedResponse(responses) != nil {
		s.redirectAlreadyApplied(w, r, brief.ID)
		return
	}

	s.render.Render(w, http.StatusOK, "briefs/start_response", templates.Page{
		Title:   "Apply for " + brief.Title,
		Session: sessionFrom(r),
		Data: map[string]interface{}{
			"Brief":         brief,
			"ExistingDraft": len(responses) > 0,
		},
	})
}

// BriefResponseStartSubmit creates an empty draft response and sends the
// supplier on to the application form.
func (s *Server) BriefResponseStartSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if !s.checkEligible(w, r, brief) {
		return
	}
	responses, err := s.api.FindBriefResponses(r.Context(), brief.ID, sess.SupplierID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if submittedResponse(responses) != nil {
		s.redirectAlreadyApplied(w, r, brief.ID)
		return
	}
	if len(responses) == 0 {
		if _, err := s.api.CreateBriefResponse(r.Context(), brief.ID, sess.SupplierID, map[string]interface{}{}, sess.EmailAddress); err != nil {
			s.renderError(w, r, err)
			return
		}
	}
	http.Redirect(w, r, fmt.Sprintf("/suppliers/opportunities/%d/responses/create", brief.ID), http.StatusFound)
}

// BriefResponseForm shows the application form for a brief
func (s *Server) BriefResponseForm(w http.ResponseWriter, r *http.Request) {
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	responses, err := s.api.FindBriefResponses(r.Context(), brief.ID, sessionFrom(r).SupplierID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if submittedResponse(responses) != nil {
		s.redirectAlreadyApplied(w, r, brief.ID)
		return
	}
	if !s.checkEligible(w, r, brief) {
		return
	}
	s.renderBriefResponseForm(w, r, brief, nil, nil)
}

func (s *Server) renderBriefResponseForm(w http.ResponseWriter, r *http.Request, brief *models.Brief, submitted map[string]interface{}, errors map[string]string) {
	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	str := func(key string) string {
		v, _ := submitted[key].(string)
		return v
	}
	s.render.Render(w, status, "briefs/brief_response", templates.Page{
		Title:   "Apply for " + brief.Title,
		Session: sessionFrom(r),
		Errors:  errors,
		Data: map[string]interface{}{
			"Brief":                 brief,
			"ShowDayRate":           brief.LotSlug == "digital-specialists",
			"Availability":          str("availability"),
			"DayRate":               str("dayRate"),
			"RespondToEmailAddress": str("respondToEmailAddress"),
		},
	})
}

// BriefResponseSubmit creates and submits the supplier's application
func (s *Server) BriefResponseSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	responses, err := s.api.FindBriefResponses(r.Context(), brief.ID, sess.SupplierID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if submittedResponse(responses) != nil {
		s.redirectAlreadyApplied(w, r, brief.ID)
		return
	}
	if !s.checkEligible(w, r, brief) {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}
	manifest, err := s.content.Manifest(brief.FrameworkSlug, "edit_brief_response")
	if err != nil {
		s.renderError(w, r, apierrors.Validation("no application questions for this framework", nil))
		return
	}
	section, err := manifest.Filter(brief.LotSlug).FirstEditableSection()
	if err != nil {
		s.renderError(w, r, apierrors.Internal("application section missing", err))
		return
	}
	data := section.GetData(r.Form)

	response, err := s.api.CreateBriefResponse(r.Context(), brief.ID, sess.SupplierID, data, sess.EmailAddress)
	if err != nil {
		if fieldErrors := apierrors.FieldErrorsOf(err); fieldErrors != nil {
			s.renderBriefResponseForm(w, r, brief, data, section.ErrorMessages(fieldErrors))
			return
		}
		s.renderError(w, r, err)
		return
	}
	if _, err := s.api.SubmitBriefResponse(r.Context(), response.ID, sess.EmailAddress); err != nil {
		s.renderError(w, r, err)
		return
	}

	// The result parameter is used to track applications by analytics.
	result := "fail"
	if response.MeetsAllEssentialRequirements() {
		result = "success"
	}
	http.Redirect(w, r, fmt.Sprintf("/suppliers/opportunities/%d/responses/result?result=%s", brief.ID, result), http.StatusFound)
}

// BriefResponseResult shows whether the supplier's application met the
// essential requirements
func (s *Server) BriefResponseResult(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	responses, err := s.api.FindBriefResponses(r.Context(), brief.ID, sess.SupplierID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	response := submittedResponse(responses)
	if response == nil {
		http.Redirect(w, r, fmt.Sprintf("/suppliers/opportunities/%d/responses/create", brief.ID), http.StatusFound)
		return
	}

	s.render.Render(w, http.StatusOK, "briefs/response_result", templates.Page{
		Title:   "Your application for " + brief.Title,
		Session: sess,
		Flashes: s.takeFlashes(w, sess),
		Data: map[string]interface{}{
			"Brief":                    brief,
			"EssentialRequirementsMet": response.MeetsAllEssentialRequirements(),
			"RespondToEmailAddress":    sess.EmailAddress,
		},
	})
}

// QuestionAndAnswerSession shows the buyer's question and answer session
// details. The details are only available to eligible suppliers while
// clarification questions are open.
func (s *Server) QuestionAndAnswerSession(w http.ResponseWriter, r *http.Request) {
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if brief.ClarificationQuestionsAreClosed {
		s.renderError(w, r, apierrors.NotFound("clarification questions are closed"))
		return
	}
	if brief.QuestionAndAnswerSessionDetails == "" {
		s.renderError(w, r, apierrors.NotFound("opportunity has no question and answer session"))
		return
	}
	if !s.checkEligible(w, r, brief) {
		return
	}

	s.render.Render(w, http.StatusOK, "briefs/qa_session", templates.Page{
		Title:   "Question and answer session for " + brief.Title,
		Session: sessionFrom(r),
		Data:    map[string]interface{}{"Brief": brief},
	})
}

// BriefClarificationQuestionForm shows the ask-a-question form for a brief
func (s *Server) BriefClarificationQuestionForm(w http.ResponseWriter, r *http.Request) {
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if brief.ClarificationQuestionsAreClosed {
		s.renderError(w, r, apierrors.NotFound("clarification questions are closed"))
		return
	}
	if !s.checkEligible(w, r, brief) {
		return
	}
	s.renderBriefClarificationForm(w, r, brief, "", nil)
}

func (s *Server) renderBriefClarificationForm(w http.ResponseWriter, r *http.Request, brief *models.Brief, question string, errors map[string]string) {
	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	sess := sessionFrom(r)
	s.render.Render(w, status, "briefs/clarification_question", templates.Page{
		Title:   "Ask a question about " + brief.Title,
		Session: sess,
		Flashes: s.takeFlashes(w, sess),
		Errors:  errors,
		Data: map[string]interface{}{
			"Brief":                 brief,
			"ClarificationQuestion": question,
		},
	})
}

// validateClarificationQuestion applies the shared question limits. The
// required message differs per page, so it is passed in.
func validateClarificationQuestion(question, requiredMessage string) map[string]string {
	if strings.TrimSpace(question) == "" {
		if requiredMessage == "" {
			return nil
		}
		return map[string]string{"clarification_question": requiredMessage}
	}
	if len([]rune(question)) > maxQuestionLength {
		return map[string]string{"clarification_question": "Question cannot be longer than 5000 characters"}
	}
	if len(strings.Fields(question)) > maxQuestionWords {
		return map[string]string{"clarification_question": "Question cannot be longer than 100 words"}
	}
	return nil
}

// BriefClarificationQuestionSubmit emails the supplier's question to the
// buyer and confirms receipt to the supplier
func (s *Server) BriefClarificationQuestionSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	brief, err := s.briefFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if brief.ClarificationQuestionsAreClosed {
		s.renderError(w, r, apierrors.NotFound("clarification questions are closed"))
		return
	}
	if !s.checkEligible(w, r, brief) {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}
	question := r.PostFormValue("clarification_question")
	if errors := validateClarificationQuestion(question, "Question cannot be empty"); errors != nil {
		s.renderBriefClarificationForm(w, r, brief, question, errors)
		return
	}

	buyerEmail := notify.Email{
		To:      brief.BuyerEmailAddresses(),
		Subject: fmt.Sprintf("You've received a new supplier question about '%s'", brief.Title),
		Body: fmt.Sprintf("A supplier has asked a question about '%s':\n\n%s\n\n"+
			"You must post your answer with the question on the opportunity page.", brief.Title, question),
		ReplyTo: s.clarificationEmail,
		Tags:    []string{"brief-clarification-question"},
	}
	if err := s.mailer.Send(r.Context(), buyerEmail); err != nil {
		s.renderError(w, r, err)
		return
	}
	confirmation := notify.Email{
		To:      []string{sess.EmailAddress},
		Subject: fmt.Sprintf("Your question about '%s'", brief.Title),
		Body: fmt.Sprintf("You asked the following question about '%s':\n\n%s\n\n"+
			"The buyer will post your question and their answer on the opportunity page.", brief.Title, question),
		Tags: []string{"brief-clarification-question-confirmation"},
	}
	if err := s.mailer.Send(r.Context(), confirmation); err != nil {
		s.renderError(w, r, err)
		return
	}

	s.audit(r.Context(), "send_clarification_question", sess.EmailAddress,
		map[string]interface{}{"briefId": brief.ID, "question": question},
		"briefs", strconv.Itoa(brief.ID))

	sess.AddFlash("Your question has been sent. The buyer will post your question and their answer on the opportunity page.", "success")
	s.renderBriefClarificationForm(w, r, brief, "", nil)
}
