package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/risicle/digitalmarketplace-supplier-frontend/content"
	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
	"github.com/risicle/digitalmarketplace-supplier-frontend/templates"
)

// supplierFrameworkFrom loads the supplier's interest record, returning 404
// when they never registered for the framework.
func (s *Server) supplierFrameworkFrom(r *http.Request, frameworkSlug string) (*models.SupplierFramework, error) {
	sf, err := s.api.GetSupplierFramework(r.Context(), sessionFrom(r).SupplierID, frameworkSlug)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, apierrors.NotFound("supplier has not registered interest in this framework")
		}
		return nil, err
	}
	return sf, nil
}

// declarationManifest loads the declaration questions for a framework
func (s *Server) declarationManifest(frameworkSlug string) (*content.Manifest, error) {
	manifest, err := s.content.Manifest(frameworkSlug, "declaration")
	if err != nil {
		return nil, apierrors.NotFound("no declaration questions for this framework")
	}
	return manifest, nil
}

// requireOpenForEdits returns a 410 when the framework's application window
// has closed. Declarations stay readable but can no longer be changed.
func requireOpenForEdits(framework *models.Framework) error {
	if framework.Status != models.FrameworkOpen {
		return apierrors.Gone("framework applications have closed")
	}
	return nil
}

type sectionSummary struct {
	ID       string
	Name     string
	Complete bool
}

// DeclarationOverview shows the declaration's sections and their progress.
// The overview stays available after the framework closes.
func (s *Server) DeclarationOverview(w http.ResponseWriter, r *http.Request) {
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	sf, err := s.supplierFrameworkFrom(r, framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	manifest, err := s.declarationManifest(framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	sections := make([]sectionSummary, 0, len(manifest.Sections))
	for _, section := range manifest.Sections {
		sections = append(sections, sectionSummary{
			ID:       section.ID,
			Name:     section.Name,
			Complete: section.Complete(sf.Declaration),
		})
	}

	editable := framework.Status == models.FrameworkOpen
	prefillName := ""
	if sf.PrefillDeclarationFromFrameworkSlug != "" {
		if old, err := s.api.GetFramework(r.Context(), sf.PrefillDeclarationFromFrameworkSlug); err == nil {
			prefillName = old.Name
		}
	}

	sess := sessionFrom(r)
	s.render.Render(w, http.StatusOK, "frameworks/declaration_overview", templates.Page{
		Title:   "Your " + framework.Name + " declaration",
		Session: sess,
		Flashes: s.takeFlashes(w, sess),
		Data: map[string]interface{}{
			"Framework":            framework,
			"Sections":             sections,
			"Editable":             editable,
			"CanSubmit":            editable && manifest.DeclarationStatus(sf.Declaration) == models.DeclarationComplete && sf.Declaration.Status() != models.DeclarationComplete,
			"PrefillAvailable":     framework.AllowDeclarationReuse && sf.PrefillDeclarationFromFrameworkSlug != "" && sf.Declaration.Status() != models.DeclarationComplete,
			"PrefillFrameworkName": prefillName,
		},
	})
}

// DeclarationSectionForm shows one section's questions, prefilled from an
// earlier framework's declaration where the supplier chose to reuse it.
func (s *Server) DeclarationSectionForm(w http.ResponseWriter, r *http.Request) {
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := requireOpenForEdits(framework); err != nil {
		s.renderError(w, r, err)
		return
	}
	sf, err := s.supplierFrameworkFrom(r, framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	manifest, err := s.declarationManifest(framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	section, err := manifest.Section(chi.URLParam(r, "sectionID"))
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			err = apierrors.NotFound("no such declaration section")
		}
		s.renderError(w, r, err)
		return
	}

	// Prefilling only applies to sections the supplier has not saved in
	// this framework yet. Copied answers are flagged so the page can warn
	// they need review.
	answers := answersFor(section, sf.Declaration)
	prefilled := false
	if section.Prefill && sf.PrefillDeclarationFromFrameworkSlug != "" && !sectionSaved(section, answers) {
		old, err := s.api.GetSupplierDeclaration(r.Context(), sessionFrom(r).SupplierID, sf.PrefillDeclarationFromFrameworkSlug)
		if err == nil {
			for _, q := range section.Questions {
				if answers[q.ID] == "" && old.String(q.ID) != "" {
					answers[q.ID] = old.String(q.ID)
					prefilled = true
				}
			}
		} else if !apierrors.IsNotFound(err) {
			s.renderError(w, r, err)
			return
		}
	}

	s.renderDeclarationSection(w, r, framework, section, answers, prefilled, nil)
}

// sectionSaved reports whether any of the section's questions already hold an
// answer in this framework's declaration.
func sectionSaved(section *content.Section, answers map[string]string) bool {
	for _, q := range section.Questions {
		if answers[q.ID] != "" {
			return true
		}
	}
	return false
}

// answersFor extracts the section's current string answers for form display
func answersFor(section *content.Section, declaration models.Declaration) map[string]string {
	answers := map[string]string{}
	for _, q := range section.Questions {
		answers[q.ID] = declaration.String(q.ID)
	}
	return answers
}

func (s *Server) renderDeclarationSection(w http.ResponseWriter, r *http.Request, framework *models.Framework, section *content.Section, answers map[string]string, prefilled bool, errors map[string]string) {
	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	s.render.Render(w, status, "frameworks/declaration_section", templates.Page{
		Title:   section.Name,
		Session: sessionFrom(r),
		Errors:  errors,
		Data: map[string]interface{}{
			"Framework": framework,
			"Section":   section,
			"Answers":   answers,
			"Prefilled": prefilled,
		},
	})
}

// DeclarationSectionSubmit merges a section's answers into the declaration
func (s *Server) DeclarationSectionSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := requireOpenForEdits(framework); err != nil {
		s.renderError(w, r, err)
		return
	}
	sf, err := s.supplierFrameworkFrom(r, framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	manifest, err := s.declarationManifest(framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	section, err := manifest.Section(chi.URLParam(r, "sectionID"))
	if err != nil {
		s.renderError(w, r, apierrors.NotFound("no such declaration section"))
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}

	declaration := models.Declaration{}
	for k, v := range sf.Declaration {
		declaration[k] = v
	}
	for k, v := range section.GetData(r.Form) {
		declaration[k] = v
	}
	if declaration.Status() == models.DeclarationNotStarted {
		declaration["status"] = string(models.DeclarationStarted)
	}

	if _, err := s.api.UpdateSupplierDeclaration(r.Context(), sess.SupplierID, framework.Slug, declaration, sess.EmailAddress); err != nil {
		if fieldErrors := apierrors.FieldErrorsOf(err); fieldErrors != nil {
			s.renderDeclarationSection(w, r, framework, section, answersFor(section, declaration), false, section.ErrorMessages(fieldErrors))
			return
		}
		s.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, "/suppliers/frameworks/"+framework.Slug+"/declaration", http.StatusFound)
}

// MakeDeclaration finalises a fully-answered declaration
func (s *Server) MakeDeclaration(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := requireOpenForEdits(framework); err != nil {
		s.renderError(w, r, err)
		return
	}
	sf, err := s.supplierFrameworkFrom(r, framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	manifest, err := s.declarationManifest(framework.Slug)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if manifest.DeclarationStatus(sf.Declaration) != models.DeclarationComplete {
		s.renderError(w, r, apierrors.Validation("You must answer every question before making your declaration", nil))
		return
	}

	if _, err := s.api.CompleteDeclaration(r.Context(), sess.SupplierID, framework.Slug, sf.Declaration, sess.EmailAddress); err != nil {
		s.renderError(w, r, err)
		return
	}

	sess.AddFlash("You've made your supplier declaration", "success")
	s.saveSession(w, sess)
	http.Redirect(w, r, "/suppliers/frameworks/"+framework.Slug, http.StatusFound)
}

// DeclarationReuseForm offers to reuse a previous framework's declaration.
// When no previous declaration qualifies, the supplier is sent back to the
// overview.
func (s *Server) DeclarationReuseForm(w http.ResponseWriter, r *http.Request) {
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := requireOpenForEdits(framework); err != nil {
		s.renderError(w, r, err)
		return
	}
	if _, err := s.supplierFrameworkFrom(r, framework.Slug); err != nil {
		s.renderError(w, r, err)
		return
	}

	reusable, err := s.reusableDeclarationFramework(r, framework)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if reusable == nil {
		http.Redirect(w, r, "/suppliers/frameworks/"+framework.Slug+"/declaration", http.StatusFound)
		return
	}

	s.renderDeclarationReuse(w, r, framework, reusable, nil)
}

func (s *Server) renderDeclarationReuse(w http.ResponseWriter, r *http.Request, framework, reusable *models.Framework, errors map[string]string) {
	status := http.StatusOK
	if errors != nil {
		status = http.StatusBadRequest
	}
	s.render.Render(w, status, "frameworks/declaration_reuse", templates.Page{
		Title:   "Reuse a previous declaration",
		Session: sessionFrom(r),
		Errors:  errors,
		Data: map[string]interface{}{
			"Framework":          framework,
			"ReuseFrameworkSlug": reusable.Slug,
			"ReuseFrameworkName": reusable.Name,
		},
	})
}

// reusableDeclarationFramework finds the most recently closed framework that
// allows declaration reuse and where this supplier made a complete
// declaration.
func (s *Server) reusableDeclarationFramework(r *http.Request, current *models.Framework) (*models.Framework, error) {
	if !current.AllowDeclarationReuse {
		return nil, nil
	}
	frameworks, err := s.api.FindFrameworks(r.Context())
	if err != nil {
		return nil, err
	}

	var best *models.Framework
	for i := range frameworks {
		candidate := &frameworks[i]
		if candidate.Slug == current.Slug || !candidate.AllowDeclarationReuse {
			continue
		}
		sf, err := s.api.GetSupplierFramework(r.Context(), sessionFrom(r).SupplierID, candidate.Slug)
		if err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if sf.Declaration.Status() != models.DeclarationComplete {
			continue
		}
		if best == nil || candidate.ApplicationCloseDate.After(best.ApplicationCloseDate) {
			best = candidate
		}
	}
	return best, nil
}

// DeclarationReuseSubmit records whether to prefill from the old declaration
func (s *Server) DeclarationReuseSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	framework, err := s.frameworkFrom(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := requireOpenForEdits(framework); err != nil {
		s.renderError(w, r, err)
		return
	}
	if _, err := s.supplierFrameworkFrom(r, framework.Slug); err != nil {
		s.renderError(w, r, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, apierrors.Validation("could not parse form", nil))
		return
	}
	choice := r.PostFormValue("reuse")
	oldSlug := r.PostFormValue("old_framework_slug")
	if choice != "yes" && choice != "no" {
		reusable, err := s.reusableDeclarationFramework(r, framework)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		if reusable == nil {
			http.Redirect(w, r, "/suppliers/frameworks/"+framework.Slug+"/declaration", http.StatusFound)
			return
		}
		s.renderDeclarationReuse(w, r, framework, reusable,
			map[string]string{"reuse": "You need to answer this question."})
		return
	}

	prefillSlug := ""
	if choice == "yes" {
		if oldSlug == "" {
			s.renderError(w, r, apierrors.Validation("no declaration selected to reuse", nil))
			return
		}
		prefillSlug = oldSlug
	}
	if err := s.api.SetPrefillDeclaration(r.Context(), sess.SupplierID, framework.Slug, prefillSlug, sess.EmailAddress); err != nil {
		s.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, "/suppliers/frameworks/"+framework.Slug+"/declaration", http.StatusFound)
}
