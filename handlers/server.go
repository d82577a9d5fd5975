// Package handlers implements the supplier-facing HTTP routes: framework
// applications and dashboards, declarations, agreement signing, contract
// variations and brief responses.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/risicle/digitalmarketplace-supplier-frontend/content"
	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/documents"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/notify"
	"github.com/risicle/digitalmarketplace-supplier-frontend/session"
	"github.com/risicle/digitalmarketplace-supplier-frontend/templates"
)

// DataAPI is the data API surface the handlers depend on
type DataAPI interface {
	GetFramework(ctx context.Context, slug string) (*models.Framework, error)
	FindFrameworks(ctx context.Context) ([]models.Framework, error)
	GetSupplierFramework(ctx context.Context, supplierID int, slug string) (*models.SupplierFramework, error)
	RegisterFrameworkInterest(ctx context.Context, supplierID int, slug, userEmail string) (*models.SupplierFramework, error)
	SetPrefillDeclaration(ctx context.Context, supplierID int, slug, prefillSlug, userEmail string) error
	GetSupplierDeclaration(ctx context.Context, supplierID int, slug string) (models.Declaration, error)
	UpdateSupplierDeclaration(ctx context.Context, supplierID int, slug string, declaration models.Declaration, userEmail string) (models.Declaration, error)
	CompleteDeclaration(ctx context.Context, supplierID int, slug string, declaration models.Declaration, userEmail string) (models.Declaration, error)
	CreateFrameworkAgreement(ctx context.Context, supplierID int, slug, userEmail string) (*models.FrameworkAgreement, error)
	GetFrameworkAgreement(ctx context.Context, agreementID int) (*models.FrameworkAgreement, error)
	UpdateFrameworkAgreement(ctx context.Context, agreementID int, fields map[string]interface{}, userEmail string) error
	SignFrameworkAgreement(ctx context.Context, agreementID, userID int, userEmail string) (*models.FrameworkAgreement, error)
	AgreeFrameworkVariation(ctx context.Context, supplierID int, slug, variationID string, userID int, userEmail string) (*models.AgreedVariation, error)
	GetBrief(ctx context.Context, briefID int) (*models.Brief, error)
	FindBriefResponses(ctx context.Context, briefID, supplierID int) ([]models.BriefResponse, error)
	CreateBriefResponse(ctx context.Context, briefID, supplierID int, data map[string]interface{}, userEmail string) (*models.BriefResponse, error)
	SubmitBriefResponse(ctx context.Context, briefResponseID int, userEmail string) (*models.BriefResponse, error)
	FindServices(ctx context.Context, supplierID int, frameworkSlug, lotSlug, role string) ([]models.Service, error)
	FindDraftServices(ctx context.Context, supplierID int, frameworkSlug string) ([]models.DraftService, error)
	CreateAuditEvent(ctx context.Context, auditType, user string, data map[string]interface{}, objectType, objectID string) error
}

// Mailer sends transactional email
type Mailer interface {
	Send(ctx context.Context, email notify.Email) error
}

// Store persists supplier documents
type Store interface {
	Save(ctx context.Context, key string, data []byte, contentType, downloadFilename string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]documents.Object, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Options configures a Server
type Options struct {
	DataAPI            DataAPI
	Mailer             Mailer
	Store              Store
	Sessions           *session.Manager
	Renderer           *templates.Renderer
	Content            *content.Loader
	ClarificationEmail string
	FollowUpEmail      string
	ContractVariations bool
}

// Server holds the handler dependencies
type Server struct {
	api                DataAPI
	mailer             Mailer
	store              Store
	sessions           *session.Manager
	render             *templates.Renderer
	content            *content.Loader
	clarificationEmail string
	followUpEmail      string
	contractVariations bool
}

// NewServer creates a new server
func NewServer(opts Options) *Server {
	followUp := opts.FollowUpEmail
	if followUp == "" {
		followUp = opts.ClarificationEmail
	}
	return &Server{
		api:                opts.DataAPI,
		mailer:             opts.Mailer,
		store:              opts.Store,
		sessions:           opts.Sessions,
		render:             opts.Renderer,
		content:            opts.Content,
		clarificationEmail: opts.ClarificationEmail,
		followUpEmail:      followUp,
		contractVariations: opts.ContractVariations,
	}
}

// Routes mounts all supplier routes on a chi router
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.Health)

	r.Route("/suppliers", func(r chi.Router) {
		r.Use(s.requireSupplier)

		r.Route("/opportunities/{briefID}", func(r chi.Router) {
			r.Get("/question-and-answer-session", s.QuestionAndAnswerSession)
			r.Get("/ask-a-question", s.BriefClarificationQuestionForm)
			r.Post("/ask-a-question", s.BriefClarificationQuestionSubmit)
			r.Get("/responses/start", s.BriefResponseStart)
			r.Post("/responses/start", s.BriefResponseStartSubmit)
			r.Get("/responses/create", s.BriefResponseForm)
			r.Post("/responses/create", s.BriefResponseSubmit)
			r.Get("/responses/result", s.BriefResponseResult)
		})

		r.Route("/frameworks/{frameworkSlug}", func(r chi.Router) {
			r.Get("/", s.FrameworkDashboard)
			r.Post("/", s.StartFrameworkApplication)
			r.Get("/updates", s.FrameworkUpdates)
			r.Post("/updates", s.FrameworkClarificationSubmit)
			r.Get("/declaration", s.DeclarationOverview)
			r.Post("/declaration", s.MakeDeclaration)
			r.Get("/declaration/reuse", s.DeclarationReuseForm)
			r.Post("/declaration/reuse", s.DeclarationReuseSubmit)
			r.Get("/declaration/edit/{sectionID}", s.DeclarationSectionForm)
			r.Post("/declaration/edit/{sectionID}", s.DeclarationSectionSubmit)
			r.Post("/agreement", s.CreateAgreement)
			r.Get("/{agreementID}/signer-details", s.SignerDetailsForm)
			r.Post("/{agreementID}/signer-details", s.SignerDetailsSubmit)
			r.Get("/{agreementID}/signature-upload", s.SignatureUploadForm)
			r.Post("/{agreementID}/signature-upload", s.SignatureUploadSubmit)
			r.Get("/{agreementID}/contract-review", s.ContractReviewForm)
			r.Post("/{agreementID}/contract-review", s.ContractReviewSubmit)
			r.Get("/contract-variation/{variationID}", s.ContractVariation)
			r.Post("/contract-variation/{variationID}", s.ContractVariationAccept)
		})
	})
}

// Health reports liveness
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status": "ok"}`))
}

type sessionKey struct{}

// requireSupplier loads the session and rejects unauthenticated or
// non-supplier users by redirecting to login.
func (s *Server) requireSupplier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessions.Load(r)
		if !sess.Authenticated() || sess.SupplierID == 0 {
			http.Redirect(w, r, "/user/login?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the authenticated session stored by requireSupplier
func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*session.Session)
	if sess == nil {
		sess = &session.Session{}
	}
	return sess
}

// saveSession persists session changes before the response body is written
func (s *Server) saveSession(w http.ResponseWriter, sess *session.Session) {
	if err := s.sessions.Save(w, sess); err != nil {
		slog.Error("failed to save session", "error", err)
	}
}

// renderError maps an error onto the right error page. Upstream statuses
// pass through unchanged.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierrors.StatusOf(err)

	heading := "Sorry, we're experiencing technical difficulties"
	message := "Try again later."
	showRetry := false
	switch status {
	case http.StatusBadRequest:
		heading = "There was a problem with your request"
		message = "Check what you entered and try again."
	case http.StatusNotFound:
		heading = "Page could not be found"
		message = "Check you've entered the correct web address."
	case http.StatusGone:
		heading = "The page you were looking for is no longer available"
		message = "This framework is closed, so this page can no longer be used."
	case http.StatusServiceUnavailable:
		heading = "Sorry, we're experiencing technical difficulties"
		message = "We couldn't complete your request."
		showRetry = true
	}

	if status >= 500 {
		slog.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.Info("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	s.render.Render(w, status, "error", templates.Page{
		Title:   heading,
		Session: sessionFrom(r),
		Data: map[string]interface{}{
			"Heading":   heading,
			"Message":   message,
			"ShowRetry": showRetry,
		},
	})
}

// audit records an audit event, logging rather than failing on error
func (s *Server) audit(ctx context.Context, auditType, user string, data map[string]interface{}, objectType, objectID string) {
	if err := s.api.CreateAuditEvent(ctx, auditType, user, data, objectType, objectID); err != nil {
		slog.Warn("failed to create audit event", "type", auditType, "error", err)
	}
}
