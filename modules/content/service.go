package content

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lingokit/backend/core"
	"github.com/lingokit/backend/pkg/identity"
	"github.com/lingokit/backend/pkg/logger"
	"github.com/lingokit/backend/pkg/subscription"
)

// Responder produces chat replies about the user's materials. The
// production implementation talks to an LLM; the module only gates access
// and delegates.
type Responder interface {
	Respond(ctx context.Context, userID uuid.UUID, message string) (string, error)
}

// Service exposes material upload, quiz generation and tutor chat, each
// gated by the entitlement engine.
type Service struct {
	store      Store
	engine     *subscription.Engine
	responder  Responder
	extractor  Extractor
	upgradeURL string
	log        *slog.Logger
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithResponder injects the chat backend. Without one the chat endpoint
// answers 501 after the access check.
func WithResponder(r Responder) Option {
	return func(s *Service) {
		if r != nil {
			s.responder = r
		}
	}
}

// WithExtractor injects the vocabulary extraction backend. Without one
// the card extraction endpoint answers 501 after the ownership check.
func WithExtractor(e Extractor) Option {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the content module. The upgrade URL is advertised in
// quota denial payloads so clients can route straight to checkout.
// Panics on nil store or engine.
func NewService(store Store, engine *subscription.Engine, upgradeURL string, opts ...Option) *Service {
	if store == nil {
		panic("content: store is required")
	}
	if engine == nil {
		panic("content: subscription engine is required")
	}

	s := &Service{
		store:      store,
		engine:     engine,
		upgradeURL: upgradeURL,
		log:        slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle returns the module's router. Every route requires an
// authenticated principal.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(identity.Middleware)

	r.Get("/materials", s.handleListMaterials)
	r.Post("/materials", s.handleCreateMaterial)
	r.Get("/materials/{materialID}", s.handleGetMaterial)
	r.Delete("/materials/{materialID}", s.handleDeleteMaterial)
	r.Get("/materials/{materialID}/quizzes", s.handleListQuizzes)
	r.Post("/materials/{materialID}/quizzes", s.handleCreateQuiz)
	r.Post("/materials/{materialID}/cards", s.handleExtractCards)
	r.Get("/cards", s.handleListCards)
	r.Get("/cards/review", s.handleDueCards)
	r.Get("/cards/stats", s.handleCardStats)
	r.Post("/cards/{cardID}/review", s.handleReviewCard)
	r.Post("/chat", s.handleChat)

	return r
}

// quotaDenial is the 403 body for exhausted quotas. The code field is the
// client's switch key; upgrade_url routes free users to checkout.
type quotaDenial struct {
	Detail     string            `json:"detail"`
	Code       string            `json:"code"`
	Used       int               `json:"used"`
	Limit      int               `json:"limit"`
	Tier       subscription.Tier `json:"tier"`
	UpgradeURL string            `json:"upgrade_url"`
}

func (s *Service) writeQuotaDenial(w http.ResponseWriter, code, detail string, q subscription.Quota, tier subscription.Tier) {
	_ = core.WriteJSON(w, http.StatusForbidden, quotaDenial{
		Detail:     detail,
		Code:       code,
		Used:       q.Used,
		Limit:      q.Limit,
		Tier:       tier,
		UpgradeURL: s.upgradeURL,
	})
}

type createMaterialRequest struct {
	Title    string `json:"title"`
	Language string `json:"language"`
}

func (s *Service) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	var req createMaterialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		verr := core.NewValidationError()
		verr.Add("title", "Title is required")
		_ = core.WriteError(w, verr)
		return
	}

	quota, err := s.engine.CheckUploadLimit(ctx, principal.UserID)
	if err != nil {
		s.log.ErrorContext(ctx, "upload limit check failed",
			logger.UserID(principal.UserID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}
	if !quota.Allowed {
		info, err := s.engine.Status(ctx, principal.UserID)
		if err != nil {
			_ = core.WriteError(w, err)
			return
		}
		s.writeQuotaDenial(w, "upload_limit_reached",
			"Weekly upload limit reached", quota, info.Tier)
		return
	}

	m := &Material{
		ID:        uuid.New(),
		UserID:    principal.UserID,
		Title:     req.Title,
		Language:  req.Language,
		Status:    MaterialPending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateMaterial(ctx, m); err != nil {
		s.log.ErrorContext(ctx, "material creation failed",
			logger.UserID(principal.UserID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	// The slot is consumed only after the material exists, so a failed
	// insert does not burn quota.
	if err := s.engine.IncrementUpload(ctx, principal.UserID); err != nil {
		s.log.ErrorContext(ctx, "upload counter increment failed",
			logger.UserID(principal.UserID), logger.MaterialID(m.ID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusCreated, m)
}

func (s *Service) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	materials, err := s.store.ListMaterials(ctx, principal.UserID)
	if err != nil {
		s.log.ErrorContext(ctx, "material listing failed",
			logger.UserID(principal.UserID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}
	if materials == nil {
		materials = []*Material{}
	}

	_ = core.WriteJSON(w, http.StatusOK, materials)
}

func (s *Service) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid material ID")
		return
	}

	m, err := s.store.GetMaterial(ctx, principal.UserID, materialID)
	if err != nil {
		if errors.Is(err, ErrMaterialNotFound) {
			_ = core.WriteErrorDetail(w, core.ErrNotFound, "Material not found")
			return
		}
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, m)
}

// handleDeleteMaterial removes the material and its quizzes. The consumed
// upload slot stays consumed: deleting does not refund weekly quota.
func (s *Service) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid material ID")
		return
	}

	if err := s.store.DeleteMaterial(ctx, principal.UserID, materialID); err != nil {
		if errors.Is(err, ErrMaterialNotFound) {
			_ = core.WriteErrorDetail(w, core.ErrNotFound, "Material not found")
			return
		}
		s.log.ErrorContext(ctx, "material deletion failed",
			logger.UserID(principal.UserID), logger.MaterialID(materialID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createQuizRequest struct {
	Title string `json:"title"`
}

func (s *Service) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid material ID")
		return
	}

	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid JSON body")
		return
	}

	material, err := s.store.GetMaterial(ctx, principal.UserID, materialID)
	if err != nil {
		if errors.Is(err, ErrMaterialNotFound) {
			_ = core.WriteErrorDetail(w, core.ErrNotFound, "Material not found")
			return
		}
		s.log.ErrorContext(ctx, "material lookup failed",
			logger.UserID(principal.UserID), logger.MaterialID(materialID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	quota, err := s.engine.CheckQuizLimit(ctx, principal.UserID, material.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "quiz limit check failed",
			logger.UserID(principal.UserID), logger.MaterialID(material.ID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}
	if !quota.Allowed {
		info, err := s.engine.Status(ctx, principal.UserID)
		if err != nil {
			_ = core.WriteError(w, err)
			return
		}
		s.writeQuotaDenial(w, "quiz_limit_reached",
			"Quiz limit for this material reached", quota, info.Tier)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = material.Title + " quiz"
	}

	q := &Quiz{
		ID:         uuid.New(),
		MaterialID: material.ID,
		Title:      title,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateQuiz(ctx, q); err != nil {
		s.log.ErrorContext(ctx, "quiz creation failed",
			logger.UserID(principal.UserID), logger.MaterialID(material.ID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}
	if err := s.engine.IncrementQuizCount(ctx, material.ID); err != nil {
		s.log.ErrorContext(ctx, "quiz counter increment failed",
			logger.MaterialID(material.ID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusCreated, q)
}

func (s *Service) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid material ID")
		return
	}

	if _, err := s.store.GetMaterial(ctx, principal.UserID, materialID); err != nil {
		if errors.Is(err, ErrMaterialNotFound) {
			_ = core.WriteErrorDetail(w, core.ErrNotFound, "Material not found")
			return
		}
		_ = core.WriteError(w, err)
		return
	}

	quizzes, err := s.store.ListQuizzes(ctx, materialID)
	if err != nil {
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, quizzes)
}

// handleExtractCards runs the vocabulary pipeline for a material and
// stores the result as new flashcards, due immediately.
func (s *Service) handleExtractCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid material ID")
		return
	}

	material, err := s.store.GetMaterial(ctx, principal.UserID, materialID)
	if err != nil {
		if errors.Is(err, ErrMaterialNotFound) {
			_ = core.WriteErrorDetail(w, core.ErrNotFound, "Material not found")
			return
		}
		_ = core.WriteError(w, err)
		return
	}

	if s.extractor == nil {
		_ = core.WriteErrorDetail(w, core.ErrNotImplemented, "Vocabulary extraction is not configured")
		return
	}

	drafts, err := s.extractor.Extract(ctx, material)
	if err != nil {
		s.log.ErrorContext(ctx, "vocabulary extraction failed",
			logger.UserID(principal.UserID), logger.MaterialID(material.ID), logger.Error(err))
		_ = core.WriteErrorDetail(w, core.ErrBadGateway, "Vocabulary extraction unavailable")
		return
	}

	now := s.now()
	cards := make([]*Card, 0, len(drafts))
	for _, d := range drafts {
		cards = append(cards, &Card{
			ID:              uuid.New(),
			MaterialID:      material.ID,
			UserID:          principal.UserID,
			Term:            d.Term,
			Translation:     d.Translation,
			Definition:      d.Definition,
			ContextSentence: d.ContextSentence,
			GrammarNote:     d.GrammarNote,
			LearningStage:   0,
			NextReviewAt:    now,
			CreatedAt:       now,
		})
	}
	if err := s.store.CreateCards(ctx, cards); err != nil {
		s.log.ErrorContext(ctx, "flashcard creation failed",
			logger.UserID(principal.UserID), logger.MaterialID(material.ID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusCreated, cards)
}

func (s *Service) handleListCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	var materialID *uuid.UUID
	if raw := r.URL.Query().Get("material_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid material ID")
			return
		}
		materialID = &id
	}

	cards, err := s.store.ListCards(ctx, principal.UserID, materialID)
	if err != nil {
		_ = core.WriteError(w, err)
		return
	}
	if cards == nil {
		cards = []*Card{}
	}

	_ = core.WriteJSON(w, http.StatusOK, cards)
}

const defaultReviewBatch = 20

func (s *Service) handleDueCards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	limit := defaultReviewBatch
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	cards, err := s.store.DueCards(ctx, principal.UserID, s.now(), limit)
	if err != nil {
		_ = core.WriteError(w, err)
		return
	}
	if cards == nil {
		cards = []*Card{}
	}

	_ = core.WriteJSON(w, http.StatusOK, cards)
}

type reviewRequest struct {
	Quality ReviewQuality `json:"quality"`
}

type reviewResponse struct {
	ID            uuid.UUID `json:"id"`
	LearningStage int       `json:"learning_stage"`
	NextReviewAt  time.Time `json:"next_review_at"`
}

func (s *Service) handleReviewCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid card ID")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid JSON body")
		return
	}
	if !req.Quality.Valid() {
		verr := core.NewValidationError()
		verr.Add("quality", "Quality must be one of: forgot, know")
		_ = core.WriteError(w, verr)
		return
	}

	card, err := s.store.GetCard(ctx, principal.UserID, cardID)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			_ = core.WriteErrorDetail(w, core.ErrNotFound, "Flashcard not found")
			return
		}
		_ = core.WriteError(w, err)
		return
	}

	stage, nextReview := NextReview(card.LearningStage, req.Quality, s.now())
	if err := s.store.UpdateCardReview(ctx, principal.UserID, card.ID, stage, nextReview); err != nil {
		s.log.ErrorContext(ctx, "flashcard review update failed",
			logger.UserID(principal.UserID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, reviewResponse{
		ID:            card.ID,
		LearningStage: stage,
		NextReviewAt:  nextReview,
	})
}

func (s *Service) handleCardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	stats, err := s.store.CardStats(ctx, principal.UserID, s.now())
	if err != nil {
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, stats)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := identity.FromContext(ctx)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		verr := core.NewValidationError()
		verr.Add("message", "Message is required")
		_ = core.WriteError(w, verr)
		return
	}

	allowed, err := s.engine.CheckChatAccess(ctx, principal.UserID)
	if err != nil {
		s.log.ErrorContext(ctx, "chat access check failed",
			logger.UserID(principal.UserID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}
	if !allowed {
		info, err := s.engine.Status(ctx, principal.UserID)
		if err != nil {
			_ = core.WriteError(w, err)
			return
		}
		s.writeQuotaDenial(w, "chat_requires_pro",
			"Tutor chat is available on the pro plan", subscription.Quota{}, info.Tier)
		return
	}

	if s.responder == nil {
		_ = core.WriteErrorDetail(w, core.ErrNotImplemented, "Chat backend is not configured")
		return
	}

	reply, err := s.responder.Respond(ctx, principal.UserID, req.Message)
	if err != nil {
		s.log.ErrorContext(ctx, "chat response failed",
			logger.UserID(principal.UserID), logger.Error(err))
		_ = core.WriteErrorDetail(w, core.ErrBadGateway, "Chat backend unavailable")
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, chatResponse{Reply: reply})
}
