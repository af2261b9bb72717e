package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/rajasatyajit/ResumeCore/internal/entitlement"
	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
)

const maxTransactionPage = 500

// userView is the admin representation of a user; the API key never leaves
type userView struct {
	models.User
	HasAPIKey  bool `json:"hasApiKey"`
	PayAsYouGo bool `json:"payAsYouGo"`
}

func newUserView(u models.User) userView {
	return userView{User: u, HasAPIKey: u.HasAPIKey(), PayAsYouGo: plans.IsPayAsYouGo(u)}
}

func (h *Handler) adminGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Guard.CurrentUser(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, newUserView(u))
}

// adminListTransactions returns the newest ledger entries, ?limit=N (default 50)
func (h *Handler) adminListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxTransactionPage {
			h.writeErrorResponse(w, r, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	u, err := h.Guard.CurrentUser(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	txs, err := h.Ledger.History(r.Context(), u.ID, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.CreditTransaction{}
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"data":    txs,
		"count":   len(txs),
		"credits": u.Credits,
	})
}

// adminEntitlements reports affordability of ?cost=N and the AI config the
// user would run with
func (h *Handler) adminEntitlements(w http.ResponseWriter, r *http.Request) {
	var cost int64
	if s := r.URL.Query().Get("cost"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			h.writeErrorResponse(w, r, http.StatusBadRequest, "cost must be a non-negative integer")
			return
		}
		cost = n
	}
	u, err := h.Guard.CurrentUser(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{
		"plan":       u.Plan,
		"credits":    u.Credits,
		"payAsYouGo": plans.IsPayAsYouGo(u),
		"cost":       cost,
		"canAfford":  entitlement.CheckAffordable(u, cost) == nil,
	}
	cfg, err := h.Guard.ResolveAIConfig(entitlement.AIRequest{User: &u})
	if err != nil {
		resp["aiError"] = err.Error()
	} else {
		resp["ai"] = map[string]any{"provider": cfg.Provider, "model": cfg.Model, "hasApiKey": cfg.APIKey != ""}
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

type grantRequest struct {
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	RelatedID string `json:"relatedId"`
}

func (h *Handler) adminGrant(w http.ResponseWriter, r *http.Request) {
	var body grantRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	reason := models.ReasonAdminGrant
	if body.Reason != "" {
		reason = models.ChargeReason(strings.TrimSpace(body.Reason))
	}
	u, err := h.Guard.CurrentUser(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	updated, entry, err := h.Ledger.Grant(r.Context(), u.ID, body.Amount, reason, body.RelatedID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	logger.WithContext(r.Context()).Info("credits granted",
		"user_id", u.ID, "amount", body.Amount, "reason", reason, "credits", updated.Credits)
	h.writeJSONResponse(w, http.StatusCreated, map[string]any{
		"user":        newUserView(updated),
		"transaction": entry,
	})
}

func (h *Handler) adminSetAI(w http.ResponseWriter, r *http.Request) {
	var body models.AIOverrides
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	body.Model = strings.TrimSpace(body.Model)
	body.APIKey = strings.TrimSpace(body.APIKey)
	if body.Provider != "" && !h.Guard.SupportsProvider(body.Provider) {
		h.writeDomainError(w, r, apperrors.ValidationError{Field: "provider", Message: "unsupported provider " + body.Provider})
		return
	}
	u, err := h.Guard.CurrentUser(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	updated, err := h.Store.SetAIOverrides(r.Context(), u.ID, body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if updated.Plan != models.PlanLegend {
		logger.WithContext(r.Context()).Info("AI overrides stored for non-legend user; ignored until upgrade", "user_id", u.ID, "plan", updated.Plan)
	}
	h.writeJSONResponse(w, http.StatusOK, newUserView(updated))
}

func (h *Handler) adminResolvePlan(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"productId": productID,
		"plan":      h.Resolver.ResolvePlan(productID),
		"timestamp": time.Now().UTC(),
	})
}
