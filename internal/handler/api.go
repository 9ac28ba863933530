package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/recipebox/internal/auth"
	"github.com/dukerupert/recipebox/internal/model"
	"github.com/dukerupert/recipebox/internal/recipe"
	"github.com/dukerupert/recipebox/internal/websocket"
)

const maxAPILimit = 100

// APIHandler is the JSON mirror of the screens.
type APIHandler struct {
	recipes  *recipe.Repository
	provider *auth.Provider
	hub      *websocket.Hub
	logger   *slog.Logger
	pageSize int
}

func NewAPIHandler(repo *recipe.Repository, p *auth.Provider, hub *websocket.Hub, pageSize int, logger *slog.Logger) *APIHandler {
	return &APIHandler{recipes: repo, provider: p, hub: hub, logger: logger, pageSize: pageSize}
}

func (h *APIHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *APIHandler) limit(r *http.Request) int {
	return min(max(intParam(r, "limit", h.pageSize), 1), maxAPILimit)
}

type sessionResponse struct {
	Status    string         `json:"status"`
	User      *model.User    `json:"user"`
	Profile   *model.Profile `json:"profile"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// Session reports the provider's current state.
func (h *APIHandler) Session(w http.ResponseWriter, r *http.Request) {
	st := h.provider.Current(r.Context())
	resp := sessionResponse{Status: st.Status.String(), User: st.User, Profile: st.Profile}
	if st.Session != nil && st.Session.ExpiresAt != nil {
		t := time.Unix(*st.Session.ExpiresAt, 0).UTC()
		resp.ExpiresAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.List(r.Context(), h.limit(r), max(intParam(r, "offset", 0), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *APIHandler) SearchRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.Search(r.Context(), r.URL.Query().Get("q"), h.limit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *APIHandler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recipes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *APIHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	var rec model.Recipe
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if rec.UserID == "" {
		rec.UserID = auth.UserID(r.Context())
	}

	created, err := h.recipes.Create(r.Context(), &rec)
	if err != nil {
		h.logger.Info("create recipe", "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityRecipe, "created", created.ID, map[string]any{"title": created.Title}))
	writeJSON(w, http.StatusCreated, created)
}

func (h *APIHandler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	var upd model.RecipeUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	id := r.PathValue("id")
	rec, err := h.recipes.Update(r.Context(), id, upd)
	if err != nil {
		h.logger.Info("update recipe", "id", id, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityRecipe, "updated", rec.ID, nil))
	writeJSON(w, http.StatusOK, rec)
}

func (h *APIHandler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.recipes.Delete(r.Context(), id); err != nil {
		h.logger.Info("delete recipe", "id", id, "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityRecipe, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) MyRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *APIHandler) MyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recipes.Stats(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	prof, err := h.provider.UpdateProfile(r.Context(), upd)
	if err != nil {
		h.logger.Info("update profile", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}
