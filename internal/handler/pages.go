package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/recipebox/internal/auth"
	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/model"
	"github.com/dukerupert/recipebox/internal/recipe"
	"github.com/dukerupert/recipebox/internal/websocket"
)

const (
	featuredCount = 6
	maxPage       = 10000
)

// PageHandler serves the HTML screens.
type PageHandler struct {
	recipes  *recipe.Repository
	gateway  *auth.Gateway
	provider *auth.Provider
	hub      *websocket.Hub
	rd       *Renderer
	logger   *slog.Logger
	pageSize int
}

func NewPageHandler(repo *recipe.Repository, gw *auth.Gateway, p *auth.Provider, hub *websocket.Hub, rd *Renderer, pageSize int, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		recipes:  repo,
		gateway:  gw,
		provider: p,
		hub:      hub,
		rd:       rd,
		logger:   logger,
		pageSize: pageSize,
	}
}

func (h *PageHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *PageHandler) notFound(w http.ResponseWriter, r *http.Request, msg string) {
	data := pageData(r, "Not found")
	data["Error"] = msg
	h.rd.render(w, http.StatusNotFound, "not_found", data)
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "RecipeShare")
	data["Categories"] = recipe.Categories

	featured, err := h.recipes.List(r.Context(), featuredCount, 0)
	if err != nil {
		h.logger.Warn("load featured recipes", "error", err)
		data["Error"] = err.Error()
	}
	data["Recipes"] = featured
	h.rd.render(w, http.StatusOK, "home", data)
}

// Browse lists public recipes page by page, or title matches when q is set.
func (h *PageHandler) Browse(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	page := min(max(intParam(r, "page", 1), 1), maxPage)

	data := pageData(r, "Browse recipes")
	data["Query"] = query
	data["Page"] = page

	var (
		recipes []model.Recipe
		err     error
	)
	if query != "" {
		data["Title"] = "Search: " + query
		recipes, err = h.recipes.Search(r.Context(), query, h.pageSize)
	} else {
		recipes, err = h.recipes.List(r.Context(), h.pageSize, (page-1)*h.pageSize)
		data["PrevPage"] = page - 1
		if len(recipes) == h.pageSize {
			data["NextPage"] = page + 1
		}
	}
	if err != nil {
		h.logger.Warn("browse recipes", "query", query, "error", err)
		data["Error"] = err.Error()
	}
	data["Recipes"] = recipes
	h.rd.render(w, http.StatusOK, "recipes", data)
}

func (h *PageHandler) Category(w http.ResponseWriter, r *http.Request) {
	c, ok := recipe.CategoryBySlug(r.PathValue("slug"))
	if !ok {
		h.notFound(w, r, "Category not found")
		return
	}

	data := pageData(r, c.Name)
	data["Category"] = c
	data["Categories"] = recipe.Categories
	recipes, err := h.recipes.ByCategory(r.Context(), c, h.pageSize)
	if err != nil {
		h.logger.Warn("category recipes", "category", c.Slug, "error", err)
		data["Error"] = err.Error()
	}
	data["Recipes"] = recipes
	h.rd.render(w, http.StatusOK, "category", data)
}

func (h *PageHandler) Detail(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recipes.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, backend.ErrNotFound) {
		h.notFound(w, r, "Recipe not found")
		return
	}
	if err != nil {
		h.logger.Warn("get recipe", "id", r.PathValue("id"), "error", err)
		data := pageData(r, "Recipe")
		data["Error"] = err.Error()
		h.rd.render(w, statusFor(err), "not_found", data)
		return
	}

	data := pageData(r, rec.Title)
	data["Recipe"] = rec
	data["IsOwner"] = auth.IsOwner(r.Context(), rec.UserID)
	h.rd.render(w, http.StatusOK, "recipe", data)
}

// DeleteRecipe removes one of the signed-in user's recipes. Ownership is
// enforced by the backend.
func (h *PageHandler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.recipes.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete recipe", "id", id, "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	h.broadcast(websocket.NewMessage(websocket.EntityRecipe, "deleted", id, nil))
	redirect(w, r, "/dashboard")
}

func (h *PageHandler) uploadData(r *http.Request, d *recipe.Draft) map[string]any {
	data := pageData(r, "Share a New Recipe")
	data["Draft"] = d
	data["Units"] = recipe.Units
	data["DietaryOptions"] = recipe.DietaryOptions
	data["Difficulties"] = model.Difficulties
	data["MealTypes"] = model.MealTypes
	return data
}

func (h *PageHandler) UploadForm(w http.ResponseWriter, r *http.Request) {
	h.rd.render(w, http.StatusOK, "upload", h.uploadData(r, recipe.NewDraft()))
}

// Upload handles both row edits and the final submit of the upload form.
// Row edits arrive as action=add_ingredient, remove_ingredient:<row id>,
// add_instruction or remove_instruction:<row id>.
func (h *PageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	d := recipe.DraftFromForm(r.PostForm)

	action := r.PostForm.Get("action")
	if action != "" && action != "submit" {
		switch {
		case action == "add_ingredient":
			d.AddIngredient()
		case action == "add_instruction":
			d.AddInstruction()
		case strings.HasPrefix(action, "remove_ingredient:"):
			d.RemoveIngredient(strings.TrimPrefix(action, "remove_ingredient:"))
		case strings.HasPrefix(action, "remove_instruction:"):
			d.RemoveInstruction(strings.TrimPrefix(action, "remove_instruction:"))
		}
		h.rd.render(w, http.StatusOK, "upload", h.uploadData(r, d))
		return
	}

	data := h.uploadData(r, d)
	userID := auth.UserID(r.Context())
	if userID == "" {
		data["Error"] = msgSignInToCreate
		h.rd.render(w, http.StatusUnauthorized, "upload", data)
		return
	}
	if err := d.Validate(); err != nil {
		data["Error"] = err.Error()
		h.rd.render(w, http.StatusBadRequest, "upload", data)
		return
	}

	rec, err := h.recipes.Create(r.Context(), d.ToRecipe(userID))
	if err != nil {
		h.logger.Warn("create recipe", "user_id", userID, "error", err)
		data["Error"] = createFailure(err)
		h.rd.render(w, statusFor(err), "upload", data)
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityRecipe, "created", rec.ID, map[string]any{"title": rec.Title}))
	redirect(w, r, "/dashboard")
}

// Dashboard verifies the stored token with the identity service before
// showing the user's profile, recipes and counts.
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := pageData(r, "Dashboard")

	user, err := h.gateway.CurrentUser(ctx)
	var ae *backend.AuthError
	switch {
	case errors.As(err, &ae):
		redirect(w, r, "/login")
		return
	case err != nil:
		h.logger.Warn("verify session", "error", err)
		data["Notice"] = "Could not reach the server to verify your session."
	case user == nil:
		redirect(w, r, "/login")
		return
	}

	userID := auth.UserID(ctx)
	if ac, _ := auth.FromContext(ctx); ac.Profile == nil {
		if err := h.provider.RefreshProfile(ctx); err != nil {
			h.logger.Warn("refresh profile", "user_id", userID, "error", err)
		}
		st := h.provider.State()
		data["Profile"] = st.Profile
		data["DisplayName"] = displayName(st.User, st.Profile)
	}

	recipes, err := h.recipes.ListByUser(ctx, userID)
	if err != nil {
		h.logger.Warn("list user recipes", "user_id", userID, "error", err)
		data["Error"] = err.Error()
	}
	data["Recipes"] = recipes

	stats, err := h.recipes.Stats(ctx, userID)
	if err != nil {
		h.logger.Warn("recipe stats", "user_id", userID, "error", err)
	}
	data["Stats"] = stats
	h.rd.render(w, http.StatusOK, "dashboard", data)
}

func (h *PageHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	upd := model.ProfileUpdate{
		Username: formString(r, "username"),
		FullName: formString(r, "full_name"),
		Bio:      formString(r, "bio"),
	}
	if upd.Username != nil && *upd.Username == "" {
		upd.Username = nil
	}

	if _, err := h.provider.UpdateProfile(r.Context(), upd); err != nil {
		h.logger.Warn("update profile", "user_id", auth.UserID(r.Context()), "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	redirect(w, r, "/dashboard")
}

// formString returns the trimmed field, or nil when the form omits it.
func formString(r *http.Request, name string) *string {
	if _, ok := r.PostForm[name]; !ok {
		return nil
	}
	v := strings.TrimSpace(r.PostForm.Get(name))
	return &v
}

func intParam(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return n
}
