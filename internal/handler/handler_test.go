package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/recipebox/internal/auth"
	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/backend/backendtest"
	"github.com/dukerupert/recipebox/internal/database"
	"github.com/dukerupert/recipebox/internal/events"
	"github.com/dukerupert/recipebox/internal/logging"
	"github.com/dukerupert/recipebox/internal/middleware"
	"github.com/dukerupert/recipebox/internal/model"
	"github.com/dukerupert/recipebox/internal/profile"
	"github.com/dukerupert/recipebox/internal/recipe"
	"github.com/dukerupert/recipebox/internal/store"
	"github.com/dukerupert/recipebox/internal/websocket"
)

const testPageSize = 2

type testEnv struct {
	srv      *backendtest.Server
	gateway  *auth.Gateway
	provider *auth.Provider
	hub      *websocket.Hub
	pages    *PageHandler
	auth     *AuthHandler
	api      *APIHandler
}

func setup(t *testing.T, opts ...backendtest.Option) *testEnv {
	t.Helper()
	srv := backendtest.NewServer(opts...)
	t.Cleanup(srv.Close)

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logging.Discard()
	sessions := store.NewSessionStore(store.NewStateStore(db), logger)
	client := backend.New(srv.URL, backendtest.AnonKey,
		backend.WithLogger(logger),
		backend.WithTokenSource(sessions.AccessToken),
	)
	bus := events.NewBus(logger)
	gw := auth.NewGateway(client, sessions, bus, logger)
	provider := auth.NewProvider(gw, sessions, profile.NewResolver(client, logger), bus, client, logger)
	provider.Start(context.Background())
	t.Cleanup(provider.Close)

	repo := recipe.NewRepository(client, sessions, logger)
	hub := websocket.NewHub(logger)
	rd := MustRenderer(logger)

	return &testEnv{
		srv:      srv,
		gateway:  gw,
		provider: provider,
		hub:      hub,
		pages:    NewPageHandler(repo, gw, provider, hub, rd, testPageSize, logger),
		auth:     NewAuthHandler(gw, provider, rd, logger),
		api:      NewAPIHandler(repo, provider, hub, testPageSize, logger),
	}
}

// signIn registers a confirmed account and signs it in through the gateway.
func (e *testEnv) signIn(t *testing.T) model.User {
	t.Helper()
	u := e.srv.AddUser("cook@example.com", "secret", model.UserMetadata{Username: "chef", FullName: "Chef Cook"})
	if _, err := e.gateway.SignIn(context.Background(), "cook@example.com", "secret"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if !e.provider.State().Authenticated() {
		t.Fatal("provider not authenticated after sign in")
	}
	return u
}

// serve runs h behind LoadAuth, or RequireAuth when protected is set.
func (e *testEnv) serve(h http.HandlerFunc, req *http.Request, protected bool) *httptest.ResponseRecorder {
	wrap := middleware.LoadAuth(e.provider)
	if protected {
		wrap = middleware.RequireAuth(e.provider)
	}
	rec := httptest.NewRecorder()
	wrap(h).ServeHTTP(rec, req)
	return rec
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(method, target string, v any) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(method, target, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func seedRecipe(srv *backendtest.Server, userID, title string, public bool, extra map[string]any) map[string]any {
	row := map[string]any{
		"user_id":              userID,
		"title":                title,
		"is_public":            public,
		"dietary_restrictions": []string{},
		"ingredients":          []map[string]string{{"amount": "1", "unit": "cup", "name": "flour"}},
		"instructions":         []map[string]any{{"step": 1, "description": "Mix."}},
	}
	for k, v := range extra {
		row[k] = v
	}
	return srv.Seed("recipes", row)
}

func validForm() url.Values {
	return url.Values{
		"title":                   {"Pancakes"},
		"description":             {"Fluffy"},
		"prep_time":               {"5"},
		"cook_time":               {"10"},
		"difficulty":              {"easy"},
		"meal_type":               {"breakfast"},
		"dietary_restrictions":    {"Vegetarian"},
		"ingredient_id":           {"a"},
		"ingredient_amount":       {"2"},
		"ingredient_unit":         {"cups"},
		"ingredient_name":         {"flour"},
		"instruction_id":          {"s"},
		"instruction_description": {"Whisk and fry."},
		"is_public":               {"true"},
		"action":                  {"submit"},
	}
}

func TestHomeShowsCategoriesAndFeatured(t *testing.T) {
	env := setup(t)
	seedRecipe(env.srv, "u1", "Public Pie", true, nil)
	seedRecipe(env.srv, "u1", "Secret Stew", false, nil)

	rec := env.serve(env.pages.Home, httptest.NewRequest("GET", "/", nil), false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Public Pie", "/category/quick-meals", "Sign in"} {
		if !strings.Contains(body, want) {
			t.Errorf("home page missing %q", want)
		}
	}
	if strings.Contains(body, "Secret Stew") {
		t.Error("home page shows a private recipe")
	}
}

func TestBrowsePagesAndSearches(t *testing.T) {
	env := setup(t)
	seedRecipe(env.srv, "u1", "Apple Tart", true, nil)
	seedRecipe(env.srv, "u1", "Banana Bread", true, nil)
	seedRecipe(env.srv, "u1", "Cherry Pie", true, nil)

	rec := env.serve(env.pages.Browse, httptest.NewRequest("GET", "/recipes", nil), false)
	body := rec.Body.String()
	if !strings.Contains(body, "Cherry Pie") || !strings.Contains(body, "Banana Bread") {
		t.Error("first page missing newest recipes")
	}
	if strings.Contains(body, "Apple Tart") {
		t.Error("first page shows a recipe from page 2")
	}
	if !strings.Contains(body, "/recipes?page=2") {
		t.Error("first page has no next link")
	}

	rec = env.serve(env.pages.Browse, httptest.NewRequest("GET", "/recipes?page=2", nil), false)
	if !strings.Contains(rec.Body.String(), "Apple Tart") {
		t.Error("second page missing oldest recipe")
	}

	rec = env.serve(env.pages.Browse, httptest.NewRequest("GET", "/recipes?q=bread", nil), false)
	body = rec.Body.String()
	if !strings.Contains(body, "Banana Bread") || strings.Contains(body, "Cherry Pie") {
		t.Errorf("search results wrong:\n%s", body)
	}
}

func TestBrowseClampsHugePage(t *testing.T) {
	env := setup(t)
	seedRecipe(env.srv, "u1", "Apple Tart", true, nil)

	rec := env.serve(env.pages.Browse, httptest.NewRequest("GET", "/recipes?page=9223372036854775807", nil), false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "alert-error") {
		t.Errorf("huge page reached the backend with a bad offset:\n%s", rec.Body.String())
	}
}

func TestCategory(t *testing.T) {
	env := setup(t)
	seedRecipe(env.srv, "u1", "Quick Salad", true, map[string]any{"prep_time": 10, "cook_time": 0})
	seedRecipe(env.srv, "u1", "Slow Roast", true, map[string]any{"prep_time": 20, "cook_time": 180})

	req := httptest.NewRequest("GET", "/category/quick-meals", nil)
	req.SetPathValue("slug", "quick-meals")
	rec := env.serve(env.pages.Category, req, false)

	body := rec.Body.String()
	if !strings.Contains(body, "Quick Salad") || strings.Contains(body, "Slow Roast") {
		t.Errorf("quick meals page wrong:\n%s", body)
	}

	req = httptest.NewRequest("GET", "/category/brunch", nil)
	req.SetPathValue("slug", "brunch")
	if rec := env.serve(env.pages.Category, req, false); rec.Code != http.StatusNotFound {
		t.Errorf("unknown category status = %d, want 404", rec.Code)
	}
}

func TestDetailShowsDeleteOnlyToOwner(t *testing.T) {
	env := setup(t)
	u := env.signIn(t)
	mine := seedRecipe(env.srv, u.ID, "My Soup", true, nil)
	theirs := seedRecipe(env.srv, "someone-else", "Their Soup", true, nil)

	detail := func(id string) string {
		req := httptest.NewRequest("GET", "/recipes/"+id, nil)
		req.SetPathValue("id", id)
		rec := env.serve(env.pages.Detail, req, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("detail status = %d, want 200", rec.Code)
		}
		return rec.Body.String()
	}

	if body := detail(mine["id"].(string)); !strings.Contains(body, "Delete recipe") {
		t.Error("owner does not see delete")
	}
	if body := detail(theirs["id"].(string)); strings.Contains(body, "Delete recipe") {
		t.Error("non-owner sees delete")
	}
}

func TestDetailMissingRecipe(t *testing.T) {
	env := setup(t)
	req := httptest.NewRequest("GET", "/recipes/nope", nil)
	req.SetPathValue("id", "nope")

	rec := env.serve(env.pages.Detail, req, false)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Recipe not found") {
		t.Error("missing not found message")
	}
}

func TestUploadRowActions(t *testing.T) {
	env := setup(t)
	env.signIn(t)

	form := validForm()
	form.Set("action", "add_ingredient")
	rec := env.serve(env.pages.Upload, formRequest("/upload", form), true)
	if got := strings.Count(rec.Body.String(), `name="ingredient_name"`); got != 2 {
		t.Errorf("ingredient rows = %d, want 2", got)
	}

	form = validForm()
	form.Set("action", "remove_ingredient:a")
	rec = env.serve(env.pages.Upload, formRequest("/upload", form), true)
	if got := strings.Count(rec.Body.String(), `name="ingredient_name"`); got != 1 {
		t.Errorf("ingredient rows after removing the last = %d, want 1", got)
	}
	if env.srv.Requests("POST", "/rest/v1/recipes") != 0 {
		t.Error("row action created a recipe")
	}
}

func TestUploadValidationNeverReachesBackend(t *testing.T) {
	env := setup(t)
	env.signIn(t)

	form := validForm()
	form.Set("ingredient_name", " ")
	rec := env.serve(env.pages.Upload, formRequest("/upload", form), true)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "All ingredients must have a name") {
		t.Error("missing validation message")
	}
	if n := env.srv.Requests("POST", "/rest/v1/recipes"); n != 0 {
		t.Errorf("recipe POSTs = %d, want 0", n)
	}
}

func TestUploadAnonymous(t *testing.T) {
	env := setup(t)

	rec := env.serve(env.pages.Upload, formRequest("/upload", validForm()), false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "You must be signed in to create a recipe") {
		t.Error("missing sign-in message")
	}
}

func TestUploadCreatesRecipe(t *testing.T) {
	env := setup(t)
	u := env.signIn(t)

	rec := env.serve(env.pages.Upload, formRequest("/upload", validForm()), true)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("response = %d %q, want redirect to /dashboard", rec.Code, rec.Header().Get("Location"))
	}

	rows := env.srv.Rows("recipes")
	if len(rows) != 1 {
		t.Fatalf("recipes = %d, want 1", len(rows))
	}
	if rows[0]["user_id"] != u.ID || rows[0]["title"] != "Pancakes" {
		t.Errorf("stored recipe = %v", rows[0])
	}
}

func TestDashboard(t *testing.T) {
	env := setup(t)
	u := env.signIn(t)
	seedRecipe(env.srv, u.ID, "Open Omelette", true, nil)
	seedRecipe(env.srv, u.ID, "Family Secret", false, nil)

	rec := env.serve(env.pages.Dashboard, httptest.NewRequest("GET", "/dashboard", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Chef Cook", "Open Omelette", "Family Secret", `id="stat-total">2<`, `id="stat-private">1<`} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboardRejectedTokenSignsOut(t *testing.T) {
	env := setup(t)
	env.signIn(t)
	env.srv.RevokeTokens()

	rec := env.serve(env.pages.Dashboard, httptest.NewRequest("GET", "/dashboard", nil), true)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("response = %d %q, want redirect to /login", rec.Code, rec.Header().Get("Location"))
	}
	if env.provider.State().Authenticated() {
		t.Error("provider still authenticated after the token was rejected")
	}
}

func TestDashboardRequiresSignIn(t *testing.T) {
	env := setup(t)

	rec := env.serve(env.pages.Dashboard, httptest.NewRequest("GET", "/dashboard", nil), true)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("response = %d %q, want redirect to /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestUpdateProfileForm(t *testing.T) {
	env := setup(t)
	env.signIn(t)

	form := url.Values{"username": {"chef2"}, "full_name": {"Chef Two"}, "bio": {"Soups."}}
	rec := env.serve(env.pages.UpdateProfile, formRequest("/dashboard/profile", form), true)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if p := env.provider.State().Profile; p == nil || p.Username != "chef2" {
		t.Errorf("profile = %+v, want username chef2", p)
	}
}

func TestLoginAndLogout(t *testing.T) {
	env := setup(t)
	env.srv.AddUser("cook@example.com", "secret", model.UserMetadata{Username: "chef"})

	rec := env.serve(env.auth.Login, formRequest("/login", url.Values{"email": {"cook@example.com"}, "password": {"wrong"}}), false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid login credentials") {
		t.Error("missing remote error message")
	}

	rec = env.serve(env.auth.Login, formRequest("/login", url.Values{"email": {"cook@example.com"}, "password": {"secret"}}), false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("login = %d %q, want redirect to /dashboard", rec.Code, rec.Header().Get("Location"))
	}
	if !env.provider.State().Authenticated() {
		t.Fatal("provider not authenticated after login")
	}

	rec = env.serve(env.auth.Logout, formRequest("/logout", nil), true)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("logout = %d %q, want redirect to /", rec.Code, rec.Header().Get("Location"))
	}
	if env.provider.State().Authenticated() {
		t.Error("provider still authenticated after logout")
	}
}

func TestLoginRequiresFields(t *testing.T) {
	env := setup(t)

	rec := env.serve(env.auth.Login, formRequest("/login", url.Values{"email": {"cook@example.com"}}), false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if env.srv.TotalRequests() != 0 {
		t.Errorf("requests = %d, want 0", env.srv.TotalRequests())
	}
}

func TestSignupConfirmedSignsIn(t *testing.T) {
	env := setup(t)

	form := url.Values{"email": {"new@example.com"}, "password": {"secret"}, "username": {"newbie"}}
	rec := env.serve(env.auth.Signup, formRequest("/signup", form), false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("signup = %d %q, want redirect to /dashboard", rec.Code, rec.Header().Get("Location"))
	}
	if st := env.provider.State(); !st.Authenticated() || st.User.Email != "new@example.com" {
		t.Errorf("state = %+v, want signed in as new@example.com", st)
	}
}

func TestSignupDuplicate(t *testing.T) {
	env := setup(t)
	env.srv.AddUser("cook@example.com", "secret", model.UserMetadata{})

	form := url.Values{"email": {"cook@example.com"}, "password": {"secret"}}
	rec := env.serve(env.auth.Signup, formRequest("/signup", form), false)
	if !strings.Contains(rec.Body.String(), "User already registered") {
		t.Errorf("body missing duplicate message:\n%s", rec.Body.String())
	}
}

func TestSignupAwaitingConfirmation(t *testing.T) {
	env := setup(t, backendtest.RequireConfirmation())

	form := url.Values{"email": {"new@example.com"}, "password": {"secret"}}
	rec := env.serve(env.auth.Signup, formRequest("/signup", form), false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Check your email") {
		t.Error("missing confirmation notice")
	}
	if env.provider.State().Authenticated() {
		t.Error("unconfirmed sign up authenticated the provider")
	}
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAPISession(t *testing.T) {
	env := setup(t)

	rec := env.serve(env.api.Session, httptest.NewRequest("GET", "/api/session", nil), false)
	if got := decodeJSON[sessionResponse](t, rec); got.Status != "anonymous" || got.User != nil {
		t.Errorf("anonymous session = %+v", got)
	}

	u := env.signIn(t)
	rec = env.serve(env.api.Session, httptest.NewRequest("GET", "/api/session", nil), false)
	got := decodeJSON[sessionResponse](t, rec)
	if got.Status != "authenticated" || got.User == nil || got.User.ID != u.ID {
		t.Errorf("session = %+v, want authenticated as %s", got, u.ID)
	}
	if got.Profile == nil || got.Profile.Username != "chef" {
		t.Errorf("profile = %+v, want chef", got.Profile)
	}
	if got.ExpiresAt == nil {
		t.Error("expires_at missing")
	}
}

func TestAPIRecipeLifecycle(t *testing.T) {
	env := setup(t)
	u := env.signIn(t)

	body := model.Recipe{
		Title:        "Toast",
		Ingredients:  []model.Ingredient{{Amount: "1", Unit: "slice", Name: "bread"}},
		Instructions: []model.Instruction{{Step: 3, Description: "Toast it."}},
		IsPublic:     true,
	}
	rec := env.serve(env.api.CreateRecipe, jsonRequest("POST", "/api/recipes", body), true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	created := decodeJSON[model.Recipe](t, rec)
	if created.UserID != u.ID || created.Instructions[0].Step != 1 {
		t.Errorf("created = %+v", created)
	}

	title := "Better Toast"
	req := jsonRequest("PATCH", "/api/recipes/"+created.ID, model.RecipeUpdate{Title: &title})
	req.SetPathValue("id", created.ID)
	rec = env.serve(env.api.UpdateRecipe, req, true)
	if got := decodeJSON[model.Recipe](t, rec); got.Title != title {
		t.Errorf("updated title = %q, want %q", got.Title, title)
	}

	req = httptest.NewRequest("GET", "/api/recipes/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec = env.serve(env.api.GetRecipe, req, false)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}

	rec = env.serve(env.api.MyRecipes, httptest.NewRequest("GET", "/api/me/recipes", nil), true)
	if got := decodeJSON[[]model.Recipe](t, rec); len(got) != 1 {
		t.Errorf("my recipes = %d, want 1", len(got))
	}

	req = httptest.NewRequest("DELETE", "/api/recipes/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	if rec := env.serve(env.api.DeleteRecipe, req, true); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/recipes/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	rec = env.serve(env.api.GetRecipe, req, false)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
	if got := decodeJSON[errorResponse](t, rec); got.Code != backend.CodeNotFound {
		t.Errorf("error code = %q, want %q", got.Code, backend.CodeNotFound)
	}
}

func TestAPICreateValidation(t *testing.T) {
	env := setup(t)
	env.signIn(t)

	rec := env.serve(env.api.CreateRecipe, jsonRequest("POST", "/api/recipes", model.Recipe{Title: "  "}), true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := decodeJSON[map[string]string](t, rec); got["error"] != "Recipe title is required" {
		t.Errorf("error = %q", got["error"])
	}
}

func TestAPIRequiresSignIn(t *testing.T) {
	env := setup(t)

	rec := env.serve(env.api.CreateRecipe, jsonRequest("POST", "/api/recipes", model.Recipe{Title: "x"}), true)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if env.srv.TotalRequests() != 0 {
		t.Errorf("requests = %d, want 0", env.srv.TotalRequests())
	}
}

func TestAPIListAndSearch(t *testing.T) {
	env := setup(t)
	seedRecipe(env.srv, "u1", "Garlic Bread", true, nil)
	seedRecipe(env.srv, "u1", "Tomato Soup", true, nil)
	seedRecipe(env.srv, "u1", "Hidden Bread", false, nil)

	rec := env.serve(env.api.ListRecipes, httptest.NewRequest("GET", "/api/recipes?limit=10", nil), false)
	if got := decodeJSON[[]model.Recipe](t, rec); len(got) != 2 || got[0].Title != "Tomato Soup" {
		t.Errorf("list = %+v, want two public recipes newest first", got)
	}

	rec = env.serve(env.api.SearchRecipes, httptest.NewRequest("GET", "/api/recipes/search?q=bread", nil), false)
	if got := decodeJSON[[]model.Recipe](t, rec); len(got) != 1 || got[0].Title != "Garlic Bread" {
		t.Errorf("search = %+v, want Garlic Bread only", got)
	}
}

func TestAPIUpdateProfile(t *testing.T) {
	env := setup(t)
	env.signIn(t)

	bio := "Loves soup."
	rec := env.serve(env.api.UpdateProfile, jsonRequest("PUT", "/api/profile", model.ProfileUpdate{Bio: &bio}), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := decodeJSON[model.Profile](t, rec); got.Bio == nil || *got.Bio != bio {
		t.Errorf("bio = %v, want %q", got.Bio, bio)
	}
}

func TestCreateBroadcastsToPages(t *testing.T) {
	env := setup(t)
	env.signIn(t)

	wsSrv := httptest.NewServer(websocket.HandleWebSocket(env.hub, logging.Discard()))
	t.Cleanup(wsSrv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(wsSrv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for env.hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if rec := env.serve(env.pages.Upload, formRequest("/upload", validForm()), true); rec.Code != http.StatusSeeOther {
		t.Fatalf("upload status = %d, want 303", rec.Code)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg websocket.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "recipe_created" || msg.Extra["title"] != "Pancakes" {
		t.Errorf("message = %+v, want recipe_created for Pancakes", msg)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&recipe.ValidationError{Message: "x"}, http.StatusBadRequest},
		{backend.ErrNoAuthToken, http.StatusUnauthorized},
		{&backend.AuthError{Message: "x"}, http.StatusUnauthorized},
		{backend.ErrNotFound, http.StatusNotFound},
		{&backend.RemoteError{Status: 404}, http.StatusNotFound},
		{&backend.RemoteError{Status: 409, Body: "dup"}, http.StatusConflict},
		{&backend.RemoteError{Status: 503}, http.StatusBadGateway},
		{&backend.NetworkError{Op: "get", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{&backend.NetworkError{Op: "get", Err: http.ErrServerClosed}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
