// Package backendtest runs an in-memory stand-in for the hosted identity and
// data services. It understands the subset of the wire protocol the app uses.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dukerupert/recipebox/internal/model"
)

const (
	AnonKey    = "test-anon-key"
	timeFormat = "2006-01-02T15:04:05.000000Z"
)

var signingKey = []byte("backendtest-secret")

type account struct {
	user     model.User
	password string
}

// Server is a fake backend. Without options sign-ups are confirmed
// immediately and tokens live for one hour.
type Server struct {
	*httptest.Server

	requireConfirmation bool
	omitExpiry          bool
	tokenTTL            time.Duration
	delay               time.Duration

	mu       sync.Mutex
	accounts map[string]*account // by email
	tokens   map[string]string   // access token -> user id
	tables   map[string][]map[string]any
	failures map[string]failure
	requests map[string]int
	clock    time.Time
}

type failure struct {
	status int
	body   string
}

type Option func(*Server)

// RequireConfirmation leaves new users unconfirmed at sign-up.
func RequireConfirmation() Option {
	return func(s *Server) { s.requireConfirmation = true }
}

// OmitExpiry drops expires_at and expires_in from token responses.
func OmitExpiry() Option {
	return func(s *Server) { s.omitExpiry = true }
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithDelay holds every request for d before answering.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		tokenTTL: time.Hour,
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		tables: map[string][]map[string]any{
			"profiles": nil,
			"recipes":  nil,
		},
		failures: make(map[string]failure),
		requests: make(map[string]int),
		clock:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// FailNext makes the next request to "METHOD /path" answer status with body.
func (s *Server) FailNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, body: body}
}

// Requests counts requests received for "METHOD /path".
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// TotalRequests counts every request received.
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

// AddUser registers a confirmed account.
func (s *Server) AddUser(email, password string, meta model.UserMetadata) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, meta, true)
}

// IssueToken signs in userID without a request and returns the access token.
func (s *Server) IssueToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, _ := s.issueTokenLocked(userID)
	return token
}

// RevokeTokens invalidates every issued token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// Seed inserts v into table as if created now and returns the stored row.
// v may be a map or any JSON-encodable struct such as model.Recipe.
func (s *Server) Seed(table string, v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("seed %s: %v", table, err))
	}
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		panic(fmt.Sprintf("seed %s: %v", table, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.insertLocked(table, row))
}

// Rows returns a copy of every row in table.
func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, clone(r))
	}
	return out
}

func (s *Server) addUserLocked(email, password string, meta model.UserMetadata, confirmed bool) model.User {
	now := s.tick()
	u := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		UserMetadata: meta,
		CreatedAt:    &now,
	}
	if confirmed {
		u.EmailConfirmedAt = &now
	}
	s.accounts[email] = &account{user: u, password: password}
	return u
}

func (s *Server) issueTokenLocked(userID string) (string, int64) {
	exp := time.Now().Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	s.tokens[signed] = userID
	return signed, exp.Unix()
}

// tick advances the fake clock so created_at strictly increases.
func (s *Server) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	key := r.Method + " " + r.URL.Path

	s.mu.Lock()
	s.requests[key]++
	f, failing := s.failures[key]
	delete(s.failures, key)
	s.mu.Unlock()

	if failing {
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
		return
	}

	if r.Header.Get("apikey") != AnonKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/signup":
		s.handleSignUp(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/token":
		s.handleToken(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/auth/v1/user":
		s.handleUser(w, r)
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		s.handleRest(w, r, strings.TrimPrefix(r.URL.Path, "/rest/v1/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no route"})
	}
}

type credentials struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Data     model.UserMetadata `json:"data"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Email == "" || c.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "Signup requires a valid password"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[c.Email]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":             "user_already_exists",
			"error_description": "User already registered",
		})
		return
	}

	u := s.addUserLocked(c.Email, c.Password, c.Data, !s.requireConfirmation)
	if s.requireConfirmation {
		writeJSON(w, http.StatusOK, map[string]any{"user": u})
		return
	}
	writeJSON(w, http.StatusOK, s.sessionPayloadLocked(u))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "password" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[c.Email]
	if !ok || acct.password != c.Password {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid login credentials",
		})
		return
	}
	if acct.user.EmailConfirmedAt == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Email not confirmed",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.sessionPayloadLocked(acct.user))
}

func (s *Server) sessionPayloadLocked(u model.User) map[string]any {
	token, exp := s.issueTokenLocked(u.ID)
	payload := map[string]any{
		"access_token":  token,
		"token_type":    "bearer",
		"refresh_token": uuid.NewString(),
		"user":          u,
	}
	if !s.omitExpiry {
		payload["expires_in"] = int64(s.tokenTTL.Seconds())
		payload["expires_at"] = exp
	}
	return payload
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.userForRequestLocked(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) userForRequestLocked(r *http.Request) (model.User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	id, ok := s.tokens[token]
	if !ok {
		return model.User{}, false
	}
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return model.User{}, false
}

func (s *Server) handleRest(w http.ResponseWriter, r *http.Request, table string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"code":    "42P01",
			"message": fmt.Sprintf("relation %q does not exist", table),
		})
		return
	}

	q := r.URL.Query()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		if _, ok := s.userForRequestLocked(r); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"code":    "42501",
				"message": "new row violates row-level security policy",
			})
			return
		}
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		matched, err := filterRows(rows, q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		total := len(matched)
		sortRows(matched, q.Get("order"))
		matched, err = pageRows(matched, q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		if strings.Contains(r.Header.Get("Prefer"), "count=exact") {
			w.Header().Set("Content-Range", fmt.Sprintf("*/%d", total))
		}
		writeJSON(w, http.StatusOK, s.project(matched, q.Get("select")))

	case http.MethodPost:
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
			return
		}
		if id, ok := row["id"].(string); ok && id != "" {
			for _, existing := range rows {
				if existing["id"] == id {
					writeJSON(w, http.StatusConflict, map[string]string{
						"code":    "23505",
						"message": fmt.Sprintf("duplicate key value violates unique constraint %q", table+"_pkey"),
					})
					return
				}
			}
		}
		stored := s.insertLocked(table, row)
		writeJSON(w, http.StatusCreated, s.project([]map[string]any{clone(stored)}, q.Get("select")))

	case http.MethodPatch:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
			return
		}
		matched, err := filterRows(rows, q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		now := s.tick().Format(timeFormat)
		for _, row := range matched {
			for k, v := range patch {
				row[k] = v
			}
			row["updated_at"] = now
		}
		writeJSON(w, http.StatusOK, s.project(cloneAll(matched), q.Get("select")))

	case http.MethodDelete:
		matched, err := filterRows(rows, q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		s.tables[table] = slices.DeleteFunc(rows, func(row map[string]any) bool {
			return slices.ContainsFunc(matched, func(m map[string]any) bool { return m["id"] == row["id"] })
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) insertLocked(table string, row map[string]any) map[string]any {
	stored := clone(row)
	if id, _ := stored["id"].(string); id == "" {
		stored["id"] = uuid.NewString()
	}
	now := s.tick().Format(timeFormat)
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	stored["updated_at"] = now
	s.tables[table] = append(s.tables[table], stored)
	return stored
}

// project embeds the author profile when the select asks for it.
func (s *Server) project(rows []map[string]any, sel string) []map[string]any {
	out := cloneAll(rows)
	if !strings.Contains(sel, "profile:profiles(") {
		return out
	}
	for _, row := range out {
		for _, p := range s.tables["profiles"] {
			if p["id"] == row["user_id"] {
				row["profile"] = clone(p)
				break
			}
		}
	}
	return out
}

var reserved = map[string]bool{"select": true, "order": true, "limit": true, "offset": true}

func filterRows(rows []map[string]any, q url.Values) ([]map[string]any, error) {
	var out []map[string]any
	for _, row := range rows {
		keep := true
		for col, exprs := range q {
			if reserved[col] {
				continue
			}
			for _, expr := range exprs {
				ok, err := match(row[col], expr)
				if err != nil {
					return nil, err
				}
				if !ok {
					keep = false
				}
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func match(v any, expr string) (bool, error) {
	op, arg, ok := strings.Cut(expr, ".")
	if !ok {
		return false, fmt.Errorf("failed to parse filter (%s)", expr)
	}
	switch op {
	case "eq":
		return scalar(v) == arg, nil
	case "cs":
		want := strings.Split(strings.Trim(arg, "{}"), ",")
		have, _ := v.([]any)
		for _, w := range want {
			if !slices.ContainsFunc(have, func(h any) bool { return scalar(h) == w }) {
				return false, nil
			}
		}
		return true, nil
	case "fts":
		text := strings.ToLower(scalar(v))
		for _, word := range strings.Fields(strings.ToLower(arg)) {
			if !strings.Contains(text, word) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func sortRows(rows []map[string]any, order string) {
	if order == "" {
		return
	}
	col, dir, _ := strings.Cut(order, ".")
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := scalar(rows[i][col]), scalar(rows[j][col])
		if dir == "desc" {
			return a > b
		}
		return a < b
	})
}

func pageRows(rows []map[string]any, q url.Values) ([]map[string]any, error) {
	if off, err := strconv.Atoi(q.Get("offset")); err == nil {
		if off < 0 {
			return nil, fmt.Errorf("offset must be non-negative, got %d", off)
		}
		if off >= len(rows) {
			return nil, nil
		}
		rows = rows[off:]
	}
	if lim, err := strconv.Atoi(q.Get("limit")); err == nil && lim >= 0 && lim < len(rows) {
		rows = rows[:lim]
	}
	return rows, nil
}

func clone(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func cloneAll(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, clone(r))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
