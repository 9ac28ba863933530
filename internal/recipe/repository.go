// Package recipe stores and queries recipes through the backend data API,
// and holds the upload form's draft editor.
package recipe

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/metrics"
	"github.com/dukerupert/recipebox/internal/model"
)

const (
	table             = "recipes"
	selectWithProfile = "*,profile:profiles(*)"

	// categoryScan bounds how many public rows a locally filtered category reads.
	categoryScan = 100
)

// SessionSource yields the stored session, or nil when signed out.
type SessionSource interface {
	Load(ctx context.Context) (*model.Session, error)
}

type Repository struct {
	client    *backend.Client
	sessions  SessionSource
	sanitizer *Sanitizer
	metrics   metrics.Recorder
	logger    *slog.Logger
}

type Option func(*Repository)

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Repository) { r.metrics = m }
}

func NewRepository(client *backend.Client, sessions SessionSource, logger *slog.Logger, opts ...Option) *Repository {
	r := &Repository{
		client:    client,
		sessions:  sessions,
		sanitizer: NewSanitizer(),
		metrics:   metrics.Nop{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates in and inserts it for the signed-in user. Invalid
// recipes never reach the network. in is left unchanged; a sanitized,
// renumbered copy is sent instead.
func (r *Repository) Create(ctx context.Context, in *model.Recipe) (*model.Recipe, error) {
	clean := *in
	rec := &clean
	r.sanitizer.Recipe(rec)
	if err := Validate(rec); err != nil {
		r.metrics.RecordValidationFailure()
		return nil, err
	}

	sess, err := r.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, backend.ErrNoAuthToken
	}
	if rec.UserID == "" {
		rec.UserID = sess.UserID()
	}
	Renumber(rec.Instructions)

	var out model.Recipe
	err = r.client.From(table).
		Select(selectWithProfile).
		Insert(rec).
		Authenticated().
		Single(ctx, &out)
	if err != nil {
		r.logger.Warn("create recipe", "user_id", rec.UserID, "error", err)
		return nil, err
	}
	r.logger.Info("created recipe", "id", out.ID, "user_id", out.UserID)
	return &out, nil
}

// List returns public recipes, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]model.Recipe, error) {
	recipes := []model.Recipe{}
	err := r.client.From(table).
		Select(selectWithProfile).
		Eq("is_public", "true").
		Order("created_at", false).
		Limit(limit).
		Offset(offset).
		Execute(ctx, &recipes)
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// ListByUser returns every recipe owned by userID, public or not.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]model.Recipe, error) {
	recipes := []model.Recipe{}
	err := r.client.From(table).
		Select(selectWithProfile).
		Eq("user_id", userID).
		Order("created_at", false).
		Authenticated().
		Execute(ctx, &recipes)
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// Get returns one recipe with its author. A missing id is backend.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*model.Recipe, error) {
	var rec model.Recipe
	if err := r.client.From(table).Select(selectWithProfile).Eq("id", id).Single(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update applies a partial update after the same checks as Create.
func (r *Repository) Update(ctx context.Context, id string, upd model.RecipeUpdate) (*model.Recipe, error) {
	r.sanitizer.Update(&upd)
	if err := ValidateUpdate(&upd); err != nil {
		r.metrics.RecordValidationFailure()
		return nil, err
	}
	if upd.Instructions != nil {
		Renumber(*upd.Instructions)
	}

	var rec model.Recipe
	err := r.client.From(table).
		Select(selectWithProfile).
		Eq("id", id).
		Update(upd).
		Authenticated().
		Single(ctx, &rec)
	if err != nil {
		return nil, err
	}
	r.logger.Info("updated recipe", "id", id)
	return &rec, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.client.From(table).Eq("id", id).Delete().Authenticated().Execute(ctx, nil); err != nil {
		return err
	}
	r.logger.Info("deleted recipe", "id", id)
	return nil
}

// Search matches query against public recipe titles. A blank query lists
// the newest public recipes.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]model.Recipe, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return r.List(ctx, limit, 0)
	}
	recipes := []model.Recipe{}
	err := r.client.From(table).
		Select(selectWithProfile).
		Eq("is_public", "true").
		TextSearch("title", query).
		Order("created_at", false).
		Limit(limit).
		Execute(ctx, &recipes)
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// ByCategory lists public recipes in c, newest first.
func (r *Repository) ByCategory(ctx context.Context, c Category, limit int) ([]model.Recipe, error) {
	q := r.client.From(table).
		Select(selectWithProfile).
		Eq("is_public", "true").
		Order("created_at", false)
	if c.filter != nil {
		q = c.filter(q)
	}
	if c.keep == nil {
		q = q.Limit(limit)
	} else {
		q = q.Limit(categoryScan)
	}

	recipes := []model.Recipe{}
	if err := q.Execute(ctx, &recipes); err != nil {
		return nil, err
	}
	if c.keep == nil {
		return recipes, nil
	}

	kept := recipes[:0]
	for i := range recipes {
		if c.keep(&recipes[i]) {
			kept = append(kept, recipes[i])
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, nil
}

// Stats counts userID's recipes by visibility.
func (r *Repository) Stats(ctx context.Context, userID string) (model.RecipeStats, error) {
	total, err := r.client.From(table).Eq("user_id", userID).Authenticated().Count(ctx)
	if err != nil {
		return model.RecipeStats{}, err
	}
	public, err := r.client.From(table).Eq("user_id", userID).Eq("is_public", "true").Authenticated().Count(ctx)
	if err != nil {
		return model.RecipeStats{}, err
	}
	return model.RecipeStats{Total: total, Public: public, Private: total - public}, nil
}
