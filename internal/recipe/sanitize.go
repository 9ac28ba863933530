package recipe

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/dukerupert/recipebox/internal/model"
)

// Sanitizer strips markup from user-entered recipe text.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// text strips tags. Entities the policy escapes are decoded again since
// output is escaped at render time.
func (s *Sanitizer) text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func (s *Sanitizer) optional(v *string) *string {
	if v == nil {
		return nil
	}
	clean := s.text(*v)
	if clean == "" {
		return nil
	}
	return &clean
}

// Recipe cleans r in place.
func (s *Sanitizer) Recipe(r *model.Recipe) {
	r.Title = s.text(r.Title)
	r.Description = s.optional(r.Description)
	r.Cuisine = s.optional(r.Cuisine)
	r.DietaryRestrictions = s.list(r.DietaryRestrictions)
	r.Ingredients = s.ingredients(r.Ingredients)
	r.Instructions = s.instructions(r.Instructions)
}

// Update cleans the text fields present in u.
func (s *Sanitizer) Update(u *model.RecipeUpdate) {
	if u.Title != nil {
		t := s.text(*u.Title)
		u.Title = &t
	}
	if u.Description != nil {
		d := s.text(*u.Description)
		u.Description = &d
	}
	if u.Cuisine != nil {
		c := s.text(*u.Cuisine)
		u.Cuisine = &c
	}
	if u.DietaryRestrictions != nil {
		l := s.list(*u.DietaryRestrictions)
		u.DietaryRestrictions = &l
	}
	if u.Ingredients != nil {
		ings := s.ingredients(*u.Ingredients)
		u.Ingredients = &ings
	}
	if u.Instructions != nil {
		steps := s.instructions(*u.Instructions)
		u.Instructions = &steps
	}
}

func (s *Sanitizer) list(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = s.text(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *Sanitizer) ingredients(in []model.Ingredient) []model.Ingredient {
	out := make([]model.Ingredient, len(in))
	for i, ing := range in {
		out[i] = model.Ingredient{
			Amount: s.text(ing.Amount),
			Unit:   s.text(ing.Unit),
			Name:   s.text(ing.Name),
		}
	}
	return out
}

func (s *Sanitizer) instructions(in []model.Instruction) []model.Instruction {
	out := make([]model.Instruction, len(in))
	for i, step := range in {
		out[i] = model.Instruction{Step: step.Step, Description: s.text(step.Description)}
	}
	return out
}
