package model

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
	MealDessert   MealType = "dessert"
)

// Valid reports whether m is one of the known meal types.
func (m MealType) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner, MealSnack, MealDessert:
		return true
	}
	return false
}

// Difficulties and MealTypes list the selectable values in form order.
var (
	Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
	MealTypes    = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack, MealDessert}
)

type Ingredient struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
	Name   string `json:"name"`
}

// Instruction is one step. Step is the 1-based position in the recipe.
type Instruction struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
}

type Recipe struct {
	ID                  string        `json:"id,omitempty"`
	UserID              string        `json:"user_id"`
	Title               string        `json:"title"`
	Description         *string       `json:"description,omitempty"`
	PrepTime            *int          `json:"prep_time,omitempty"`
	CookTime            *int          `json:"cook_time,omitempty"`
	Servings            *int          `json:"servings,omitempty"`
	Difficulty          *Difficulty   `json:"difficulty,omitempty"`
	Cuisine             *string       `json:"cuisine,omitempty"`
	MealType            *MealType     `json:"meal_type,omitempty"`
	DietaryRestrictions []string      `json:"dietary_restrictions"`
	Ingredients         []Ingredient  `json:"ingredients"`
	Instructions        []Instruction `json:"instructions"`
	ImageURL            *string       `json:"image_url,omitempty"`
	IsPublic            bool          `json:"is_public"`
	CreatedAt           time.Time     `json:"created_at,omitzero"`
	UpdatedAt           time.Time     `json:"updated_at,omitzero"`

	// Profile is the embedded author relation when selected.
	Profile *Profile `json:"profile,omitempty"`
}

// TotalTime is prep plus cook time in minutes; unknown parts count as zero.
func (r *Recipe) TotalTime() int {
	total := 0
	if r.PrepTime != nil {
		total += *r.PrepTime
	}
	if r.CookTime != nil {
		total += *r.CookTime
	}
	return total
}

// RecipeUpdate is a partial recipe update; nil fields are omitted from the request.
type RecipeUpdate struct {
	Title               *string        `json:"title,omitempty"`
	Description         *string        `json:"description,omitempty"`
	PrepTime            *int           `json:"prep_time,omitempty"`
	CookTime            *int           `json:"cook_time,omitempty"`
	Servings            *int           `json:"servings,omitempty"`
	Difficulty          *Difficulty    `json:"difficulty,omitempty"`
	Cuisine             *string        `json:"cuisine,omitempty"`
	MealType            *MealType      `json:"meal_type,omitempty"`
	DietaryRestrictions *[]string      `json:"dietary_restrictions,omitempty"`
	Ingredients         *[]Ingredient  `json:"ingredients,omitempty"`
	Instructions        *[]Instruction `json:"instructions,omitempty"`
	ImageURL            *string        `json:"image_url,omitempty"`
	IsPublic            *bool          `json:"is_public,omitempty"`
}

// RecipeStats are the dashboard counters for one user.
type RecipeStats struct {
	Total   int `json:"total"`
	Public  int `json:"public"`
	Private int `json:"private"`
}
