package recipe

import (
	"strings"

	"github.com/dukerupert/recipebox/internal/model"
)

// ValidationError is a recipe rejected before it reaches the backend.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Validate checks the fields every submitted recipe must have. The first
// failing rule is reported.
func Validate(r *model.Recipe) error {
	if strings.TrimSpace(r.Title) == "" {
		return invalid("Recipe title is required")
	}
	if err := validateIngredients(r.Ingredients); err != nil {
		return err
	}
	if err := validateInstructions(r.Instructions); err != nil {
		return err
	}
	return validateEnums(r.Difficulty, r.MealType)
}

// ValidateUpdate applies the same rules to the fields present in upd.
func ValidateUpdate(upd *model.RecipeUpdate) error {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return invalid("Recipe title is required")
	}
	if upd.Ingredients != nil {
		if err := validateIngredients(*upd.Ingredients); err != nil {
			return err
		}
	}
	if upd.Instructions != nil {
		if err := validateInstructions(*upd.Instructions); err != nil {
			return err
		}
	}
	return validateEnums(upd.Difficulty, upd.MealType)
}

// validateEnums accepts nil for either field.
func validateEnums(d *model.Difficulty, m *model.MealType) error {
	if d != nil && !d.Valid() {
		return invalid("Unknown difficulty")
	}
	if m != nil && !m.Valid() {
		return invalid("Unknown meal type")
	}
	return nil
}

func validateIngredients(ings []model.Ingredient) error {
	if len(ings) == 0 {
		return invalid("At least one ingredient is required")
	}
	for _, ing := range ings {
		if strings.TrimSpace(ing.Name) == "" {
			return invalid("All ingredients must have a name")
		}
	}
	return nil
}

func validateInstructions(steps []model.Instruction) error {
	if len(steps) == 0 {
		return invalid("At least one instruction is required")
	}
	for _, s := range steps {
		if strings.TrimSpace(s.Description) == "" {
			return invalid("All instruction steps must have a description")
		}
	}
	return nil
}

// Renumber sets each step to its 1-based position.
func Renumber(steps []model.Instruction) []model.Instruction {
	for i := range steps {
		steps[i].Step = i + 1
	}
	return steps
}
