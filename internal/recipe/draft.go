package recipe

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/recipebox/internal/model"
)

// Units and DietaryOptions are the choices offered by the upload form.
var (
	Units = []string{
		"cup", "cups", "tbsp", "tsp", "lb", "oz", "g", "kg", "ml", "l",
		"piece", "pieces", "slice", "slices", "clove", "cloves",
	}
	DietaryOptions = []string{
		"Vegetarian", "Vegan", "Gluten-Free", "Dairy-Free",
		"Nut-Free", "Low-Carb", "Keto", "Paleo",
	}
)

type IngredientRow struct {
	ID     string
	Amount string
	Unit   string
	Name   string
}

type InstructionRow struct {
	ID          string
	Step        int
	Description string
}

// Draft is the upload form's working copy of a recipe. Rows keep stable
// ids so the form can add and remove them between submissions.
type Draft struct {
	Title        string
	Description  string
	PrepTime     *int
	CookTime     *int
	Servings     *int
	Difficulty   string
	Cuisine      string
	MealType     string
	Dietary      []string
	Ingredients  []IngredientRow
	Instructions []InstructionRow
	IsPublic     bool
}

// NewDraft returns a public draft with one empty ingredient and one empty step.
func NewDraft() *Draft {
	return &Draft{
		Ingredients:  []IngredientRow{{ID: uuid.NewString()}},
		Instructions: []InstructionRow{{ID: uuid.NewString(), Step: 1}},
		IsPublic:     true,
	}
}

func (d *Draft) AddIngredient() string {
	id := uuid.NewString()
	d.Ingredients = append(d.Ingredients, IngredientRow{ID: id})
	return id
}

// RemoveIngredient drops the row with id. The last row is never removed.
func (d *Draft) RemoveIngredient(id string) bool {
	if len(d.Ingredients) <= 1 {
		return false
	}
	n := len(d.Ingredients)
	d.Ingredients = slices.DeleteFunc(d.Ingredients, func(r IngredientRow) bool { return r.ID == id })
	return len(d.Ingredients) < n
}

func (d *Draft) AddInstruction() string {
	id := uuid.NewString()
	d.Instructions = append(d.Instructions, InstructionRow{ID: id, Step: len(d.Instructions) + 1})
	return id
}

// RemoveInstruction drops the row with id and renumbers the rest.
// The last row is never removed.
func (d *Draft) RemoveInstruction(id string) bool {
	if len(d.Instructions) <= 1 {
		return false
	}
	n := len(d.Instructions)
	d.Instructions = slices.DeleteFunc(d.Instructions, func(r InstructionRow) bool { return r.ID == id })
	for i := range d.Instructions {
		d.Instructions[i].Step = i + 1
	}
	return len(d.Instructions) < n
}

func (d *Draft) HasDietary(option string) bool {
	return slices.Contains(d.Dietary, option)
}

// Validate reports the first problem the form would show.
func (d *Draft) Validate() error {
	return Validate(d.ToRecipe(""))
}

// ToRecipe converts the draft into the submitted shape. Empty optional
// fields become nil.
func (d *Draft) ToRecipe(userID string) *model.Recipe {
	r := &model.Recipe{
		UserID:              userID,
		Title:               strings.TrimSpace(d.Title),
		PrepTime:            d.PrepTime,
		CookTime:            d.CookTime,
		Servings:            d.Servings,
		DietaryRestrictions: slices.Clone(d.Dietary),
		IsPublic:            d.IsPublic,
	}
	if r.DietaryRestrictions == nil {
		r.DietaryRestrictions = []string{}
	}
	if desc := strings.TrimSpace(d.Description); desc != "" {
		r.Description = &desc
	}
	if c := strings.TrimSpace(d.Cuisine); c != "" {
		r.Cuisine = &c
	}
	if diff := model.Difficulty(d.Difficulty); diff.Valid() {
		r.Difficulty = &diff
	}
	if mt := model.MealType(d.MealType); mt.Valid() {
		r.MealType = &mt
	}

	r.Ingredients = make([]model.Ingredient, len(d.Ingredients))
	for i, row := range d.Ingredients {
		r.Ingredients[i] = model.Ingredient{Amount: row.Amount, Unit: row.Unit, Name: row.Name}
	}
	r.Instructions = make([]model.Instruction, len(d.Instructions))
	for i, row := range d.Instructions {
		r.Instructions[i] = model.Instruction{Step: i + 1, Description: row.Description}
	}
	return r
}

// DraftFromForm rebuilds a draft from the upload form's fields. Parallel
// row fields are matched by index; rows without an id get a new one.
func DraftFromForm(form url.Values) *Draft {
	d := &Draft{
		Title:       form.Get("title"),
		Description: form.Get("description"),
		PrepTime:    optionalInt(form.Get("prep_time")),
		CookTime:    optionalInt(form.Get("cook_time")),
		Servings:    optionalInt(form.Get("servings")),
		Difficulty:  form.Get("difficulty"),
		Cuisine:     form.Get("cuisine"),
		MealType:    form.Get("meal_type"),
		IsPublic:    form.Get("is_public") != "",
	}
	for _, v := range form["dietary_restrictions"] {
		if slices.Contains(DietaryOptions, v) {
			d.Dietary = append(d.Dietary, v)
		}
	}

	ids := form["ingredient_id"]
	amounts := form["ingredient_amount"]
	units := form["ingredient_unit"]
	for i, name := range form["ingredient_name"] {
		d.Ingredients = append(d.Ingredients, IngredientRow{
			ID:     rowID(ids, i),
			Amount: at(amounts, i),
			Unit:   at(units, i),
			Name:   name,
		})
	}

	stepIDs := form["instruction_id"]
	for i, desc := range form["instruction_description"] {
		d.Instructions = append(d.Instructions, InstructionRow{
			ID:          rowID(stepIDs, i),
			Step:        i + 1,
			Description: desc,
		})
	}
	return d
}

func optionalInt(v string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func at(vals []string, i int) string {
	if i < len(vals) {
		return vals[i]
	}
	return ""
}

func rowID(ids []string, i int) string {
	if id := at(ids, i); id != "" {
		return id
	}
	return uuid.NewString()
}
