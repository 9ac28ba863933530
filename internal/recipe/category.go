package recipe

import (
	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/model"
)

// quickMealMinutes is the upper bound on prep plus cook time for Quick Meals.
const quickMealMinutes = 30

// Category is a browsable slice of the public recipes.
type Category struct {
	Slug string
	Name string

	filter func(*backend.Query) *backend.Query
	keep   func(*model.Recipe) bool
}

var Categories = []Category{
	mealCategory("breakfast", "Breakfast", model.MealBreakfast),
	mealCategory("lunch", "Lunch", model.MealLunch),
	mealCategory("dinner", "Dinner", model.MealDinner),
	mealCategory("desserts", "Desserts", model.MealDessert),
	{
		Slug:   "vegetarian",
		Name:   "Vegetarian",
		filter: func(q *backend.Query) *backend.Query { return q.Cs("dietary_restrictions", "Vegetarian") },
	},
	{
		Slug: "quick-meals",
		Name: "Quick Meals",
		keep: func(r *model.Recipe) bool {
			total := r.TotalTime()
			return total > 0 && total <= quickMealMinutes
		},
	},
	cuisineCategory("italian", "Italian"),
	cuisineCategory("mexican", "Mexican"),
}

func mealCategory(slug, name string, mt model.MealType) Category {
	return Category{
		Slug:   slug,
		Name:   name,
		filter: func(q *backend.Query) *backend.Query { return q.Eq("meal_type", string(mt)) },
	}
}

func cuisineCategory(slug, name string) Category {
	return Category{
		Slug:   slug,
		Name:   name,
		filter: func(q *backend.Query) *backend.Query { return q.Eq("cuisine", name) },
	}
}

// CategoryBySlug looks up a category by its URL slug.
func CategoryBySlug(slug string) (Category, bool) {
	for _, c := range Categories {
		if c.Slug == slug {
			return c, true
		}
	}
	return Category{}, false
}
