package admission

import "github.com/eisbuk/EisBuk-sub003/internal/model"

// compatible lists, per customer category, the slot categories it may book.
// The generic adults category predates the course/pre-competitive split and
// is compatible with both halves in either direction.
var compatible = map[model.Category][]model.Category{
	model.CategoryAdults:               {model.CategoryAdults, model.CategoryCourseAdults, model.CategoryPreCompetitiveAdults},
	model.CategoryCourseAdults:         {model.CategoryCourseAdults, model.CategoryAdults},
	model.CategoryPreCompetitiveAdults: {model.CategoryPreCompetitiveAdults, model.CategoryAdults},
}

// CategoryAllowed reports whether a customer of category c may book a slot
// offered to slotCategories.
func CategoryAllowed(c model.Category, slotCategories []model.Category) bool {
	accepted, ok := compatible[c]
	if !ok {
		accepted = []model.Category{c}
	}
	for _, sc := range slotCategories {
		for _, a := range accepted {
			if sc == a {
				return true
			}
		}
	}
	return false
}
