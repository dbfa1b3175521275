package model

type Category string

const (
	CategoryCourse               Category = "course"
	CategoryPreCompetitive       Category = "pre-competitive"
	CategoryCompetitive          Category = "competitive"
	CategoryCourseAdults         Category = "course-adults"
	CategoryPreCompetitiveAdults Category = "pre-competitive-adults"

	// CategoryAdults is the generic adults category kept for records
	// created before adults were split into course and pre-competitive.
	CategoryAdults Category = "adults"
)

// IsAdult reports whether c belongs to the adults family.
func (c Category) IsAdult() bool {
	switch c {
	case CategoryAdults, CategoryCourseAdults, CategoryPreCompetitiveAdults:
		return true
	}
	return false
}
