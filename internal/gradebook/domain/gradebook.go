package domain

import "errors"

// Class is a course in an account's gradebook.
type Class struct {
	ID     string
	Name   string
	Code   string
	Color  int
	Weight float64
}

// Validate validates the class for persistence. Returns an error describing the first validation failure.
func (c *Class) Validate() error {
	if c.ID == "" {
		return errors.New("class id is required")
	}
	if c.Name == "" {
		return errors.New("class name is required")
	}
	return nil
}

// Category groups assignments inside a class.
type Category struct {
	ID        string
	ClassID   string
	Name      string
	DropCount int
	Weight    float64
}

// GradeBand maps a score range in a class to a letter grade.
type GradeBand struct {
	GradeID  string
	MinScore float64
	MaxScore float64
	Credit   float64
}

// ClassData is a class with everything loaded alongside it on read.
type ClassData struct {
	Class      Class
	Categories []Category
	GradeScale []GradeBand
}

// Term is an account-owned date range. Dates are unix milliseconds.
type Term struct {
	ID        string
	AccountID string
	Title     string
	StartDate int64
	EndDate   int64
}

// Validate validates the term for persistence.
func (t *Term) Validate() error {
	if t.ID == "" || t.AccountID == "" {
		return errors.New("term id and owner are required")
	}
	if t.Title == "" {
		return errors.New("term title is required")
	}
	if t.EndDate != 0 && t.EndDate < t.StartDate {
		return errors.New("term ends before it starts")
	}
	return nil
}
