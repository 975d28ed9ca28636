package models

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GoalType string

const (
	GoalTypeToday    GoalType = "today"
	GoalTypeWeek     GoalType = "week"
	GoalTypeMonth    GoalType = "month"
	GoalTypeAlways   GoalType = "always"
	GoalTypeOnetime  GoalType = "onetime"
	GoalTypePeriodic GoalType = "periodic"
)

func (t GoalType) Valid() bool {
	switch t {
	case GoalTypeToday, GoalTypeWeek, GoalTypeMonth, GoalTypeAlways, GoalTypeOnetime, GoalTypePeriodic:
		return true
	}
	return false
}

type PeriodicType string

const (
	PeriodicStartOfMonth PeriodicType = "start_of_month"
	PeriodicMidMonth     PeriodicType = "mid_month"
	PeriodicEndOfMonth   PeriodicType = "end_of_month"
)

func (p PeriodicType) Valid() bool {
	switch p {
	case PeriodicStartOfMonth, PeriodicMidMonth, PeriodicEndOfMonth:
		return true
	}
	return false
}

var ErrInvalidGoal = errors.New("invalid goal")

type Goal struct {
	ID           uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID     `json:"userId" gorm:"type:uuid;index;not null"`
	Text         string        `json:"text" gorm:"not null"`
	GoalType     GoalType      `json:"goalType" gorm:"not null"`
	Remaining    int           `json:"remaining" gorm:"not null;default:1"`
	TargetDate   *string       `json:"targetDate" gorm:"type:varchar(10)"` // YYYY-MM-DD, onetime only
	PeriodicType *PeriodicType `json:"periodicType"`
	OrderIndex   int           `json:"orderIndex" gorm:"not null;default:0"`
	Link         *string       `json:"link"`
	Notes        *string       `json:"notes"`
	Instructions *string       `json:"instructions"`
	Completed    bool          `json:"completed" gorm:"default:false"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// Target parses TargetDate.
func (g *Goal) Target() (civil.Date, error) {
	if g.TargetDate == nil || *g.TargetDate == "" {
		return civil.Date{}, fmt.Errorf("%w: onetime goal %s has no target date", ErrInvalidGoal, g.ID)
	}
	d, err := civil.ParseDate(*g.TargetDate)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: target date %q: %v", ErrInvalidGoal, *g.TargetDate, err)
	}
	return d, nil
}

// Validate checks the fields whose presence depends on GoalType.
func (g *Goal) Validate() error {
	if !g.GoalType.Valid() {
		return fmt.Errorf("%w: unknown goal type %q", ErrInvalidGoal, g.GoalType)
	}
	if g.Remaining < 1 {
		return fmt.Errorf("%w: remaining must be at least 1", ErrInvalidGoal)
	}
	switch g.GoalType {
	case GoalTypeOnetime:
		if _, err := g.Target(); err != nil {
			return err
		}
	case GoalTypePeriodic:
		if g.PeriodicType == nil || !g.PeriodicType.Valid() {
			return fmt.Errorf("%w: periodic goal needs a periodic type", ErrInvalidGoal)
		}
	}
	return nil
}

// Normalize applies the type-dependent defaults before a write.
func (g *Goal) Normalize() {
	if g.GoalType == GoalTypeOnetime {
		g.Remaining = 1
	}
	if g.GoalType != GoalTypeOnetime {
		g.TargetDate = nil
	}
	if g.GoalType != GoalTypePeriodic {
		g.PeriodicType = nil
	}
}

// Goal DTOs
type CreateGoalRequest struct {
	Text         string        `json:"text" validate:"required"`
	GoalType     GoalType      `json:"goalType" validate:"required"`
	Remaining    int           `json:"remaining"`
	TargetDate   *string       `json:"targetDate"`
	PeriodicType *PeriodicType `json:"periodicType"`
	Link         *string       `json:"link"`
	Notes        *string       `json:"notes"`
	Instructions *string       `json:"instructions"`
}

type UpdateGoalRequest struct {
	Text         *string       `json:"text"`
	GoalType     *GoalType     `json:"goalType"`
	Remaining    *int          `json:"remaining"`
	TargetDate   *string       `json:"targetDate"`
	PeriodicType *PeriodicType `json:"periodicType"`
	Link         *string       `json:"link"`
	Notes        *string       `json:"notes"`
	Instructions *string       `json:"instructions"`
}

// Apply copies the non-nil request fields onto g.
func (r *UpdateGoalRequest) Apply(g *Goal) {
	if r.Text != nil {
		g.Text = *r.Text
	}
	if r.GoalType != nil {
		g.GoalType = *r.GoalType
	}
	if r.Remaining != nil {
		g.Remaining = *r.Remaining
	}
	if r.TargetDate != nil {
		g.TargetDate = r.TargetDate
	}
	if r.PeriodicType != nil {
		g.PeriodicType = r.PeriodicType
	}
	if r.Link != nil {
		g.Link = r.Link
	}
	if r.Notes != nil {
		g.Notes = r.Notes
	}
	if r.Instructions != nil {
		g.Instructions = r.Instructions
	}
}
