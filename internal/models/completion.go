package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Completion marks one occurrence of a goal as done. Presence is the only
// completion signal; un-completing deletes the row.
type Completion struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_completion_key,priority:1"`
	GoalID         uuid.UUID `json:"goalId" gorm:"type:uuid;not null;uniqueIndex:idx_completion_key,priority:2;index"`
	CompletionDate string    `json:"completionDate" gorm:"type:varchar(10);not null;uniqueIndex:idx_completion_key,priority:3"`
	InstanceIndex  int       `json:"instanceIndex" gorm:"not null;uniqueIndex:idx_completion_key,priority:4"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (c *Completion) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type ToggleInstanceRequest struct {
	GoalID    uuid.UUID `json:"goalId"`
	Date      string    `json:"date"`
	Index     int       `json:"index"`
	Completed bool      `json:"completed"`
}

type ReorderRequest struct {
	Context string `json:"context"`
	From    int    `json:"from"`
	To      int    `json:"to"`
}
