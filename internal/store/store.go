// Package store persists goal definitions and completion records with gorm
// and publishes every effective write to the change feed.
package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/feed"
	"github.com/arnold/steady-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrGoalNotFound = errors.New("goal not found")

// GoalStore is what the engine needs from persistence.
type GoalStore interface {
	ListGoals(ctx context.Context, userID uuid.UUID) ([]models.Goal, error)
	ListCompletions(ctx context.Context, userID uuid.UUID, from, to civil.Date) ([]models.Completion, error)
	InsertCompletion(ctx context.Context, userID, goalID uuid.UUID, date civil.Date, index int) error
	DeleteCompletion(ctx context.Context, userID, goalID uuid.UUID, date civil.Date, index int) error
	UpdateGoal(ctx context.Context, userID, goalID uuid.UUID, fields map[string]any) error
	UpdateGoalOrder(ctx context.Context, userID, goalID uuid.UUID, orderIndex int) error
	Subscribe(table feed.Table, userID uuid.UUID) (<-chan feed.ChangeEvent, func())
}

type GormStore struct {
	db   *gorm.DB
	feed *feed.Broker
}

func New(db *gorm.DB, broker *feed.Broker) *GormStore {
	return &GormStore{db: db, feed: broker}
}

func (s *GormStore) publish(table feed.Table, op feed.Op, userID, recordID uuid.UUID) {
	s.feed.Publish(feed.ChangeEvent{Table: table, Op: op, UserID: userID, RecordID: recordID})
}

func (s *GormStore) Subscribe(table feed.Table, userID uuid.UUID) (<-chan feed.ChangeEvent, func()) {
	return s.feed.Subscribe(table, userID)
}

func (s *GormStore) ListGoals(ctx context.Context, userID uuid.UUID) ([]models.Goal, error) {
	var goals []models.Goal
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("order_index ASC, created_at ASC, id ASC").
		Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}

func (s *GormStore) GetGoal(ctx context.Context, userID, goalID uuid.UUID) (*models.Goal, error) {
	var goal models.Goal
	if err := s.db.WithContext(ctx).First(&goal, "id = ? AND user_id = ?", goalID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return &goal, nil
}

// CreateGoal appends the goal after the user's current last position.
func (s *GormStore) CreateGoal(ctx context.Context, goal *models.Goal) error {
	var maxIndex int
	row := s.db.WithContext(ctx).Model(&models.Goal{}).
		Where("user_id = ?", goal.UserID).
		Select("COALESCE(MAX(order_index), -1)").
		Row()
	if err := row.Scan(&maxIndex); err != nil {
		return err
	}
	goal.OrderIndex = maxIndex + 1

	if err := s.db.WithContext(ctx).Create(goal).Error; err != nil {
		return err
	}
	s.publish(feed.Goals, feed.OpInsert, goal.UserID, goal.ID)
	return nil
}

// SaveGoal persists an edited definition.
func (s *GormStore) SaveGoal(ctx context.Context, goal *models.Goal) error {
	if err := s.db.WithContext(ctx).Save(goal).Error; err != nil {
		return err
	}
	s.publish(feed.Goals, feed.OpUpdate, goal.UserID, goal.ID)
	return nil
}

// DeleteGoal hard-deletes a goal together with its completion records.
func (s *GormStore) DeleteGoal(ctx context.Context, userID, goalID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", goalID, userID).Delete(&models.Goal{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrGoalNotFound
		}
		return tx.Where("goal_id = ? AND user_id = ?", goalID, userID).Delete(&models.Completion{}).Error
	})
	if err != nil {
		return err
	}
	s.publish(feed.Goals, feed.OpDelete, userID, goalID)
	s.publish(feed.Completions, feed.OpDelete, userID, goalID)
	return nil
}

func (s *GormStore) UpdateGoal(ctx context.Context, userID, goalID uuid.UUID, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Goal{}).
		Where("id = ? AND user_id = ?", goalID, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGoalNotFound
	}
	s.publish(feed.Goals, feed.OpUpdate, userID, goalID)
	return nil
}

func (s *GormStore) UpdateGoalOrder(ctx context.Context, userID, goalID uuid.UUID, orderIndex int) error {
	return s.UpdateGoal(ctx, userID, goalID, map[string]any{"order_index": orderIndex})
}

// ListCompletions returns every record dated within [from, to].
func (s *GormStore) ListCompletions(ctx context.Context, userID uuid.UUID, from, to civil.Date) ([]models.Completion, error) {
	var records []models.Completion
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND completion_date >= ? AND completion_date <= ?", userID, from.String(), to.String()).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// InsertCompletion is insert-if-absent.
func (s *GormStore) InsertCompletion(ctx context.Context, userID, goalID uuid.UUID, date civil.Date, index int) error {
	record := models.Completion{
		UserID:         userID,
		GoalID:         goalID,
		CompletionDate: date.String(),
		InstanceIndex:  index,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.publish(feed.Completions, feed.OpInsert, userID, goalID)
	}
	return nil
}

// DeleteCompletion is delete-if-present.
func (s *GormStore) DeleteCompletion(ctx context.Context, userID, goalID uuid.UUID, date civil.Date, index int) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND goal_id = ? AND completion_date = ? AND instance_index = ?", userID, goalID, date.String(), index).
		Delete(&models.Completion{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.publish(feed.Completions, feed.OpDelete, userID, goalID)
	}
	return nil
}
