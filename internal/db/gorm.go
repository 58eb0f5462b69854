package db

import (
	"errors"
	"fmt"

	"github.com/blacktop/unicycle/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// journal implements Database on top of any gorm dialect.
type journal struct {
	db *gorm.DB
}

func (j *journal) migrate() error {
	return j.db.AutoMigrate(
		&model.Session{},
		&model.Step{},
		&model.Score{},
	)
}

func (j *journal) CreateSession(s *model.Session) error {
	if result := j.db.Omit(clause.Associations).Create(s); result.Error != nil {
		return result.Error
	}
	return nil
}

func (j *journal) SaveSession(s *model.Session) error {
	if result := j.db.Omit(clause.Associations).Save(s); result.Error != nil {
		return result.Error
	}
	return nil
}

func (j *journal) GetSession(id string) (*model.Session, error) {
	var s model.Session
	if err := j.db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("steps.id") }).
		Preload("Steps.Scores", func(db *gorm.DB) *gorm.DB { return db.Order("scores.id") }).
		Where("id = ?", id).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (j *journal) ListSessions() ([]*model.Session, error) {
	var sessions []*model.Session
	if err := j.db.Order("created_at desc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (j *journal) AddStep(sessionID string, step *model.Step) error {
	return j.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Session{}).Where("id = ?", sessionID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return model.ErrNotFound
		}
		step.SessionID = sessionID
		return tx.Create(step).Error
	})
}

func (j *journal) DeleteSession(id string) error {
	return j.db.Transaction(func(tx *gorm.DB) error {
		var stepIDs []uint
		if err := tx.Model(&model.Step{}).Where("session_id = ?", id).Pluck("id", &stepIDs).Error; err != nil {
			return err
		}
		if len(stepIDs) > 0 {
			if err := tx.Unscoped().Where("step_id IN ?", stepIDs).Delete(&model.Score{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("session_id = ?", id).Delete(&model.Step{}).Error; err != nil {
				return err
			}
		}
		result := tx.Unscoped().Where("id = ?", id).Delete(&model.Session{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

func (j *journal) Close() error {
	if j.db == nil {
		return nil
	}
	db, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql database: %w", err)
	}
	return db.Close()
}
