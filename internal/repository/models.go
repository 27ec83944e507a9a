package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/reelforge/clip-engine/internal/domain"
)

// BatchModel is the gorm row for a batch. Items live in their own table and
// are loaded/replaced together with the batch snapshot.
type BatchModel struct {
	ID                string             `gorm:"type:uuid;primaryKey"`
	Name              string             `gorm:"type:varchar(255);not null"`
	Status            domain.BatchStatus `gorm:"type:varchar(20);not null"`
	Platform          domain.Platform    `gorm:"type:varchar(30);not null"`
	TargetDurationSec float64            `gorm:"not null"`
	Voice             string             `gorm:"type:varchar(100)"`
	Genre             string             `gorm:"type:varchar(100)"`
	Language          string             `gorm:"type:varchar(20)"`
	Audience          string             `gorm:"type:varchar(100)"`
	MaxParallel       int                `gorm:"not null;default:4"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LockedAt          *time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	Items             []BatchItemModel `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

func (BatchModel) TableName() string { return "batches" }

// BatchItemModel is the gorm row for one batch item.
type BatchItemModel struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	BatchID     string            `gorm:"type:uuid;not null;index"`
	ItemOrder   int               `gorm:"not null"`
	Content     string            `gorm:"type:text;not null"`
	Status      domain.ItemStatus `gorm:"type:varchar(20);not null"`
	UnitID      *string           `gorm:"type:uuid"`
	OutputPath  *string           `gorm:"type:text"`
	LastError   *string           `gorm:"type:text"`
	RetryCount  int               `gorm:"not null;default:0"`
	CompletedAt *time.Time
}

func (BatchItemModel) TableName() string { return "batch_items" }

// UnitModel is the gorm row for one generation run. Scenes and the critic
// score are stored as JSON documents.
type UnitModel struct {
	ID           string            `gorm:"type:uuid;primaryKey"`
	BatchID      *string           `gorm:"type:uuid;index"`
	ItemID       *string           `gorm:"type:uuid"`
	Status       domain.UnitStatus `gorm:"type:varchar(20);not null"`
	ConfigJSON   []byte            `gorm:"type:jsonb;column:config"`
	ScenesJSON   []byte            `gorm:"type:jsonb;column:scenes"`
	ScoreJSON    []byte            `gorm:"type:jsonb;column:score"`
	RetryCount   int               `gorm:"not null;default:0"`
	ErrorMessage *string           `gorm:"type:text"`
	OutputRef    *string           `gorm:"type:text"`
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

func (UnitModel) TableName() string { return "units" }

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	model := &BatchModel{
		ID:                b.ID,
		Name:              b.Name,
		Status:            b.Status,
		Platform:          b.Config.Platform,
		TargetDurationSec: b.Config.TargetDurationSec,
		Voice:             b.Config.Voice,
		Genre:             b.Config.Genre,
		Language:          b.Config.Language,
		Audience:          b.Config.Audience,
		MaxParallel:       b.MaxParallel,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
		LockedAt:          b.LockedAt,
		StartedAt:         b.StartedAt,
		CompletedAt:       b.CompletedAt,
	}

	model.Items = make([]BatchItemModel, 0, len(b.Items))
	for i := range b.Items {
		item := b.Items[i]
		model.Items = append(model.Items, BatchItemModel{
			ID:          item.ID,
			BatchID:     b.ID,
			ItemOrder:   item.Order,
			Content:     item.Content,
			Status:      item.Status,
			UnitID:      item.UnitID,
			OutputPath:  item.OutputPath,
			LastError:   item.LastError,
			RetryCount:  item.RetryCount,
			CompletedAt: item.CompletedAt,
		})
	}
	return model
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	b := &domain.Batch{
		ID:     m.ID,
		Name:   m.Name,
		Status: m.Status,
		Config: domain.BatchConfig{
			Platform:          m.Platform,
			TargetDurationSec: m.TargetDurationSec,
			Voice:             m.Voice,
			Genre:             m.Genre,
			Language:          m.Language,
			Audience:          m.Audience,
		},
		MaxParallel: m.MaxParallel,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		LockedAt:    m.LockedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}

	b.Items = make([]domain.BatchItem, 0, len(m.Items))
	for i := range m.Items {
		item := m.Items[i]
		b.Items = append(b.Items, domain.BatchItem{
			ID:          item.ID,
			Order:       item.ItemOrder,
			Content:     item.Content,
			Status:      item.Status,
			UnitID:      item.UnitID,
			OutputPath:  item.OutputPath,
			LastError:   item.LastError,
			RetryCount:  item.RetryCount,
			CompletedAt: item.CompletedAt,
		})
	}
	return b
}

func unitModelFromDomain(u *domain.Unit) (*UnitModel, error) {
	if u == nil {
		return nil, nil
	}

	configJSON, err := json.Marshal(u.Config)
	if err != nil {
		return nil, fmt.Errorf("encode unit config: %w", err)
	}
	scenesJSON, err := json.Marshal(u.Scenes)
	if err != nil {
		return nil, fmt.Errorf("encode unit scenes: %w", err)
	}

	var scoreJSON []byte
	if u.Score != nil {
		scoreJSON, err = json.Marshal(u.Score)
		if err != nil {
			return nil, fmt.Errorf("encode unit score: %w", err)
		}
	}

	return &UnitModel{
		ID:           u.ID,
		BatchID:      u.BatchID,
		ItemID:       u.ItemID,
		Status:       u.Status,
		ConfigJSON:   configJSON,
		ScenesJSON:   scenesJSON,
		ScoreJSON:    scoreJSON,
		RetryCount:   u.RetryCount,
		ErrorMessage: u.ErrorMessage,
		OutputRef:    u.OutputRef,
		CreatedAt:    u.CreatedAt,
		StartedAt:    u.StartedAt,
		CompletedAt:  u.CompletedAt,
	}, nil
}

func unitModelToDomain(m *UnitModel) (*domain.Unit, error) {
	if m == nil {
		return nil, nil
	}

	u := &domain.Unit{
		ID:           m.ID,
		BatchID:      m.BatchID,
		ItemID:       m.ItemID,
		Status:       m.Status,
		RetryCount:   m.RetryCount,
		ErrorMessage: m.ErrorMessage,
		OutputRef:    m.OutputRef,
		CreatedAt:    m.CreatedAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}

	if len(m.ConfigJSON) > 0 {
		if err := json.Unmarshal(m.ConfigJSON, &u.Config); err != nil {
			return nil, fmt.Errorf("decode unit config: %w", err)
		}
	}
	if len(m.ScenesJSON) > 0 {
		if err := json.Unmarshal(m.ScenesJSON, &u.Scenes); err != nil {
			return nil, fmt.Errorf("decode unit scenes: %w", err)
		}
	}
	if len(m.ScoreJSON) > 0 {
		u.Score = &domain.CriticScore{}
		if err := json.Unmarshal(m.ScoreJSON, u.Score); err != nil {
			return nil, fmt.Errorf("decode unit score: %w", err)
		}
	}
	return u, nil
}
