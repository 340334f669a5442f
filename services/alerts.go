package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"leakwatch-api/models"

	"gorm.io/gorm"
)

type AlertService struct {
	db *gorm.DB
}

func NewAlertService(db *gorm.DB) *AlertService {
	return &AlertService{db: db}
}

// Resolve marks an alert resolved. Resolving an already resolved alert is a
// no-op; an unknown id is ErrNotFound.
func (s *AlertService) Resolve(ctx context.Context, alertID uint) error {
	if alertID == 0 {
		return invalid("alert_id", "must be a positive integer")
	}

	var alert models.Alert
	err := s.db.WithContext(ctx).Select("alert_id", "resolved").Take(&alert, "alert_id = ?", alertID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("alert %d: %w", alertID, ErrNotFound)
	}
	if err != nil {
		return storageErr("find alert", err)
	}
	if alert.Resolved {
		return nil
	}

	err = s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("alert_id = ?", alertID).
		Update("resolved", true).Error
	if err != nil {
		return storageErr("resolve alert", err)
	}
	alertsResolved.Inc()
	slog.Info("alert resolved", "alert_id", alertID)
	return nil
}
