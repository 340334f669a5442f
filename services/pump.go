package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leakwatch-api/models"

	"gorm.io/gorm"
)

type PumpService struct {
	db        *gorm.DB
	relay     RelayClient
	query     *QueryService
	publisher Publisher
	now       func() time.Time
}

func NewPumpService(db *gorm.DB, relay RelayClient, publisher Publisher) *PumpService {
	if relay == nil {
		relay = NoopRelay{}
	}
	return &PumpService{
		db:        db,
		relay:     relay,
		query:     NewQueryService(db),
		publisher: publisher,
		now:       time.Now,
	}
}

// Record validates and appends a pump command without contacting the relay.
func (s *PumpService) Record(ctx context.Context, status string) (models.PumpCommand, error) {
	if !models.ValidPumpStatus(status) {
		return models.PumpCommand{}, invalid("status", "Invalid status value. Must be ON or OFF.")
	}

	cmd := models.PumpCommand{Status: status, Timestamp: s.now().UTC().Truncate(time.Second)}
	if err := s.db.WithContext(ctx).Create(&cmd).Error; err != nil {
		slog.Error("insert pump command failed", "status", status, "error", err)
		return models.PumpCommand{}, storageErr("insert pump command", err)
	}
	pumpCommands.WithLabelValues(status).Inc()

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, LiveChannel, LiveEvent{Type: EventPump, Data: cmd}); err != nil {
			slog.Warn("live pump publish failed", "error", err)
		}
	}
	return cmd, nil
}

// SetStatus records the command and then forwards it to the relay. The
// recorded command stands even when forwarding fails; that case is reported
// as an ExternalError wrapping ErrRelayUnavailable.
func (s *PumpService) SetStatus(ctx context.Context, status string) (models.PumpCommand, error) {
	cmd, err := s.Record(ctx, status)
	if err != nil {
		return cmd, err
	}

	if err := s.relay.SendRelayCommand(ctx, status); err != nil {
		relayFailures.Inc()
		slog.Error("relay forward failed", "status", status, "command_id", cmd.ID, "error", err)
		return cmd, &ExternalError{Dependency: "relay", Err: fmt.Errorf("%w: %v", ErrRelayUnavailable, err)}
	}
	slog.Info("pump status updated", "status", status, "command_id", cmd.ID)
	return cmd, nil
}

func (s *PumpService) CurrentStatus(ctx context.Context) (string, error) {
	return s.query.CurrentPumpStatus(ctx)
}
