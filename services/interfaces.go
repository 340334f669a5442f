package services

import "context"

//go:generate mockgen -destination=mock_services.go -package=services leakwatch-api/services RelayClient,Predictor

// RelayClient forwards a pump command to the physical relay.
type RelayClient interface {
	SendRelayCommand(ctx context.Context, status string) error
}

// Predictor runs the external leak prediction program.
type Predictor interface {
	PredictLeak(ctx context.Context) (string, error)
}
