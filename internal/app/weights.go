package service

import (
	"context"

	"github.com/okian/offerwise/internal/adapters/repository"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/weights"
)

// Weights returns the active weight set, or nil while the heuristic is used.
func (s *Service) Weights(ctx context.Context) (*model.WeightSet, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.weights.Active(ctx)
}

// Train derives a new weight set. Without a batch it trains on completed
// orders from history.
func (s *Service) Train(ctx context.Context, batch []*model.Order) (weights.TrainResult, error) {
	if err := s.ready(); err != nil {
		return weights.TrainResult{}, err
	}
	if len(batch) == 0 {
		var err error
		batch, err = s.history.ListOrders(ctx, repository.OrderFilter{Status: model.OrderStatusComplete})
		if err != nil {
			return weights.TrainResult{}, err
		}
	}
	res, err := s.weights.Train(ctx, batch)
	if err != nil {
		return res, err
	}
	s.notes.Info("Scoring weights updated.", "")
	return res, nil
}

// ResetWeights drops the trained set and returns to the heuristic.
func (s *Service) ResetWeights(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.weights.Reset(ctx)
}
