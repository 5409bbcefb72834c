package serving

import (
	"fmt"
	"math"

	"github.com/diamondlab/pricer/pkg/contract"
	"github.com/diamondlab/pricer/pkg/frame"
)

// Service answers prediction and health queries against a snapshot loaded
// at construction time. A nil snapshot means the process runs degraded:
// health still answers, predictions fail with an explanatory error.
type Service struct {
	snapshot *Snapshot
}

func NewService(snapshot *Snapshot) *Service {
	return &Service{snapshot: snapshot}
}

func (s *Service) Loaded() bool {
	return s.snapshot != nil
}

// Predict runs the alignment pipeline and the model over a record batch,
// returning exactly one price per input record, in input order. Any failure
// returns an error and no partial result.
func (s *Service) Predict(records []frame.Record) ([]float64, *contract.Error) {
	if s.snapshot == nil {
		return nil, contract.NewError(contract.ErrorCodeModelNotLoaded,
			"Model not loaded. Please ensure the model is registered and promoted to Production in the registry.")
	}
	if len(records) == 0 {
		return nil, contract.NewError(contract.ErrorCodeInvalidParameterValue,
			"empty record batch")
	}

	expanded, cerr := frame.Dummies(records, false)
	if cerr != nil {
		return nil, cerr
	}
	aligned := frame.Align(expanded, s.snapshot.Columns)

	prices, err := s.snapshot.Forest.Predict(aligned.Matrix())
	if err != nil {
		return nil, contract.NewError(contract.ErrorCodeInternalError, err.Error())
	}
	for i, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, contract.NewErrorf(contract.ErrorCodeInternalError,
				"non-finite prediction for record %d", i)
		}
	}
	return prices, nil
}

// Health reports liveness and whether the model is loaded. It never
// attempts a (re)load.
func (s *Service) Health() contract.HealthResponse {
	status := contract.ModelStatusNotLoaded
	message := "Diamond Price Prediction API is running"
	if s.snapshot != nil {
		status = contract.ModelStatusLoaded
		message = fmt.Sprintf("Diamond Price Prediction API is running; serving %s version %d (%s)",
			s.snapshot.Name, s.snapshot.Version, s.snapshot.Stage)
	}
	return contract.HealthResponse{
		Status:      "running",
		ModelStatus: status,
		Message:     message,
	}
}
