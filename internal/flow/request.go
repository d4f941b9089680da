package flow

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/mj-status/forecaster/internal/forecast"
	"github.com/mj-status/forecaster/pkg/config"
)

const (
	ActionFit     = "fit"
	ActionPredict = "predict"
)

var validate = validator.New()

// Action selects the run path and the artifact days it reads. Start and End are day offsets back
// from now; nil picks the default of the action.
type Action struct {
	Type  string `json:"type" validate:"oneof=fit predict"`
	Start *int   `json:"start,omitempty" validate:"omitempty,gte=0"`
	End   *int   `json:"end,omitempty" validate:"omitempty,gte=0"`
}

// Offsets returns the effective start and end offsets.
func (a Action) Offsets() (start, end int) {
	start, end = 28, 0
	if a.Type == ActionPredict {
		start = 1
	}
	if a.Start != nil {
		start = *a.Start
	}
	if a.End != nil {
		end = *a.End
	}
	return start, end
}

type RunRequest struct {
	Model  string              `json:"model" validate:"required"`
	Action Action              `json:"action"`
	// Paths overrides the configured prefixes. It is never read from a request body.
	Paths *config.PathsConfig `json:"-"`
	// Steps is the forecast horizon; 0 uses the configured default.
	Steps int `json:"steps" validate:"gte=0"`
}

func (r RunRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid run request: %w", err)
	}
	if !slices.Contains(forecast.Names(), r.Model) {
		return fmt.Errorf("invalid run request: %w: %q", forecast.ErrUnknownModel, r.Model)
	}
	if start, end := r.Action.Offsets(); end > start {
		return fmt.Errorf("invalid run request: end offset %d after start offset %d", end, start)
	}
	return nil
}
