package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mj-status/forecaster/internal/storage/models"
)

var ErrInvalidRecord = errors.New("invalid record")

var validate = validator.New()

const secondsPerDay = 24 * 60 * 60

// ValidateEvents rejects the batch on the first malformed record. An event's timestamp must fall on
// its date, both read in UTC.
func ValidateEvents(records []models.EventRecord) error {
	for i := range records {
		if err := validate.Struct(records[i]); err != nil {
			return fmt.Errorf("%w: event %d (alert %d): %v", ErrInvalidRecord, i, records[i].AlertID, err)
		}
		if off := Offset(records[i]); off < 0 || off >= secondsPerDay {
			return fmt.Errorf("%w: event %d (alert %d): timestamp %s not on date %s", ErrInvalidRecord, i, records[i].AlertID,
				records[i].Timestamp.UTC().Format(time.RFC3339), records[i].Date.UTC().Format(models.DayLayout))
		}
	}
	return nil
}

// ValidateMetrics rejects the batch on the first malformed record.
func ValidateMetrics(records []models.MetricRecord) error {
	for i := range records {
		if err := validate.Struct(records[i]); err != nil {
			return fmt.Errorf("%w: metric %d (%s): %v", ErrInvalidRecord, i, records[i].Name, err)
		}
		if math.IsNaN(records[i].Value) || math.IsInf(records[i].Value, 0) {
			return fmt.Errorf("%w: metric %d (%s): value %v is not finite", ErrInvalidRecord, i, records[i].Name, records[i].Value)
		}
	}
	return nil
}
