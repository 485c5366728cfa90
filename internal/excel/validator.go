package excel

import (
	"context"
	stderrors "errors"

	"grading-assistant-core/internal/model"
	"grading-assistant-core/pkg/errors"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate checks imported rows before they reach the store. Timestamps
// must already be assigned.
func (v *Validator) Validate(ctx context.Context, records []model.GradingRecord) error {
	if len(records) == 0 {
		return errors.ErrSchemaValidation
	}

	for _, rec := range records {
		if err := v.validateRecord(rec); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateRecord(rec model.GradingRecord) error {
	if rec.StudentName == "" {
		return errors.ValidationError{
			Field:   "student_name",
			Value:   rec.StudentName,
			Message: "student name cannot be empty",
		}
	}

	if rec.Score < 0 || (rec.MaxScore > 0 && rec.Score > rec.MaxScore) {
		return errors.ValidationError{
			Field:   "score",
			Value:   rec.Score,
			Message: "must be between 0 and max_score",
		}
	}

	if err := v.validate.Struct(rec.ToInput()); err != nil {
		var ve validator.ValidationErrors
		if stderrors.As(err, &ve) && len(ve) > 0 {
			return errors.ValidationError{
				Field:   ve[0].Field(),
				Value:   ve[0].Value(),
				Message: "failed " + ve[0].Tag() + " check",
			}
		}
		return err
	}

	return nil
}
