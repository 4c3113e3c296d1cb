package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrConfigInvalid = errors.New("invalid backup configuration")

const timeLayout = "15:04"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != len(timeLayout) {
			return false
		}
		_, err := time.Parse(timeLayout, s)
		return err == nil
	})
	return v
}

var fieldKeys = map[string]string{
	"Enabled":     KeyEnabled,
	"Frequency":   KeyFrequency,
	"Time":        KeyTime,
	"WeeklyDay":   KeyWeeklyDay,
	"MonthlyDay":  KeyMonthlyDay,
	"MaxCount":    KeyMaxCount,
	"AutoCleanup": KeyAutoCleanup,
}

// Validate returns an error wrapping ErrConfigInvalid naming every key out of
// its allowed range.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s=%v fails %s", fieldKeys[fe.StructField()], fe.Value(), describeTag(fe)))
	}
	return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(problems, "; "))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "hhmm":
		return "HH:MM"
	case "oneof":
		return "one of " + fe.Param()
	default:
		return fe.Tag() + "=" + fe.Param()
	}
}
