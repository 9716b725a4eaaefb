package finalize

import (
	"reflect"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

// Message is the interface command messages must implement
type Message interface {
	Type() string
	Validate() error
}

// FinalizeRequest asks for one completed execution to be finalized.
type FinalizeRequest struct {
	ExecutionID string `json:"execution_id"`
	AppID       string `json:"app_id"`
}

// Type implements Message.
func (FinalizeRequest) Type() string { return "finalize::deployment" }

// Validate implements Message.
func (r FinalizeRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ExecutionID) == "" {
		missing = append(missing, "execution_id")
	}
	if strings.TrimSpace(r.AppID) == "" {
		missing = append(missing, "app_id")
	}
	if len(missing) == 0 {
		return nil
	}
	return apperrors.New("finalize request is missing required fields", apperrors.CategoryValidation).
		WithTextCode(ErrCodeValidationFailed).
		WithMetadata(map[string]any{"missing": missing})
}

func IsNilMessage(msg any) bool {
	if msg == nil {
		return true
	}

	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr {
		return false
	}

	return v.IsNil()
}

// ValidateMessage rejects nil messages and runs Message.Validate when present.
func ValidateMessage[T any](msg T) error {
	if IsNilMessage(msg) {
		return apperrors.New("nil message pointer", apperrors.CategoryValidation).
			WithTextCode("INVALID_MESSAGE")
	}

	if m, ok := any(msg).(Message); ok {
		if err := m.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.CategoryValidation, "message validation failed").
				WithTextCode(ErrCodeValidationFailed)
		}
	}

	return nil
}
