package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxRequestBody = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// AskRequest is the body of POST /ask and of websocket ask messages.
type AskRequest struct {
	Query      string `json:"query" validate:"required,max=4000"`
	Mode       string `json:"mode" validate:"omitempty,oneof=reflect scroll quote toad crypt rune"`
	Encryption string `json:"encryption" validate:"omitempty,max=64"`
	UserHash   string `json:"user_hash" validate:"omitempty,max=128"`
	PondMode   string `json:"pond_mode" validate:"omitempty,max=16"`
}

// MemoryRequest is the body of the /memory endpoints.
type MemoryRequest struct {
	UserHash string `json:"user_hash" validate:"required,max=128"`
}

// decode reads a size-limited JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid request body")
	}
	return validateStruct(v)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, formatFieldError(e))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
