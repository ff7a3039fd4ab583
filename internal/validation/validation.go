package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxLocationLength bounds free-text location queries, in runes.
const MaxLocationLength = 100

// ErrLocationTooLong is returned when location length exceeds the maximum.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when location contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ErrInvalidCoordinate is returned for unparsable or out-of-range latitude/longitude.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// ErrInvalidRequest wraps struct validation failures.
var ErrInvalidRequest = errors.New("invalid request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		_, err := ValidateLocation(fl.Field().String())
		return err == nil
	})
	return v
}

// EmailRequest is the body of a digest email request. Latitude and Longitude
// are optional and only used when both are present.
type EmailRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Location  string   `json:"location" validate:"omitempty,location"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Token     string   `json:"token"`
}

// Struct validates v against its `validate` tags. Failures wrap ErrInvalidRequest
// and name the offending fields.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "location":
		return name + " contains invalid characters or is too long"
	case "gte", "lte":
		return name + " is out of range"
	}
	return name + " is invalid"
}

// ValidateLocation trims the input, enforces MaxLocationLength and restricts it
// to letters (Unicode), digits, space, comma, period, apostrophe and hyphen.
// An empty result is valid: callers fall back to the default location.
func ValidateLocation(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) > MaxLocationLength {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// isAllowedLocationRune returns true for letters (Unicode), digits, space and , . ' -
func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ParseCoordinates parses optional lat/lon query values. A missing value yields
// nil; a present value must be a finite number within range.
func ParseCoordinates(latRaw, lonRaw string) (lat, lon *float64, err error) {
	lat, err = parseCoordinate("lat", latRaw, 90)
	if err != nil {
		return nil, nil, err
	}
	lon, err = parseCoordinate("lon", lonRaw, 180)
	if err != nil {
		return nil, nil, err
	}
	return lat, lon, nil
}

func parseCoordinate(name, raw string, limit float64) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s %q is not a number", ErrInvalidCoordinate, name, raw)
	}
	if f < -limit || f > limit {
		return nil, fmt.Errorf("%w: %s %v out of range", ErrInvalidCoordinate, name, f)
	}
	return &f, nil
}
