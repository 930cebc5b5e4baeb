package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// messages maps "Field.tag", or "Struct.Field.tag" for a per-request
// override, to the text shown to clients.
var messages = map[string]string{
	"Name.required":              "Name is required",
	"Name.notblank":              "Name is required",
	"Registration.Name.required": "Please add name",
	"Zomato.required":            "Enter correct URL",
	"Zomato.http_url":            "Enter correct URL",
	"Food.required":              "Food is required",
	"Email.required":             "Please include a valid email",
	"Email.email":                "Please include a valid email",
	"Password.required":          "Password is required",
	"Password.min":               "Please enter a password with 6 or more characters",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// firstViolation converts validator output into a ValidationError for the
// first failing field, in struct field order.
func firstViolation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid(err.Error())
	}

	fe := verrs[0]
	top, _, _ := strings.Cut(fe.StructNamespace(), ".")
	if msg, ok := messages[top+"."+fe.Field()+"."+fe.Tag()]; ok {
		return invalid(msg)
	}
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return invalid(msg)
	}
	return invalid(fmt.Sprintf("%s is invalid", fe.Field()))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

const msgInvalidDate = "Enter a valid date"

// Dates must render as RFC 3339, which only has four digit years.
var (
	minDate = time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDate = time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC)
)

// parseDate accepts a JSON date string in one of dateLayouts or a number of
// milliseconds since the epoch. ok is false when the value is absent, null
// or an empty string.
func parseDate(raw json.RawMessage) (t time.Time, ok bool, err error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, false, nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) ||
			ms < float64(minDate.UnixMilli()) || ms > float64(maxDate.UnixMilli()) {
			return time.Time{}, false, invalid(msgInvalidDate)
		}
		return normalizeDate(time.UnixMilli(int64(ms))), true, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, false, invalid(msgInvalidDate)
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return time.Time{}, false, nil
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, str); err == nil {
			parsed = normalizeDate(parsed)
			if parsed.Before(minDate) || parsed.After(maxDate) {
				return time.Time{}, false, invalid(msgInvalidDate)
			}
			return parsed, true, nil
		}
	}
	return time.Time{}, false, invalid(msgInvalidDate)
}

// normalizeDate matches what MongoDB stores: UTC at millisecond precision.
func normalizeDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
