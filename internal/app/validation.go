package app

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

const (
	minDirectoryNameLength = 4
	maxDirectoryNameLength = 90

	minProviderNameLength = 3
	maxProviderNameLength = 255
)

// normalizeDirectoryName applies the naming rules shared by setup and rename.
// An absent or empty name becomes nil.
func normalizeDirectoryName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	normalized := norm.NFC.String(strings.TrimSpace(*name))
	if normalized == "" {
		return nil, nil
	}

	length := utf8.RuneCountInString(normalized)
	if length < minDirectoryNameLength {
		return nil, ErrNameTooShort
	}
	if length > maxDirectoryNameLength {
		return nil, ErrNameTooLong
	}
	return &normalized, nil
}

func validateProviderName(name string) error {
	length := utf8.RuneCountInString(name)
	if length < minProviderNameLength || length > maxProviderNameLength {
		return invalidArgument("provider name must be between %d and %d characters long", minProviderNameLength, maxProviderNameLength)
	}
	return nil
}

// credentialRule constrains the value of one provider auth field.
type credentialRule struct {
	min     int
	max     int
	pattern *regexp.Regexp
}

var defaultCredentialRule = credentialRule{min: 1, max: 255}

// credentialRules holds the constraints for every auth field name the
// upstream providers use. Names missing here use defaultCredentialRule.
var credentialRules = map[string]credentialRule{
	"username":        {min: 4, max: 255},
	"password":        {min: 4, max: 255},
	"type":            {min: 1, max: 64},
	"document_number": {min: 1, max: 32, pattern: regexp.MustCompile(`^[0-9A-Za-z-]+$`)},
}

// validateCredentials checks creds against the auth fields provider declares.
// Interactive fields are supplied when a session is opened and are skipped.
func validateCredentials(provider *domain.Provider, creds domain.Credentials) error {
	expected := make(map[string]struct{}, len(provider.AuthFields))
	for _, field := range provider.AuthFields {
		expected[field.Name] = struct{}{}
		if field.Interactive {
			continue
		}

		value, present := creds.Field(field.Name)
		if !present {
			if field.Optional {
				continue
			}
			return invalidArgument("%s is required by provider '%s'", field.Name, provider.Name)
		}

		rule, ok := credentialRules[field.Name]
		if !ok {
			rule = defaultCredentialRule
		}
		length := utf8.RuneCountInString(value)
		if length < rule.min || length > rule.max {
			return invalidArgument("%s must be between %d and %d characters long", field.Name, rule.min, rule.max)
		}
		if rule.pattern != nil && !rule.pattern.MatchString(value) {
			return invalidArgument("%s has an invalid format", field.Name)
		}
	}

	for name := range creds.AdditionalFields {
		if _, ok := expected[name]; !ok {
			return invalidArgument("%s is not accepted by provider '%s'", name, provider.Name)
		}
	}
	for _, name := range []string{"type", "document_number"} {
		if _, present := creds.Field(name); !present {
			continue
		}
		if _, ok := expected[name]; !ok {
			return invalidArgument("%s is not accepted by provider '%s'", name, provider.Name)
		}
	}
	return nil
}

func validateSessionKey(key string) error {
	if len(key) != SessionKeyLength {
		return invalidArgument("session key must be exactly %d characters long", SessionKeyLength)
	}
	return nil
}

// structValidator wraps validator/v10 and renders failures as invalid argument errors.
type structValidator struct {
	v *validator.Validate
}

func newStructValidator() *structValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &structValidator{v: v}
}

func (s *structValidator) Struct(value interface{}) error {
	err := s.v.Struct(value)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalidArgument("invalid request")
	}
	return invalidArgument("%s", describeFieldError(verrs[0]))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in dd/mm/yyyy format", fe.Field())
	case "uppercase", "alpha":
		return fmt.Sprintf("%s must be an ISO 4217 currency code", fe.Field())
	case "gt", "gte":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), greaterThanParam(fe))
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func greaterThanParam(fe validator.FieldError) string {
	if fe.Tag() == "gte" {
		return fmt.Sprintf("or equal to %s", fe.Param())
	}
	return fe.Param()
}
