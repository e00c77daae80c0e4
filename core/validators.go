package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/robfig/cron/v3"
)

const requiredText = "this field is required"

var alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

// validationRule is a custom validation tag along with its english error text.
type validationRule struct {
	tag  string
	text string
	fn   validator.Func
}

var globalRules = []validationRule{
	{tag: "alphanum_", text: "only alphanumeric characters and underscores are allowed", fn: alphaNumUnderValidation},
	{tag: "notblank", text: "this field cannot be blank", fn: notBlankValidation},
	{tag: "cron", text: "invalid cron schedule", fn: cronValidation},
}

// NewTranslator returns the english translator used for validation errors.
func NewTranslator() ut.Translator {
	locale := en.New()
	translator, _ := ut.New(locale, locale).GetTranslator("en")
	return translator
}

// InitValidators registers the default english translations and the validators shared by every package.
// Errors are keyed by JSON field names.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
	validate.RegisterTagNameFunc(jsonFieldName)

	for _, rule := range globalRules {
		_ = validate.RegisterValidation(rule.tag, rule.fn)
		RegisterCustomTranslation(validate, translator, rule.tag, rule.text)
	}
	for _, tag := range []string{"required", "required_with"} {
		RegisterCustomTranslation(validate, translator, tag, requiredText, true)
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// RegisterCustomTranslation registers `text` as the error message of `tag`.
// Pass override to replace a default translation.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	replace := len(override) > 0 && override[0]
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, replace) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// ParseSchedule parses a standard 5-field cron spec or a descriptor such as "@daily" or "@every 1h".
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func cronValidation(fl validator.FieldLevel) bool {
	_, err := ParseSchedule(fl.Field().String())
	return err == nil
}
