package report

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/masomo/lms/core"
)

var (
	reportKindTag  = "reportkind"
	reportKindText = "unknown report kind"
)

// InitValidators registers the report validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(reportKindTag, reportKindValidation)
	core.RegisterCustomTranslation(validate, translator, reportKindTag, reportKindText)
}

func reportKindValidation(fl validator.FieldLevel) bool {
	kind := fl.Field().String()
	for _, k := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}
