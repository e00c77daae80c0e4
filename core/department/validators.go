package department

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/masomo/lms/core"
)

var (
	deptCodeTag   = "deptcode"
	deptCodeText  = "code may only contain lowercase letters, digits, hyphens and underscores"
	deptCodeRegex = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)
)

// InitValidators registers the department validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(deptCodeTag, deptCodeValidation)
	core.RegisterCustomTranslation(validate, translator, deptCodeTag, deptCodeText)
}

func deptCodeValidation(fl validator.FieldLevel) bool {
	return deptCodeRegex.MatchString(fl.Field().String())
}
