package user

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/lms/core"
)

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate, translator
}

func translateErrs(t *testing.T, err error, translator ut.Translator) map[string]string {
	t.Helper()
	vErrs, ok := err.(validator.ValidationErrors)
	require.True(t, ok, "expected validator.ValidationErrors, got %T", err)
	got := make(map[string]string, len(vErrs))
	for _, vErr := range vErrs {
		got[vErr.Field()] = vErr.Translate(translator)
	}
	return got
}

func writeCommonPasswords(t *testing.T, pwds ...string) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "common-passwords.txt.gz")
	file, err := os.Create(fp)
	require.NoError(t, err)
	gzw := gzip.NewWriter(file)
	for _, pwd := range pwds {
		_, err = gzw.Write([]byte(pwd + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gzw.Close())
	require.NoError(t, file.Close())
	return fp
}

func TestNewUserValidation(t *testing.T) {
	validate, translator := newValidator()

	require.NoError(t, LoadCommonPasswords(writeCommonPasswords(t, "Summer2020!", "letmein")))
	t.Cleanup(func() { commonPasswords = nil })

	valid := func(mods ...func(*NewUser)) NewUser {
		nu := NewUser{
			Name:            "Alice Mwamba",
			Username:        "alice",
			Email:           "alice@test.cd",
			Password:        "Pwd.1234",
			PasswordConfirm: "Pwd.1234",
			Roles:           []string{RoleStaff},
		}
		for _, mod := range mods {
			mod(&nu)
		}
		return nu
	}
	pwd := func(p string) func(*NewUser) {
		return func(nu *NewUser) {
			nu.Password = p
			nu.PasswordConfirm = p
		}
	}

	tests := []struct {
		name       string
		data       NewUser
		wantFields map[string]string
	}{
		{name: "valid", data: valid()},
		{name: "valid without username", data: valid(func(nu *NewUser) { nu.Username = "" })},
		{
			name: "no username nor email",
			data: valid(func(nu *NewUser) { nu.Username = ""; nu.Email = "" }),
			wantFields: map[string]string{
				"username": "one of username or email is required",
				"email":    "one of username or email is required",
			},
		},
		{
			name:       "unknown role",
			data:       valid(func(nu *NewUser) { nu.Roles = []string{"instructor"} }),
			wantFields: map[string]string{"roles": "invalid roles"},
		},
		{
			name:       "password mismatch",
			data:       valid(func(nu *NewUser) { nu.PasswordConfirm = "Pwd.12345" }),
			wantFields: map[string]string{"password_confirm": "password_confirm must be equal to Password"},
		},
		{
			name:       "short password",
			data:       valid(pwd("Pw.1")),
			wantFields: map[string]string{"password": "password must contain at least 8 characters"},
		},
		{
			name:       "password with whitespace",
			data:       valid(pwd("Pwd. 1234")),
			wantFields: map[string]string{"password": "password must not contain whitespace"},
		},
		{
			name:       "numeric password",
			data:       valid(pwd("1234567890")),
			wantFields: map[string]string{"password": "password cannot be entirely numeric"},
		},
		{
			name:       "simple password",
			data:       valid(pwd("password1")),
			wantFields: map[string]string{"password": pwdComplexityText},
		},
		{
			name:       "password similar to name",
			data:       valid(func(nu *NewUser) { nu.Name = "Jonathan Doe" }, pwd("Jonathan1!")),
			wantFields: map[string]string{"password": "password cannot be similar to user attributes"},
		},
		{
			name:       "common password",
			data:       valid(pwd("Summer2020!")),
			wantFields: map[string]string{"password": "password is too common"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.data)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantFields, translateErrs(t, err, translator))
		})
	}
}

func TestResetUserPasswordValidation(t *testing.T) {
	validate, translator := newValidator()

	err := ResetUserPassword{Token: "t", UID: "u", Password: "Pwd.1234", PasswordConfirm: "Pwd.1234"}.Validate(validate)
	assert.NoError(t, err)

	err = ResetUserPassword{Token: "t", UID: "u", Password: "short", PasswordConfirm: "short"}.Validate(validate)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"password": "password must contain at least 8 characters"}, translateErrs(t, err, translator))
}

func TestLoadCommonPasswords(t *testing.T) {
	t.Cleanup(func() { commonPasswords = nil })

	assert.Error(t, LoadCommonPasswords(filepath.Join(t.TempDir(), "missing.txt")))

	require.NoError(t, LoadCommonPasswords(writeCommonPasswords(t, "Letmein", "  qwerty  ", "")))
	assert.Equal(t, []string{"letmein", "qwerty"}, commonPasswords)
	assert.True(t, isCommonPassword("LetMeIn"))
	assert.False(t, isCommonPassword("Pwd.1234"))
}
