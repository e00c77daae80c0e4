package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	tokenSalt     = []byte("masomo.lms.core.user.token_gen")
	tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// tokenGenerator makes and verifies one-shot password reset tokens.
// A token is "<base32 day stamp>-<signature>"; it becomes invalid as soon as the user's
// password or last login changes, or once `timeout` has elapsed.
type tokenGenerator struct {
	key     [32]byte
	timeout time.Duration
	now     func() time.Time
}

func newTokenGenerator(secretKey string, timeout time.Duration) *tokenGenerator {
	return &tokenGenerator{
		key:     sha256.Sum256(append(append([]byte{}, tokenSalt...), secretKey...)),
		timeout: timeout,
		now:     time.Now,
	}
}

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// MakeToken generates a password reset token for a given User.
func (tg *tokenGenerator) MakeToken(usr User) (string, error) {
	return tg.makeTokenWithDayStamp(usr, daysSince2001(tg.now()))
}

// VerifyToken checks that a password reset token for a given User is valid.
func (tg *tokenGenerator) VerifyToken(usr User, token string) error {
	if token == "" {
		return errInvalidToken
	}
	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}

	data, err := tokenEncoding.DecodeString(parts[0])
	if err != nil {
		return errInvalidToken
	}
	stamp, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	expected, err := tg.makeTokenWithDayStamp(usr, stamp)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 0 {
		return errInvalidToken
	}

	if daysSince2001(tg.now())-stamp > int(tg.timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func (tg *tokenGenerator) makeTokenWithDayStamp(usr User, stamp int) (string, error) {
	mac := hmac.New(sha256.New, tg.key[:])
	if _, err := mac.Write(hashValue(usr, stamp)); err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s-%s", tokenEncoding.EncodeToString([]byte(strconv.Itoa(stamp))), sig), nil
}

func daysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

// hashValue binds the token to state that changes once the token is used.
func hashValue(usr User, stamp int) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	val.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		val.WriteString(usr.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(stamp))
	return val.Bytes()
}
