package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInitDataMissing means no init data was supplied.
	ErrInitDataMissing = errors.New("init data missing")
	// ErrInitDataInvalid means the hash did not verify or the payload is malformed.
	ErrInitDataInvalid = errors.New("init data invalid")
	// ErrInitDataExpired means auth_date is older than the allowed age.
	ErrInitDataExpired = errors.New("init data expired")
)

// WebAppUser is the user object embedded in Mini App init data.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

// InitData is a verified init data payload.
type InitData struct {
	User     WebAppUser
	AuthDate time.Time
	Raw      url.Values
}

// ValidateInitData verifies the Mini App init data signature:
// secret = HMAC_SHA256("WebAppData", botToken), hash = hex(HMAC_SHA256(secret, data_check_string)).
// An empty botToken verifies nothing. auth_date is required; maxAge <= 0 disables the age check.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrInitDataMissing
	}
	if botToken == "" {
		return nil, fmt.Errorf("%w: bot token not configured", ErrInitDataInvalid)
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitDataInvalid, err)
	}

	received := values.Get("hash")
	if received == "" {
		return nil, fmt.Errorf("%w: hash missing", ErrInitDataInvalid)
	}

	expected := signInitData(values, botToken)
	if !hmac.Equal([]byte(expected), []byte(received)) {
		return nil, ErrInitDataInvalid
	}

	data := &InitData{Raw: values}

	sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil || sec <= 0 {
		return nil, fmt.Errorf("%w: auth_date missing or malformed", ErrInitDataInvalid)
	}
	data.AuthDate = time.Unix(sec, 0).UTC()
	if maxAge > 0 && now.Sub(data.AuthDate) > maxAge {
		return nil, ErrInitDataExpired
	}

	if u := values.Get("user"); u != "" {
		if err := json.Unmarshal([]byte(u), &data.User); err != nil {
			return nil, fmt.Errorf("%w: user: %v", ErrInitDataInvalid, err)
		}
	}

	return data, nil
}

// SignInitData returns values encoded with a valid hash for botToken.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		if k != "hash" {
			signed[k] = v
		}
	}
	signed.Set("hash", signInitData(signed, botToken))
	return signed.Encode()
}

func signInitData(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
