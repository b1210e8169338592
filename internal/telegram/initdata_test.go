package telegram

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:TEST"

func signedInitData(t *testing.T, authDate time.Time) string {
	t.Helper()

	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAE")
	values.Set("user", `{"id":42,"first_name":"Иван","username":"ivan"}`)
	return SignInitData(values, testToken)
}

func TestValidateInitData(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	valid := signedInitData(t, now.Add(-time.Hour))

	tampered, err := url.ParseQuery(valid)
	require.NoError(t, err)
	tampered.Set("user", `{"id":43}`)

	noAuthDate := url.Values{}
	noAuthDate.Set("user", `{"id":42}`)

	forgedValues := url.Values{}
	forgedValues.Set("auth_date", strconv.FormatInt(now.Unix(), 10))
	forgedValues.Set("user", `{"id":999}`)
	forged := SignInitData(forgedValues, "")

	tests := []struct {
		name    string
		raw     string
		token   string
		wantErr error
	}{
		{name: "valid", raw: valid, token: testToken},
		{name: "missing", raw: "", token: testToken, wantErr: ErrInitDataMissing},
		{name: "wrong token", raw: valid, token: "other", wantErr: ErrInitDataInvalid},
		{name: "tampered", raw: tampered.Encode(), token: testToken, wantErr: ErrInitDataInvalid},
		{name: "no hash", raw: "auth_date=1&user=%7B%7D", token: testToken, wantErr: ErrInitDataInvalid},
		{name: "empty token", raw: forged, token: "", wantErr: ErrInitDataInvalid},
		{name: "no auth_date", raw: SignInitData(noAuthDate, testToken), token: testToken, wantErr: ErrInitDataInvalid},
		{name: "zero auth_date", raw: signedInitData(t, time.Unix(0, 0)), token: testToken, wantErr: ErrInitDataInvalid},
		{name: "expired", raw: signedInitData(t, now.Add(-5*time.Hour)), token: testToken, wantErr: ErrInitDataExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ValidateInitData(tt.raw, tt.token, 4*time.Hour, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, int64(42), data.User.ID)
			assert.Equal(t, "ivan", data.User.Username)
			assert.Equal(t, now.Add(-time.Hour).Unix(), data.AuthDate.Unix())
		})
	}
}
