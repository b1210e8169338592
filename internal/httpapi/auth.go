package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/argon2"

	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/pkg/config"
)

// AdminSecretHeader carries the admin secret.
const AdminSecretHeader = "X-Admin-Secret"

type authUserKey struct{}

// AuthTelegramID returns the Telegram user id verified from init data, 0 when absent.
func AuthTelegramID(ctx context.Context) int64 {
	id, _ := ctx.Value(authUserKey{}).(int64)
	return id
}

// requireInitData verifies the Mini App init data sent as the init_data body field or
// query parameter: missing is 401, a bad signature or an expired auth_date is 403.
func (a *API) requireInitData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := initDataFrom(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "error": "Authentication required"})
			return
		}

		data, err := telegram.ValidateInitData(raw, a.bot.Token, a.bot.InitDataMaxAge, a.now())
		if err != nil {
			a.log.Warn("init data rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			writeJSON(w, http.StatusForbidden, envelope{"success": false, "error": "Invalid authentication"})
			return
		}

		ctx := context.WithValue(r.Context(), authUserKey{}, data.User.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// initDataFrom peeks at the JSON body without consuming it for the handler.
func initDataFrom(r *http.Request) (string, error) {
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return "", apperrors.NewValidationError("unreadable body")
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		var probe struct {
			InitData string `json:"init_data"`
		}
		if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &probe) == nil && probe.InitData != "" {
			return probe.InitData, nil
		}
	}
	return r.URL.Query().Get("init_data"), nil
}

// telegramID resolves the subject of a user request: the requested id, or the
// authenticated one when none was sent. Acting on another user's id is forbidden.
func telegramID(ctx context.Context, requested int64) (int64, error) {
	authID := AuthTelegramID(ctx)
	switch {
	case requested == 0 && authID == 0:
		return 0, apperrors.NewValidationError("Telegram ID required")
	case requested == 0:
		return authID, nil
	case authID != 0 && requested != authID:
		return 0, apperrors.NewForbiddenError("telegram_id does not match init data")
	}
	return requested, nil
}

// requireAdmin checks X-Admin-Secret. Only the cron-driven charge-daily route also
// accepts ?secret=, because the scheduler cannot set headers.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.admin.configured() {
			a.log.Error("admin request rejected: admin secret is not configured", slog.String("path", r.URL.Path))
			writeJSON(w, http.StatusInternalServerError, envelope{"success": false, "error": "Admin secret not configured"})
			return
		}

		secret := r.Header.Get(AdminSecretHeader)
		if secret == "" && strings.HasSuffix(r.URL.Path, "/charge-daily") {
			secret = r.URL.Query().Get("secret")
		}
		if !a.admin.verify(secret) {
			a.log.Warn("admin secret mismatch", slog.String("path", r.URL.Path))
			writeJSON(w, http.StatusForbidden, envelope{"success": false, "error": "Unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// argon2id parameters for HashAdminSecret.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16
)

type argonHash struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

type adminAuth struct {
	plain []byte
	hash  *argonHash
}

func newAdminAuth(cfg config.AdminConfig) *adminAuth {
	auth := &adminAuth{}
	if cfg.SecretHash != "" {
		if h, err := parseArgonHash(cfg.SecretHash); err == nil {
			auth.hash = h
		}
	}
	if auth.hash == nil && cfg.Secret != "" {
		sum := sha256.Sum256([]byte(cfg.Secret))
		auth.plain = sum[:]
	}
	return auth
}

func (a *adminAuth) configured() bool {
	return a != nil && (a.hash != nil || a.plain != nil)
}

// verify compares in constant time. Both sides of the plain comparison are digests so
// the secret length does not leak either.
func (a *adminAuth) verify(secret string) bool {
	if secret == "" || !a.configured() {
		return false
	}
	if a.hash != nil {
		key := argon2.IDKey([]byte(secret), a.hash.salt, a.hash.time, a.hash.memory, a.hash.threads, uint32(len(a.hash.key)))
		return subtle.ConstantTimeCompare(key, a.hash.key) == 1
	}
	sum := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(sum[:], a.plain) == 1
}

// HashAdminSecret returns the PHC-formatted argon2id hash of secret for admin.secret_hash.
func HashAdminSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("admin secret is empty")
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func parseArgonHash(encoded string) (*argonHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, errors.New("not an argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}

	h := &argonHash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return nil, fmt.Errorf("parse argon2 params: %w", err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(h.key) == 0 {
		return nil, errors.New("empty argon2 key")
	}
	return h, nil
}
