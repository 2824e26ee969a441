package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/ekenegodwins22-eng/verifyhub/internal/middleware"
	"github.com/ekenegodwins22-eng/verifyhub/internal/models"
)

// Identity assertion failures. Both surface to the client as a generic 401.
var (
	ErrInvalidSignature = errors.New("auth: invalid assertion signature")
	ErrMissingIdentity  = errors.New("auth: missing identity payload")
)

// TelegramUser is the identity object embedded in the initData assertion.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type AuthService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// LoginRequest carries the signed assertion. The raw user object is only
// honored when auth.insecure_test_mode is on.
type LoginRequest struct {
	InitData string        `json:"initData"`
	User     *TelegramUser `json:"user,omitempty"`
}

func NewAuthService(db *sql.DB) *AuthService {
	viper.SetDefault("jwt.expiry_hours", 24*7)
	viper.SetDefault("auth.insecure_test_mode", false)

	return &AuthService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// VerifyInitData checks a Telegram WebApp initData assertion against the
// bot token. The detached hash must equal HMAC-SHA256 over the remaining
// key=value pairs, sorted by key and newline-joined, keyed with
// HMAC-SHA256("WebAppData", botToken).
func VerifyInitData(initData, botToken string) (*TelegramUser, error) {
	params, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingIdentity, err)
	}

	providedHash := params.Get("hash")
	if providedHash == "" {
		return nil, ErrInvalidSignature
	}
	params.Del("hash")

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params.Get(key))
	}
	dataCheckString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secretKey := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(dataCheckString))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(providedHash)
	if err != nil || !hmac.Equal(expected, provided) {
		return nil, ErrInvalidSignature
	}

	userStr := params.Get("user")
	if userStr == "" {
		return nil, ErrMissingIdentity
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(userStr), &user); err != nil || user.ID == 0 {
		return nil, ErrMissingIdentity
	}
	return &user, nil
}

// Login verifies the platform assertion, upserts the user and issues a
// session token.
// @Summary Authenticate via Telegram WebApp initData
// @Tags auth
// @Accept json
// @Produce json
// @Router /api/auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	identity, err := s.resolveIdentity(&req, r)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, errMissingInitData) {
			status = http.StatusBadRequest
		}
		SendErrorResponse(w, "Invalid Telegram authentication", status, nil)
		return
	}

	user, err := s.upsertUser(identity)
	if err != nil {
		log.Printf("[AUTH] User upsert failed for telegram id %d: %v", identity.ID, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	token, err := generateJWT(user.ID, user.TelegramID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d (telegram %s)", user.ID, user.TelegramID)
	SendSuccessResponse(w, map[string]any{
		"token": token,
		"user":  user.View(),
	})
}

var errMissingInitData = errors.New("auth: missing initData")

func (s *AuthService) resolveIdentity(req *LoginRequest, r *http.Request) (*TelegramUser, error) {
	if req.InitData != "" {
		botToken := viper.GetString("telegram.bot_token")
		if botToken == "" {
			// Fail closed: an unverifiable assertion is never trusted.
			log.Printf("[AUTH] Rejecting login: no bot token configured")
			return nil, ErrInvalidSignature
		}
		identity, err := VerifyInitData(req.InitData, botToken)
		if err != nil {
			log.Printf("[AUTH] Assertion verification failed from %s: %v", r.RemoteAddr, err)
			return nil, err
		}
		return identity, nil
	}

	if viper.GetBool("auth.insecure_test_mode") && req.User != nil && req.User.ID != 0 {
		log.Printf("[AUTH] Accepting unsigned identity %d (insecure_test_mode)", req.User.ID)
		return req.User, nil
	}

	return nil, errMissingInitData
}

// upsertUser creates the account on first login (balance 0) and refreshes
// display fields on subsequent ones, keeping old values when the assertion
// omits them.
func (s *AuthService) upsertUser(identity *TelegramUser) (*models.User, error) {
	now := time.Now().Unix()
	telegramID := strconv.FormatInt(identity.ID, 10)

	var user models.User
	err := s.db.QueryRow(`
		INSERT INTO users (telegram_id, username, first_name, last_name, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
			last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
			updated_at = EXCLUDED.updated_at
		RETURNING id, telegram_id, username, first_name, last_name, balance, created_at, updated_at`,
		telegramID, identity.Username, identity.FirstName, identity.LastName, now,
	).Scan(&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.LastName,
		&user.Balance, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the authenticated user's account.
// @Summary Get current user
// @Tags auth
// @Produce json
// @Router /api/auth/me [get]
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Not authenticated", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	err := s.db.QueryRow(`
		SELECT id, telegram_id, username, first_name, last_name, balance, created_at, updated_at
		FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.LastName,
		&user.Balance, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[AUTH] Failed to fetch user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to get user", http.StatusInternalServerError, nil)
		return
	}

	SendSuccessResponse(w, map[string]any{"user": user.View()})
}

func generateJWT(userID int64, telegramID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":     userID,
		"telegram_id": telegramID,
		"exp":         time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}
