// Package auth implements JWT/bcrypt login and project-membership lookup.
// Grounded on the teacher's auth.go: the token generation/validation
// machinery is domain-agnostic and is kept close to verbatim; the
// teacher's hardcoded two-user "partnerships" table (GetPartnerUserID)
// is generalized to arbitrary N-user project membership
// (ProjectMemberIDs).
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenDuration = 15 * time.Minute
const refreshTokenDuration = 30 * 24 * time.Hour

type contextKey string

const userContextKey = contextKey("userID")

// AccessTokenClaims is the JWT access token payload.
type AccessTokenClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the login response body.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
	DisplayName  string `json:"display_name"`
}

// RefreshTokenRequest is the token-refresh request body.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokenResponse is the token-refresh response body.
type RefreshTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// VerifyResponse is HandleVerify's response body.
type VerifyResponse struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func generateAccessToken(userID int64, secret []byte) (string, error) {
	expirationTime := time.Now().Add(accessTokenDuration)
	claims := &AccessTokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "bonscompte",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func generateRefreshTokenValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.URLEncoding.EncodeToString(hash[:])
}

func storeRefreshToken(db *sql.DB, userID int64, tokenValue string) error {
	hashedToken := hashToken(tokenValue)
	expiresAt := time.Now().Add(refreshTokenDuration)

	if _, err := db.Exec("DELETE FROM refresh_tokens WHERE user_id = ?", userID); err != nil {
		slog.Error("failed to delete old refresh tokens", "user_id", userID, "err", err)
	}

	_, err := db.Exec(`
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES (?, ?, ?)
	`, userID, hashedToken, expiresAt)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func validateRefreshToken(db *sql.DB, tokenValue string) (int64, error) {
	hashedToken := hashToken(tokenValue)
	var userID int64
	var expiresAt time.Time

	err := db.QueryRow(`
		SELECT user_id, expires_at FROM refresh_tokens WHERE token_hash = ?
	`, hashedToken).Scan(&userID, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.New("invalid refresh token")
		}
		return 0, fmt.Errorf("refresh token lookup: %w", err)
	}
	if time.Now().After(expiresAt) {
		if _, delErr := db.Exec("DELETE FROM refresh_tokens WHERE token_hash = ?", hashedToken); delErr != nil {
			slog.Error("failed to delete expired refresh token", "user_id", userID, "err", delErr)
		}
		return 0, errors.New("refresh token expired")
	}
	return userID, nil
}

// HandleLogin authenticates a user and issues an access/refresh token pair.
func HandleLogin(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if req.Username == "" || req.Password == "" {
			http.Error(w, "username and password are required", http.StatusBadRequest)
			return
		}

		var storedHash, displayName string
		var userID int64
		err := db.QueryRow("SELECT id, password_hash, display_name FROM users WHERE username = ?", req.Username).
			Scan(&userID, &storedHash, &displayName)
		if err != nil {
			if err == sql.ErrNoRows {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
			} else {
				slog.Error("database error during login", "err", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.Password)); err != nil {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		secret := []byte(os.Getenv("JWT_SECRET_KEY"))
		if len(secret) == 0 {
			slog.Error("JWT_SECRET_KEY is not set")
			http.Error(w, "service configuration incomplete", http.StatusInternalServerError)
			return
		}

		accessToken, err := generateAccessToken(userID, secret)
		if err != nil {
			slog.Error("failed to generate access token", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		refreshTokenValue, err := generateRefreshTokenValue()
		if err != nil {
			slog.Error("failed to generate refresh token", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if err := storeRefreshToken(db, userID, refreshTokenValue); err != nil {
			slog.Error("failed to store refresh token", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(LoginResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshTokenValue,
			UserID:       userID,
			DisplayName:  displayName,
		})
	}
}

// AuthMiddleware validates the JWT access token from the Authorization
// header and places the user id in the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := []byte(os.Getenv("JWT_SECRET_KEY"))
		if len(secret) == 0 {
			slog.Error("JWT_SECRET_KEY is not set", "url", r.URL)
			http.Error(w, "service configuration incomplete", http.StatusInternalServerError)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "authorization header format must be Bearer {token}", http.StatusUnauthorized)
			return
		}
		tokenString := parts[1]

		claims := &AccessTokenClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				http.Error(w, "token expired", http.StatusUnauthorized)
			} else {
				http.Error(w, "invalid token", http.StatusUnauthorized)
			}
			return
		}
		if !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		accessTokenClaims, ok := token.Claims.(*AccessTokenClaims)
		if !ok || accessTokenClaims.UserID <= 0 {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, accessTokenClaims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext retrieves the authenticated user id from a request
// context populated by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userContextKey).(int64)
	return userID, ok
}

// GenerateTestJWT issues an access token outside the login flow, for tests.
func GenerateTestJWT(userID int64) (string, error) {
	secret := []byte(os.Getenv("JWT_SECRET_KEY"))
	if len(secret) == 0 {
		return "", errors.New("JWT_SECRET_KEY not set for test JWT generation")
	}
	return generateAccessToken(userID, secret)
}

// HandleRefresh exchanges a valid refresh token for a new access token.
func HandleRefresh(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()
		if req.RefreshToken == "" {
			http.Error(w, "refresh token is required", http.StatusBadRequest)
			return
		}

		userID, err := validateRefreshToken(db, req.RefreshToken)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		secret := []byte(os.Getenv("JWT_SECRET_KEY"))
		if len(secret) == 0 {
			slog.Error("JWT_SECRET_KEY is not set")
			http.Error(w, "service configuration incomplete", http.StatusInternalServerError)
			return
		}
		newAccessToken, err := generateAccessToken(userID, secret)
		if err != nil {
			slog.Error("failed to generate access token during refresh", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RefreshTokenResponse{AccessToken: newAccessToken})
	}
}

// HandleVerify returns basic identity info for the caller's access token.
func HandleVerify(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "authentication context error", http.StatusInternalServerError)
			return
		}
		var displayName string
		err := db.QueryRow("SELECT display_name FROM users WHERE id = ?", userID).Scan(&displayName)
		if err != nil {
			if err == sql.ErrNoRows {
				http.Error(w, "user not found", http.StatusUnauthorized)
			} else {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VerifyResponse{UserID: userID, DisplayName: displayName})
	}
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// ProjectMemberIDs returns every user id with membership in projectID,
// generalizing the teacher's two-user GetPartnerUserID (a UNION over the
// fixed user1_id/user2_id partnerships table) to an arbitrary-size
// project_members join table.
func ProjectMemberIDs(q Querier, projectID string) ([]int64, error) {
	rows, err := q.Query("SELECT user_id FROM project_members WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("query project members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsProjectMember reports whether userID belongs to projectID.
func IsProjectMember(q Querier, projectID string, userID int64) (bool, error) {
	var exists int
	err := q.QueryRow("SELECT 1 FROM project_members WHERE project_id = ? AND user_id = ?", projectID, userID).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check project membership: %w", err)
	}
	return true, nil
}

// RegisterUserRequest is the request body for registering a single user
// account, generalizing the teacher's paired
// PartnerRegistrationRequest(User1, User2) to one-at-a-time registration;
// project membership lives separately in the project_members table, which
// this package only reads (ProjectMemberIDs, IsProjectMember).
type RegisterUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// RegisterUserResponse is HandleRegisterUser's response body.
type RegisterUserResponse struct {
	UserID int64 `json:"user_id"`
}

// HandleRegisterUser creates a single login-capable user account.
func HandleRegisterUser(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if req.Username == "" || req.Password == "" || req.DisplayName == "" {
			http.Error(w, "username, password, and display_name are required", http.StatusBadRequest)
			return
		}
		if len(req.Password) < 6 {
			http.Error(w, "password must be at least 6 characters long", http.StatusBadRequest)
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("failed to hash password", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		res, err := db.Exec("INSERT INTO users (username, password_hash, display_name) VALUES (?, ?, ?)",
			req.Username, string(hashed), req.DisplayName)
		if err != nil {
			if isUniqueConstraintErr(err) {
				http.Error(w, "username already exists", http.StatusConflict)
				return
			}
			slog.Error("failed to insert user", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		userID, err := res.LastInsertId()
		if err != nil {
			slog.Error("failed to read last insert id", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(RegisterUserResponse{UserID: userID})
	}
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
}
