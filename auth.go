package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the username does not exist so a
// failed lookup costs the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)

type credentials struct {
	ID           int
	PasswordHash string
	AuthToken    string
}

// authenticate checks username/password and returns the user's id and token.
// Unknown users and wrong passwords are the same errUnauthorized.
func authenticate(ctx context.Context, db dbPool, username, password string) (credentials, error) {
	var cr credentials
	lookupErr := db.QueryRow(ctx,
		"SELECT id, password, auth_token FROM users WHERE username = $1",
		username).Scan(&cr.ID, &cr.PasswordHash, &cr.AuthToken)

	hash := string(dummyHash)
	if lookupErr == nil {
		hash = cr.PasswordHash
	}
	compareErr := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	switch {
	case errors.Is(lookupErr, pgx.ErrNoRows):
		return credentials{}, fmt.Errorf("%w: invalid credentials", errUnauthorized)
	case lookupErr != nil:
		return credentials{}, fmt.Errorf("lookup user: %w", lookupErr)
	case compareErr != nil:
		return credentials{}, fmt.Errorf("%w: invalid credentials", errUnauthorized)
	}
	return cr, nil
}

// login verifies username/password and returns the user's auth token.
// POST /api/login (public).
func (h *Handler) login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	cr, err := authenticate(c, h.db, strings.TrimSpace(body.Username), body.Password)
	if err != nil {
		if !errors.Is(err, errUnauthorized) {
			h.log.Error("login", zap.Error(err))
			apiError(c, http.StatusInternalServerError, "login failed")
			return
		}
		apiError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": cr.AuthToken, "user_id": cr.ID})
}

// authMiddleware validates the Bearer token and sets user_id on the context.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		var userID int
		err := h.db.QueryRow(c, "SELECT id FROM users WHERE auth_token = $1", token).Scan(&userID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				h.log.Error("token lookup", zap.Error(err))
			}
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
