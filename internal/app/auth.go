/**
 * @description
 * Credential verification and session token issuance. These back the two-step
 * send-money confirmation (the password re-entry before a transfer commits)
 * and the login flow's bearer token.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: For signing session tokens.
 * - golang.org/x/crypto/bcrypt: For comparing stored password hashes.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTokenTTL matches the access-token expiry used by the web app.
const DefaultSessionTokenTTL = 30 * time.Minute

// VerifyCredential compares a presented password against the user's stored
// bcrypt hash. A mismatch returns ErrAuthenticationFailed; the hash itself
// never leaves the repository layer.
func (s *Service) VerifyCredential(ctx context.Context, userID uuid.UUID, presented string) error {
	hash, err := s.repo.FindUserCredentialByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrAuthenticationFailed
		}
		return fmt.Errorf("credential comparison failed: %w", err)
	}
	return nil
}

// HashCredential produces the bcrypt hash stored for a new or changed password.
func HashCredential(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// IssueSessionToken signs a short-lived HS256 bearer token carrying the user's
// id, phone, and display name.
func (s *Service) IssueSessionToken(ctx context.Context, userID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultSessionTokenTTL
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"phone": user.Phone,
		"name":  user.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}
