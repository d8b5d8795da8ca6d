/**
 * @description
 * This file defines the user/account model for the payment service. A user is
 * both an identity (name, phone, profile image) and an account (balance). The
 * balance is stored as int64 paise so financial arithmetic never touches
 * floating point.
 *
 * @notes
 * - `PasswordHash` is the bcrypt hash of the user's password/PIN. It is never
 *   serialized to JSON and is only loaded through the dedicated credential
 *   lookup on the repository.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account holder. The balance field is mutated
// only by the transfer engine; profile fields are mutated by profile updates.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Balance      int64     `json:"balance"` // in paise
	PasswordHash string    `json:"-"`
	ImagePath    *string   `json:"image,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
