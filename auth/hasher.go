/*
Package auth provides credentials and request authentication: bcrypt
password hashing, JWT issuing/verification, and the HTTP middleware that
turns a bearer token into a club.Principal.
*/
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements club.Hasher with bcrypt at the default cost.
type BcryptHasher struct {
	Cost int
}

// NewHasher returns a hasher at bcrypt.DefaultCost.
func NewHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h *BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
