package auth

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const uniqueIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// HashPassword hashes the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash checks if the password matches the hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateUniqueID returns a 6 character shareable code
func GenerateUniqueID() (string, error) {
	code := make([]byte, 6)
	max := big.NewInt(int64(len(uniqueIDAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = uniqueIDAlphabet[n.Int64()]
	}
	return string(code), nil
}
