package blobstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims bind a download token to one object in one bucket.
type claims struct {
	Bucket string `json:"bkt"`
	jwt.RegisteredClaims
}

// signToken creates a download token for path.
func signToken(key []byte, bucket, path string, now time.Time) (string, error) {
	jti, err := randomID()
	if err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}

	c := claims{
		Bucket: bucket,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jti,
			Subject:  path,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// verifyToken checks that token was signed with key for bucket and path.
func verifyToken(key []byte, bucket, path, token string) error {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return fmt.Errorf("parsing token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	if c.Subject != path || c.Bucket != bucket {
		return fmt.Errorf("token is for a different object")
	}
	return nil
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
