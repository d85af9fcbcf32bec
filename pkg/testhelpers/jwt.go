package testhelpers

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateTestSessionToken signs a session token the way the login flow does,
// with an explicit issue time so tests can produce expired tokens.
func GenerateTestSessionToken(secret []byte, userID, username string, issuedAt time.Time, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"iat":      issuedAt.Unix(),
		"exp":      issuedAt.Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		panic(fmt.Sprintf("sign test token: %v", err))
	}
	return token
}

// GenerateUnsignedSessionToken creates a token with a valid structure but no
// signature (alg: none). Validators must reject it.
func GenerateUnsignedSessionToken(userID, username string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := fmt.Sprintf(`{"sub":%q,"username":%q,"iat":%d,"exp":%d}`,
		userID, username, time.Now().Unix(), time.Now().Add(time.Hour).Unix())
	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}
