package entitle

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProofTTL bounds how long a minted entitlement proof stays valid. Balances
// are re-read from the ledger on every export anyway; the proof only lets a
// client show its entitlement without a round trip.
const ProofTTL = 24 * time.Hour

var ErrInvalidProof = errors.New("invalid entitlement proof")

// ProofClaims is the signed statement that a device holds an entitlement.
type ProofClaims struct {
	EntitlementID string `json:"entitlement_id"`
	DeviceIDHash  string `json:"device_id_hash"`
	jwt.RegisteredClaims
}

// SignProof mints an HS256 proof token for the entitlement.
func SignProof(secret []byte, entitlementID, deviceIDHash string) (string, error) {
	now := time.Now()
	claims := ProofClaims{
		EntitlementID: entitlementID,
		DeviceIDHash:  deviceIDHash,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ProofTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign entitlement proof: %w", err)
	}
	return signed, nil
}

// VerifyProof validates a proof token and returns its claims.
func VerifyProof(secret []byte, tokenString string) (*ProofClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ProofClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	claims, ok := token.Claims.(*ProofClaims)
	if !ok || !token.Valid || claims.EntitlementID == "" {
		return nil, ErrInvalidProof
	}
	return claims, nil
}
