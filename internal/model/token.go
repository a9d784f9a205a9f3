package model

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims are the signed claims of an issued bearer token. The jti in
// RegisteredClaims.ID doubles as the revocation-ledger key.
type TokenClaims struct {
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// LedgerEntry is the revocation-ledger value stored under jwt:{jti}.
// Its presence means the token is still live; absence means revoked.
type LedgerEntry struct {
	Subject   string    `json:"user_id"`
	TokenType TokenType `json:"token_type"`
}
