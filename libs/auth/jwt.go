package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Roles recognised by the scheduling API. Callers without a token act as RoleCustomer.
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

// clockSkew is tolerated on exp and nbf.
const clockSkew = 30 * time.Second

type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	Exp  int64  `json:"exp"`
	Nbf  int64  `json:"nbf,omitempty"`
	Iat  int64  `json:"iat"`
}

func (c Claims) validAt(now time.Time) bool {
	if c.Exp > 0 && now.Add(-clockSkew).Unix() > c.Exp {
		return false
	}
	if c.Nbf > 0 && now.Add(clockSkew).Unix() < c.Nbf {
		return false
	}
	return true
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

// compact is a JWT split into its three segments.
type compact struct {
	header    Header
	signed    string
	payload   []byte
	signature []byte
}

func splitToken(token string) (*compact, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	rawHeader, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	tok := &compact{signed: parts[0] + "." + parts[1]}
	if err := json.Unmarshal(rawHeader, &tok.header); err != nil {
		return nil, ErrInvalidToken
	}
	if tok.payload, err = base64.RawURLEncoding.DecodeString(parts[1]); err != nil {
		return nil, ErrInvalidToken
	}
	if tok.signature, err = base64.RawURLEncoding.DecodeString(parts[2]); err != nil {
		return nil, ErrInvalidToken
	}
	return tok, nil
}

func (t *compact) claims(now time.Time) (*Claims, error) {
	var claims Claims
	if err := json.Unmarshal(t.payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if !claims.validAt(now) {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func ParseHeader(token string) (*Header, error) {
	tok, err := splitToken(token)
	if err != nil {
		return nil, err
	}
	return &tok.header, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	headerJSON, err := json.Marshal(Header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signed := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signed + "." + base64.RawURLEncoding.EncodeToString(hmacSHA256(signed, secret)), nil
}

// ParseAndVerifyHS256 rejects tokens whose header names any algorithm other than HS256.
func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	tok, err := splitToken(token)
	if err != nil {
		return nil, err
	}
	if tok.header.Alg != "HS256" || !hmac.Equal(tok.signature, hmacSHA256(tok.signed, secret)) {
		return nil, ErrInvalidToken
	}
	return tok.claims(time.Now())
}

func hmacSHA256(data, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return mac.Sum(nil)
}

func VerifyRS256(token string, pubKey crypto.PublicKey) (*Claims, error) {
	rsaKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidToken
	}
	tok, err := splitToken(token)
	if err != nil {
		return nil, err
	}
	if tok.header.Alg != "RS256" {
		return nil, ErrInvalidToken
	}
	hash := sha256.Sum256([]byte(tok.signed))
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, hash[:], tok.signature); err != nil {
		return nil, ErrInvalidToken
	}
	return tok.claims(time.Now())
}
