package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class distinguishes access credentials from refresh credentials.
// Verify enforces the expected class so a refresh token can never be
// presented where an access token is required (and vice versa).
type Class string

const (
	// ClassAccess marks short-lived request credentials.
	ClassAccess Class = "access"
	// ClassRefresh marks long-lived credentials used only to mint new access tokens.
	ClassRefresh Class = "refresh"
)

// SigningMethod selects the signature algorithm, fixed per deployment.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalid covers bad signatures, malformed tokens, wrong issuer,
	// wrong class, and missing required claims.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when the exp claim has elapsed.
	ErrExpired = errors.New("token expired")
)

// Config holds codec construction parameters. Instances are validated by
// NewCodec and treated as immutable afterwards.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// Claims is the signed claim set carried by every credential. Timestamps
// are embedded so verification never needs a store round-trip; revocation
// is the caller's separate blacklist check keyed by ID (jti).
type Claims struct {
	Class     Class  `json:"cls"`
	Role      string `json:"role,omitempty"`
	Plan      string `json:"plan,omitempty"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// JTI returns the credential's unique identifier.
func (c *Claims) JTI() string { return c.ID }

// Extra carries the optional claims stamped at issue time. SessionID is
// set only on refresh credentials, linking them to their session record.
type Extra struct {
	Role      string
	Plan      string
	SessionID string
}

// Codec issues and verifies signed, expiring claim sets. It is stateless:
// Issue performs no I/O and Verify consults nothing but the token itself.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer is required")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Codec{config: cfg}, nil
}

// Issue signs a fresh claim set for identity with a new jti,
// iat = now and exp = now + ttl. A non-positive ttl still produces a
// token; it is simply already expired by the time Verify sees it.
func (c *Codec) Issue(identity string, class Class, ttl time.Duration, extra Extra) (string, *Claims, error) {
	if identity == "" {
		return "", nil, errors.New("identity is required")
	}
	if class != ClassAccess && class != ClassRefresh {
		return "", nil, errors.New("unknown token class")
	}

	now := time.Now()
	claims := &Claims{
		Class:     class,
		Role:      extra.Role,
		Plan:      extra.Plan,
		SessionID: extra.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    c.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signKey, err := c.signKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := jwt.NewWithClaims(c.method(), claims).SignedString(signKey)
	if err != nil {
		return "", nil, err
	}

	return signed, claims, nil
}

// Verify checks signature, expiry, issuer, class, and required claims.
// It deliberately does not consult the blacklist; callers on
// security-critical paths must check the returned jti themselves.
func (c *Codec) Verify(tokenStr string, expected Class) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithIssuer(c.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalid)
	}
	if claims.Class != expected {
		return nil, fmt.Errorf("%w: unexpected token class", ErrInvalid)
	}
	if claims.IssuedAt != nil && c.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(time.Now().Add(c.config.MaxFutureIAT)) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalid)
		}
	}

	return claims, nil
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(c.config.PrivateKey)
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPublicKey(c.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
