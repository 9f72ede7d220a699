package memserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Claims are the bearer token claims the server issues and accepts.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator checks the credentials of incoming calls: basic auth against
// a fixed user table, or HS256 bearer tokens it signed itself.
type Authenticator struct {
	secretKey []byte
	users     map[string]string
	tokenTTL  time.Duration
}

// NewAuthenticator creates an authenticator. users maps usernames to
// passwords.
func NewAuthenticator(secretKey string, users map[string]string) *Authenticator {
	return &Authenticator{
		secretKey: []byte(secretKey),
		users:     users,
		tokenTTL:  time.Hour,
	}
}

// GenerateToken issues a bearer token for username.
func (a *Authenticator) GenerateToken(username string, ttl time.Duration) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("username cannot be empty")
	}
	if ttl <= 0 {
		ttl = a.tokenTTL
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a bearer token and returns its claims.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// Authenticate returns the user behind an authorization header value.
func (a *Authenticator) Authenticate(header string) (string, error) {
	switch {
	case strings.HasPrefix(header, "Bearer "):
		claims, err := a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return "", err
		}
		return claims.Username, nil
	case strings.HasPrefix(header, "Basic "):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			return "", fmt.Errorf("malformed basic credentials: %w", err)
		}
		user, pass, ok := strings.Cut(string(raw), ":")
		if !ok {
			return "", errors.New("malformed basic credentials")
		}
		if want, exists := a.users[user]; !exists || want != pass {
			return "", errors.New("bad username or password")
		}
		return user, nil
	default:
		return "", errors.New("missing credentials")
	}
}

type userKey struct{}

// User returns the authenticated user of a call, if any.
func User(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey{}).(string)
	return u, ok
}

func (a *Authenticator) authorize(ctx context.Context, method string) (context.Context, error) {
	if method == wire.MethodGossipRead {
		return ctx, nil
	}

	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "credentials required")
	}
	user, err := a.Authenticate(values[0])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return context.WithValue(ctx, userKey{}, user), nil
}

// UnaryInterceptor rejects unauthenticated unary calls.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := a.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor rejects unauthenticated streaming calls.
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := a.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }
