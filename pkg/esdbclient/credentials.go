package esdbclient

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/esdberr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var (
	// ErrTokenExpired is returned, wrapped in a RequestBuildError, when a
	// bearer token has expired before the call is made
	ErrTokenExpired = errors.New("bearer token has expired")

	errNoIdentity = errors.New("a username or a token is required")
)

// Credentials authenticate calls, either with a username and password or
// with a bearer token. A token takes precedence.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Basic returns username/password credentials.
func Basic(username, password string) *Credentials {
	return &Credentials{Username: username, Password: password}
}

// Bearer returns token credentials.
func Bearer(token string) *Credentials {
	return &Credentials{Token: token}
}

func (c *Credentials) validate() error {
	if c.Token == "" && c.Username == "" {
		return errNoIdentity
	}
	return nil
}

// check fails for tokens that are already expired at now. Tokens that are
// not JWTs are passed through for the server to judge.
func (c *Credentials) check(op string, now time.Time) error {
	if err := c.validate(); err != nil {
		return &esdberr.RequestBuildError{Op: op, Field: "credentials", Err: err}
	}
	if c.Token == "" {
		return nil
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !now.Before(exp.Time) {
		return &esdberr.RequestBuildError{Op: op, Field: "credentials", Err: ErrTokenExpired}
	}
	return nil
}

func (c *Credentials) header() string {
	if c.Token != "" {
		return "Bearer " + c.Token
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}

// callOption attaches c to a single call.
func (c *Credentials) callOption(requireTLS bool) grpc.CallOption {
	return grpc.PerRPCCredentials(perRPC{header: c.header(), secure: requireTLS})
}

type perRPC struct {
	header string
	secure bool
}

var _ credentials.PerRPCCredentials = perRPC{}

func (p perRPC) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": p.header}, nil
}

func (p perRPC) RequireTransportSecurity() bool {
	return p.secure
}
