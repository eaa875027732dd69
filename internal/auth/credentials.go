package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"

	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
)

// Scheme identifies how a credential is presented to the gateway.
type Scheme string

const (
	// SchemeBearer sends a caller-provided token on every request.
	SchemeBearer Scheme = "bearer"

	// SchemeCookie sends a caller-provided session cookie.
	SchemeCookie Scheme = "cookie"

	// SchemePasscode exchanges a passcode for a token, or sends it as a
	// header when the gateway exposes no exchange endpoint.
	SchemePasscode Scheme = "passcode"

	// SchemeBasic exchanges username and password for a token, or sends
	// them as HTTP basic auth when no exchange endpoint is configured.
	SchemeBasic Scheme = "basic"
)

// Credential is one resolved authentication method. Exactly one scheme
// is active per client.
type Credential struct {
	Scheme   Scheme
	Token    string
	Cookie   string
	Passcode string
	Username string
	Password string
}

// ResolveCredential picks the active credential from everything the
// caller configured. When several are present the most direct wins:
// bearer token, then cookie, then passcode, then basic.
func ResolveCredential(token, cookie, passcode, username, password string) (*Credential, error) {
	switch {
	case token != "":
		return &Credential{Scheme: SchemeBearer, Token: token}, nil
	case cookie != "":
		return &Credential{Scheme: SchemeCookie, Cookie: cookie}, nil
	case passcode != "":
		return &Credential{Scheme: SchemePasscode, Passcode: passcode}, nil
	case username != "":
		return &Credential{Scheme: SchemeBasic, Username: username, Password: password}, nil
	default:
		return nil, flow.ErrNoCredentials
	}
}

// Fingerprint returns a short non-reversible digest identifying the
// credential. It is safe for logs and cache keys; the secret material
// itself never appears in either.
func (c *Credential) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(string(c.Scheme)))
	h.Write([]byte{0})

	switch c.Scheme {
	case SchemeBearer:
		h.Write([]byte(c.Token))
	case SchemeCookie:
		h.Write([]byte(c.Cookie))
	case SchemePasscode:
		h.Write([]byte(c.Passcode))
	case SchemeBasic:
		h.Write([]byte(c.Username))
		h.Write([]byte{0})
		h.Write([]byte(c.Password))
	}

	return hex.EncodeToString(h.Sum(nil))[:12]
}

// basicAuthValue renders an Authorization header value for the exchange
// request: "passcode:<passcode>" for passcodes, "user:password" for
// basic credentials.
func (c *Credential) basicAuthValue() string {
	var pair string

	switch c.Scheme {
	case SchemePasscode:
		pair = "passcode:" + c.Passcode
	case SchemeBasic:
		pair = c.Username + ":" + c.Password
	default:
		return ""
	}

	return "Basic " + base64.StdEncoding.EncodeToString([]byte(pair))
}

// StaticTokenCredentials presents a caller-provided bearer token.
type StaticTokenCredentials struct {
	credential *Credential
}

// NewStaticTokenCredentials wraps a bearer token.
func NewStaticTokenCredentials(token string) *StaticTokenCredentials {
	return &StaticTokenCredentials{
		credential: &Credential{Scheme: SchemeBearer, Token: token},
	}
}

// Apply sets the Authorization header.
func (s *StaticTokenCredentials) Apply(ctx context.Context, header http.Header) error {
	header.Set("Authorization", "Bearer "+s.credential.Token)

	return nil
}

// Refresh always fails: a static token has nothing to re-acquire.
func (s *StaticTokenCredentials) Refresh(ctx context.Context) error {
	return flow.ErrCredentialNotRefreshable
}

// Fingerprint identifies the credential for logs.
func (s *StaticTokenCredentials) Fingerprint() string {
	return s.credential.Fingerprint()
}

// CookieCredentials presents a caller-provided session cookie.
type CookieCredentials struct {
	credential *Credential
}

// NewCookieCredentials wraps a session cookie value.
func NewCookieCredentials(cookie string) *CookieCredentials {
	return &CookieCredentials{
		credential: &Credential{Scheme: SchemeCookie, Cookie: cookie},
	}
}

// Apply sets the Cookie header.
func (c *CookieCredentials) Apply(ctx context.Context, header http.Header) error {
	header.Set("Cookie", c.credential.Cookie)

	return nil
}

// Refresh always fails: the client cannot mint session cookies.
func (c *CookieCredentials) Refresh(ctx context.Context) error {
	return flow.ErrCredentialNotRefreshable
}

// Fingerprint identifies the credential for logs.
func (c *CookieCredentials) Fingerprint() string {
	return c.credential.Fingerprint()
}

// PasscodeHeaderCredentials sends the passcode itself as a header, for
// gateways that accept passcodes directly instead of exchanging them.
type PasscodeHeaderCredentials struct {
	credential *Credential
}

// NewPasscodeHeaderCredentials wraps a passcode for direct presentation.
func NewPasscodeHeaderCredentials(passcode string) *PasscodeHeaderCredentials {
	return &PasscodeHeaderCredentials{
		credential: &Credential{Scheme: SchemePasscode, Passcode: passcode},
	}
}

// Apply sets the passcode header.
func (p *PasscodeHeaderCredentials) Apply(ctx context.Context, header http.Header) error {
	header.Set(constants.HeaderGatewayPasscode, p.credential.Passcode)

	return nil
}

// Refresh always fails: re-sending the same passcode cannot clear a 401.
func (p *PasscodeHeaderCredentials) Refresh(ctx context.Context) error {
	return flow.ErrCredentialNotRefreshable
}

// Fingerprint identifies the credential for logs.
func (p *PasscodeHeaderCredentials) Fingerprint() string {
	return p.credential.Fingerprint()
}

// BasicAuthCredentials presents username and password on every request,
// for gateways without an exchange endpoint.
type BasicAuthCredentials struct {
	credential *Credential
}

// NewBasicAuthCredentials wraps a username/password pair.
func NewBasicAuthCredentials(username, password string) *BasicAuthCredentials {
	return &BasicAuthCredentials{
		credential: &Credential{Scheme: SchemeBasic, Username: username, Password: password},
	}
}

// Apply sets HTTP basic auth.
func (b *BasicAuthCredentials) Apply(ctx context.Context, header http.Header) error {
	header.Set("Authorization", b.credential.basicAuthValue())

	return nil
}

// Refresh always fails: replaying the same pair cannot clear a 401.
func (b *BasicAuthCredentials) Refresh(ctx context.Context) error {
	return flow.ErrCredentialNotRefreshable
}

// Fingerprint identifies the credential for logs.
func (b *BasicAuthCredentials) Fingerprint() string {
	return b.credential.Fingerprint()
}
