// Package webhook authenticates inbound provider deliveries and decodes them
// into a closed set of typed events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/rajasatyajit/ResumeCore/internal/errors"
)

// Scheme describes how a provider transmits its signature. Both supported
// providers sign "id.timestamp.body" with HMAC-SHA256 and send base64
// signatures as space separated "v1,<sig>" entries.
type Scheme struct {
	IDHeader        string
	TimestampHeader string
	SignatureHeader string
	// EncodedSecret means the secret is "whsec_" + base64(key).
	// Otherwise the secret bytes are the key.
	EncodedSecret bool
}

var (
	// SvixScheme is used by the identity provider
	SvixScheme = Scheme{
		IDHeader:        "svix-id",
		TimestampHeader: "svix-timestamp",
		SignatureHeader: "svix-signature",
		EncodedSecret:   true,
	}
	// StandardScheme is used by the billing provider
	StandardScheme = Scheme{
		IDHeader:        "webhook-id",
		TimestampHeader: "webhook-timestamp",
		SignatureHeader: "webhook-signature",
	}
)

const secretPrefix = "whsec_"

// Headers are the three delivery headers every signed request carries
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

// HeadersFrom extracts the scheme's headers from h
func (s Scheme) HeadersFrom(h http.Header) Headers {
	return Headers{
		ID:        strings.TrimSpace(h.Get(s.IDHeader)),
		Timestamp: strings.TrimSpace(h.Get(s.TimestampHeader)),
		Signature: strings.TrimSpace(h.Get(s.SignatureHeader)),
	}
}

// Verified is an authenticated delivery whose body has not been interpreted yet
type Verified struct {
	ID        string
	Timestamp time.Time
	Body      []byte
}

// Verifier checks delivery signatures for one provider
type Verifier struct {
	source    Source
	scheme    Scheme
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier. A non-positive tolerance disables the
// timestamp window check.
func NewVerifier(source Source, scheme Scheme, tolerance time.Duration) *Verifier {
	return &Verifier{source: source, scheme: scheme, tolerance: tolerance, now: time.Now}
}

// Scheme returns the header scheme the verifier expects
func (v *Verifier) Scheme() Scheme { return v.scheme }

// Verify authenticates body. It has no side effects.
func (v *Verifier) Verify(body []byte, hdr Headers, secret string) (Verified, error) {
	key, err := v.scheme.key(secret)
	if err != nil {
		return Verified{}, apperrors.NotConfiguredError{Source: string(v.source)}
	}

	var missing []string
	if hdr.ID == "" {
		missing = append(missing, v.scheme.IDHeader)
	}
	if hdr.Timestamp == "" {
		missing = append(missing, v.scheme.TimestampHeader)
	}
	if hdr.Signature == "" {
		missing = append(missing, v.scheme.SignatureHeader)
	}
	if len(missing) > 0 {
		return Verified{}, apperrors.MissingHeadersError{Headers: missing}
	}

	secs, err := strconv.ParseInt(hdr.Timestamp, 10, 64)
	if err != nil {
		return Verified{}, apperrors.SignatureInvalidError{Reason: "malformed timestamp"}
	}
	ts := time.Unix(secs, 0).UTC()
	if v.tolerance > 0 {
		skew := v.now().Sub(ts)
		if skew > v.tolerance {
			return Verified{}, apperrors.SignatureInvalidError{Reason: "timestamp too old"}
		}
		if skew < -v.tolerance {
			return Verified{}, apperrors.SignatureInvalidError{Reason: "timestamp too new"}
		}
	}

	expected := sign(key, hdr.ID, hdr.Timestamp, body)
	for _, entry := range strings.Fields(hdr.Signature) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return Verified{ID: hdr.ID, Timestamp: ts, Body: body}, nil
		}
	}
	return Verified{}, apperrors.SignatureInvalidError{Reason: "no matching signature"}
}

func (s Scheme) key(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	if !s.EncodedSecret {
		return []byte(secret), nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	return key, nil
}

func sign(key []byte, id, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign produces a "v1,<sig>" header value for body. Used by tests and by
// tooling that replays deliveries.
func (s Scheme) Sign(secret, id string, ts time.Time, body []byte) (string, error) {
	key, err := s.key(secret)
	if err != nil {
		return "", err
	}
	sig := sign(key, id, strconv.FormatInt(ts.Unix(), 10), body)
	return "v1," + base64.StdEncoding.EncodeToString(sig), nil
}

// SignRequest sets the scheme's headers on h for body
func (s Scheme) SignRequest(h http.Header, secret, id string, ts time.Time, body []byte) error {
	sig, err := s.Sign(secret, id, ts, body)
	if err != nil {
		return err
	}
	h.Set(s.IDHeader, id)
	h.Set(s.TimestampHeader, strconv.FormatInt(ts.Unix(), 10))
	h.Set(s.SignatureHeader, sig)
	return nil
}
