package activitypub

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/ristiko/smilodon/domain"
)

// dateSkewWindow is the maximum accepted clock skew on the Date header
// of a signed request, in either direction.
const dateSkewWindow = 12 * time.Hour

// signedHeaders is the header set covered by outgoing signatures.
var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// ParsePrivateKey parses an RSA private key from a PEM string. Both
// PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") blocks are
// accepted since peers differ in what they hand out.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

// ParsePublicKey parses an RSA public key from a PEM string. Accepts
// PKIX ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") blocks.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaKey, nil
}

func digestHeaderValue(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// SignRequest signs req with a draft-cavage HTTP signature over
// (request-target), host, date and digest. Missing Date, Host and
// Digest headers are filled in first; the Digest always reflects the
// current request body, so set the body before calling this.
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string) error {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		req.Header.Set("Host", host)
	}
	if req.Header.Get("Digest") == "" {
		req.Header.Set("Digest", digestHeaderValue(body))
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	// The Digest header is already in place, so sign with a nil body:
	// passing the body again would make the signer refuse to overwrite it.
	if err := signer.SignRequest(privateKey, keyId, req, nil); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// VerifyRequest checks the HTTP signature on req against publicKeyPem
// and returns the actor URI derived from the signature's keyId (the
// keyId with any #fragment stripped).
//
// Checks run in a fixed order so callers can map the error code to a
// response: digest first (BAD_DIGEST), then Date freshness (STALE),
// then the signature itself (BAD_SIGNATURE).
func VerifyRequest(req *http.Request, publicKeyPem string) (string, error) {
	publicKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", domain.NewCodedError(domain.ErrUnknownKey, fmt.Sprintf("unusable public key: %v", err))
	}

	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	if digest := req.Header.Get("Digest"); digest != "" {
		parts := strings.SplitN(digest, "=", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "SHA-256") {
			return "", domain.NewCodedError(domain.ErrBadDigest, "unsupported digest algorithm")
		}
		sum := sha256.Sum256(body)
		if parts[1] != base64.StdEncoding.EncodeToString(sum[:]) {
			return "", domain.NewCodedError(domain.ErrBadDigest, "digest does not match request body")
		}
	} else if len(body) > 0 {
		return "", domain.NewCodedError(domain.ErrBadDigest, "missing Digest header")
	}

	date, err := http.ParseTime(req.Header.Get("Date"))
	if err != nil {
		return "", domain.NewCodedError(domain.ErrStale, "missing or unparseable Date header")
	}
	if skew := time.Since(date); skew > dateSkewWindow || skew < -dateSkewWindow {
		return "", domain.NewCodedError(domain.ErrStale, fmt.Sprintf("Date header outside %v window", dateSkewWindow))
	}

	// The net/http server strips Host into req.Host; put it back so the
	// verifier can rebuild the signing string.
	if req.Header.Get("Host") == "" && req.Host != "" {
		req.Header.Set("Host", req.Host)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", domain.NewCodedError(domain.ErrBadSignature, fmt.Sprintf("unparseable signature: %v", err))
	}
	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		return "", domain.NewCodedError(domain.ErrBadSignature, fmt.Sprintf("signature verification failed: %v", err))
	}

	actorURI := verifier.KeyId()
	if idx := strings.Index(actorURI, "#"); idx != -1 {
		actorURI = actorURI[:idx]
	}
	return actorURI, nil
}
