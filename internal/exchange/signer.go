package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Signer implements pkg/http.Signer: every authenticated call serialises its
// parameters as alphabetically sorted key=value pairs (url.Values.Encode
// always sorts by key), appends a millisecond timestamp, and signs the
// payload with HMAC-SHA256 using the account secret. The API key travels in
// the X-MBX-APIKEY header.
type Signer struct {
	mu        sync.RWMutex
	apiKey    string
	apiSecret string
}

// NewSigner builds a Signer with no credentials set; Authenticate installs them.
func NewSigner() *Signer {
	return &Signer{}
}

// SetCredentials installs the account key/secret pair used for subsequent signing.
func (s *Signer) SetCredentials(apiKey, apiSecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = apiKey
	s.apiSecret = apiSecret
}

// HasCredentials reports whether SetCredentials has been called.
func (s *Signer) HasCredentials() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey != "" && s.apiSecret != ""
}

// SignRequest signs req in place, matching the exchange's HMAC-SHA256 rule.
// With no credentials installed the request is left unsigned, so public
// calls (Ping, Price, Klines) still go out; the authenticated calls check
// HasCredentials before sending.
func (s *Signer) SignRequest(req *http.Request) error {
	s.mu.RLock()
	apiKey, apiSecret := s.apiKey, s.apiSecret
	s.mu.RUnlock()

	if apiKey == "" || apiSecret == "" {
		return nil
	}

	req.Header.Set("X-MBX-APIKEY", apiKey)

	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		q.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	}

	queryString := q.Encode()
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(queryString))
	signature := hex.EncodeToString(mac.Sum(nil))

	q.Set("signature", signature)
	req.URL.RawQuery = q.Encode()

	return nil
}

// SignPayload signs an arbitrary alphabetically sorted query string built
// for the streaming order channel, which transports the signed payload as a
// structured message rather than an HTTP query string.
func (s *Signer) SignPayload(values map[string]string) (signature string, timestamp int64, err error) {
	s.mu.RLock()
	apiSecret := s.apiSecret
	hasCreds := s.apiKey != "" && s.apiSecret != ""
	s.mu.RUnlock()

	if !hasCreds {
		return "", 0, fmt.Errorf("signer: no credentials installed")
	}

	ts := time.Now().UnixMilli()
	values["timestamp"] = fmt.Sprintf("%d", ts)

	payload := encodeSorted(values)
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), ts, nil
}
