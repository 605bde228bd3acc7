package gate

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// Signer produces Gate v4 API signatures. Gate signs REST requests, private
// WebSocket subscriptions, and WebSocket API requests with three different
// payload layouts over the same HMAC-SHA512 primitive.
type Signer struct {
	accessKey string
	secretKey string
}

// NewSigner creates a Signer. Keys come from the environment via config;
// they are never logged.
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{accessKey: accessKey, secretKey: secretKey}
}

// AccessKey returns the API key for request headers.
func (s *Signer) AccessKey() string { return s.accessKey }

// RestHeaders signs a REST request. The payload is
// method\npath\nquery\nsha512hex(body)\ntimestamp, and the timestamp is
// unix seconds as a decimal string.
func (s *Signer) RestHeaders(method, path, query, body string, timestamp int64) map[string]string {
	bodyHash := sha512.Sum512([]byte(body))
	ts := fmt.Sprintf("%d", timestamp)
	payload := fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		method, path, query, hex.EncodeToString(bodyHash[:]), ts)

	return map[string]string{
		"KEY":          s.accessKey,
		"Timestamp":    ts,
		"SIGN":         s.sign(payload),
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
}

// ChannelSignature signs a private channel subscription:
// channel=%s&event=%s&time=%d.
func (s *Signer) ChannelSignature(channel, event string, timestamp int64) string {
	return s.sign(fmt.Sprintf("channel=%s&event=%s&time=%d", channel, event, timestamp))
}

// APISignature signs a WebSocket API login request:
// api\nchannel\nreq_param\ntimestamp.
func (s *Signer) APISignature(channel, reqParam string, timestamp int64) string {
	return s.sign(fmt.Sprintf("api\n%s\n%s\n%d", channel, reqParam, timestamp))
}

func (s *Signer) sign(payload string) string {
	h := hmac.New(sha512.New, []byte(s.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
