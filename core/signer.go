package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// EnvelopeSigner produces the X-Webhook-Signature header value for an
// outbound payload. Receivers verify with the endpoint secret.
type EnvelopeSigner interface {
	Sign(secret string, timestamp int64, payload []byte) (string, error)
}

// HMACEnvelopeSigner signs "{unix}.{payload}" with HMAC-SHA256 and
// formats the result as "t=<unix>,v1=<hex>". The timestamp inside the
// signed message lets receivers reject stale replays.
type HMACEnvelopeSigner struct{}

func (HMACEnvelopeSigner) Sign(secret string, timestamp int64, payload []byte) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("core: signing secret is required")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))), nil
}

var _ EnvelopeSigner = HMACEnvelopeSigner{}
