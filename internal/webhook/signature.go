// Package webhook forwards accepted submissions to a form's webhook URL.
//
// Payloads are shaped for the receiving platform (Slack, Discord or a
// generic JSON envelope) and signed with HMAC-SHA256 when a signing secret
// is configured.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "X-FormGuard-Signature"

// Sign returns the signature header value for payload. The signed content
// is "<unix timestamp>.<payload>".
func Sign(payload []byte, secret string, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return "t=" + ts + ",v1=" + computeHMAC(ts, payload, secret)
}

// Verify checks header against payload and rejects signatures older than
// tolerance. A zero tolerance skips the age check.
func Verify(payload []byte, header, secret string, tolerance time.Duration, now time.Time) bool {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return false
	}

	if tolerance > 0 {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return false
		}
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	return hmac.Equal([]byte(sig), []byte(computeHMAC(ts, payload, secret)))
}

func computeHMAC(ts string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
