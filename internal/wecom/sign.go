package wecom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Sign computes the WeCom webhook signature for the given millisecond
// timestamp: base64(HMAC-SHA256(secret, "{timestamp}\n{secret}")).
func Sign(secret string, timestampMillis int64) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestampMillis, secret)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignedURL appends timestamp and sign query parameters to the webhook URL
// when a secret is configured. Without a secret the URL is returned as is.
// Group-robot webhook URLs already carry ?key=, so parameters are joined
// with "&".
func SignedURL(webhookURL, secret string, timestampMillis int64) string {
	if secret == "" {
		return webhookURL
	}

	sep := "&"
	if !strings.Contains(webhookURL, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		webhookURL, sep, timestampMillis, url.QueryEscape(Sign(secret, timestampMillis)))
}
