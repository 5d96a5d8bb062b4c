package gridapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// kvTokenize joins keys in sorted order as key=value pairs separated by &.
// Multi-valued keys repeat once per value.
func kvTokenize(values map[string][]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// EscapeQuery rewrites a raw query with every value form-escaped and keys
// sorted. Parameters with blank values are dropped.
func EscapeQuery(rawQuery string) (string, error) {
	parsed, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", err
	}
	escaped := make(map[string][]string, len(parsed))
	for k, vs := range parsed {
		for _, v := range vs {
			if v == "" {
				continue
			}
			escaped[k] = append(escaped[k], url.QueryEscape(v))
		}
	}
	return kvTokenize(escaped), nil
}

// EscapeURL returns rawURL with its query replaced by EscapeQuery.
func EscapeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q, err := EscapeQuery(u.RawQuery)
	if err != nil {
		return "", err
	}
	u.RawQuery = q
	return u.String(), nil
}

// Sign computes the access token for a request. The sign string is built
// from accessKey, accessTs, httpMethod and the escaped url; the endpoint
// expects the sign string as the HMAC key and the secret as the message.
func Sign(accessKey, accessSecret, method, rawURL string, tsMillis int64) (string, error) {
	escaped, err := EscapeURL(rawURL)
	if err != nil {
		return "", err
	}
	signKey := kvTokenize(map[string][]string{
		"accessKey":  {accessKey},
		"accessTs":   {strconv.FormatInt(tsMillis, 10)},
		"httpMethod": {method},
		"url":        {escaped},
	})
	mac := hmac.New(sha256.New, []byte(signKey))
	mac.Write([]byte(accessSecret))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
