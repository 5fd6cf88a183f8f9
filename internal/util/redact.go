package util

import (
	"net/url"
	"strings"
)

// Redacted replaces secrets in rendered output.
const Redacted = "REDACTED"

// RedactURL hides credentials in a stream URL: the password of any userinfo
// and, for RTMP style URLs, the final path segment that carries the stream
// key. Strings that do not parse as URLs are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), Redacted)
		}
	}
	if strings.HasPrefix(u.Scheme, "rtmp") {
		if i := strings.LastIndex(u.Path, "/"); i > 0 && i < len(u.Path)-1 {
			u.Path = u.Path[:i+1] + Redacted
			u.RawPath = ""
		}
	}
	if u.RawQuery != "" {
		u.RawQuery = Redacted
	}
	return u.String()
}
