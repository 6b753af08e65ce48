package engine

import (
	"net/url"
	"strings"

	"github.com/tartampluch/go-haid/internal/config"
)

// ConsultationLink builds the outbound link for a broken-pattern record:
// endpoint with the message percent-encoded into its text parameter.
// Spaces are encoded as %20, never +.
// An endpoint that does not parse yields "".
func ConsultationLink(endpoint, message string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}

	param := config.ConsultTextParam + "=" + strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String()
}
