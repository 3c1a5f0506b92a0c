package httpclient

import "regexp"

// Marker replaces secret values before anything reaches a log sink.
const Marker = "[REDACTED]"

var secretFields = `client_secret|refresh_token|access_token|code|id_token`

var (
	jsonSecret = regexp.MustCompile(`("(?:` + secretFields + `)"\s*:\s*")(?:[^"\\]|\\.)*(")`)
	formSecret = regexp.MustCompile(`((?:^|[&?])(?:` + secretFields + `)=)[^&\s]*`)
)

// Redact blanks the values of client_secret, refresh_token, access_token,
// code and id_token in JSON bodies and urlencoded forms. Every request or
// response body must pass through here before being logged.
func Redact(s string) string {
	s = jsonSecret.ReplaceAllString(s, "${1}"+Marker+"${2}")
	s = formSecret.ReplaceAllString(s, "${1}"+Marker)
	return s
}
