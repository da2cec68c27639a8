// Package redact strips credentials from strings before they reach logs or
// HTTP responses. Upstream error bodies sometimes echo request headers.
package redact

import "regexp"

const Placeholder = "[REDACTED]"

var patterns = []*regexp.Regexp{
	// Anthropic keys before the generic sk- form.
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{30,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{16,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|x-api-key|key)=[a-zA-Z0-9._-]{16,}`),
}

func String(s string) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, Placeholder)
	}
	return s
}

func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
