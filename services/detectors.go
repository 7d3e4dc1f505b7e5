// services/detectors.go
package services

import (
	"html"
	"regexp"
	"strings"
)

// Pattern detectors for the CTF exploit surface. All of them are pure,
// case-insensitive classifiers: they gate, they never raise, and empty or
// garbage input is simply "not an attack".

var sqlInjectionPatterns = []*regexp.Regexp{
	// Boolean tautologies: ' OR 1=1, " or '1'='1
	regexp.MustCompile(`(?i)['"]\s*or\s+['"]?\d+['"]?\s*=\s*['"]?\d+`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)'\s*or\s*'[^']*'\s*=\s*'`),
	// UNION / stacked queries
	regexp.MustCompile(`(?i)\bunion(\s+all)?\s+select\b`),
	regexp.MustCompile(`(?i);\s*(select|insert|update|delete|drop|alter|create|exec)\b`),
	// Comment markers used to cut a query short
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*`),
	// Schema introspection
	regexp.MustCompile(`(?i)\b(information_schema|pg_catalog|sysobjects|mysql\.user)\b`),
	// Time-delay probes
	regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep)\s*\(`),
	regexp.MustCompile(`(?i)\bwaitfor\s+delay\b`),
	// Encoded quote characters
	regexp.MustCompile(`(?i)(%27|%22|0x27|0x22|char\(39\))`),
}

var sqlKeywordDenylist = []string{
	"UNION SELECT",
	"SELECT * FROM",
	"DROP TABLE",
	"INSERT INTO",
	"DELETE FROM",
	"XP_CMDSHELL",
	"EXEC(",
}

// DetectSQLInjection reports whether text looks like a SQL injection payload.
func DetectSQLInjection(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range sqlKeywordDenylist {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

var xpathInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcontains\s*\(`),
	regexp.MustCompile(`(?i)\bstarts-with\s*\(`),
	regexp.MustCompile(`(?i)\b(ancestor|ancestor-or-self|descendant|descendant-or-self|following|following-sibling|preceding|preceding-sibling|parent|child|self)::`),
	regexp.MustCompile(`(?i)\bdocument\s*\(`),
	regexp.MustCompile(`(?i)\btext\s*\(\s*\)`),
	regexp.MustCompile(`(?i)\b(position|last|name|count)\s*\(\s*\)`),
	regexp.MustCompile(`//\*`),
	regexp.MustCompile(`(?i)\]\s*\|\s*//`),
	// XPath string tautology: ' or 'a'='a (trailing quote often omitted)
	regexp.MustCompile(`(?i)'\s*or\s*'[^']*'\s*=\s*'[^']*'?`),
}

// DetectXPathInjection reports whether text looks like an XPath injection
// payload. Endpoints wiring both detectors check XPath first so the same
// payload never counts twice.
func DetectXPathInjection(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, re := range xpathInjectionPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)\b(eval|alert|prompt|confirm)\s*\(`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed|applet)`),
	regexp.MustCompile(`(?i)(document\.cookie|document\.write|window\.location)`),
	regexp.MustCompile(`(?i)expression\s*\(`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)srcdoc\s*=`),
}

// DetectXSS reports whether text contains a script-injection attempt.
func DetectXSS(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, re := range xssPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var xssStripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script[^>]*>[\s\S]*?<\s*/\s*script\s*>`),
	regexp.MustCompile(`(?i)<\s*script[^>]*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed|applet)[^>]*>`),
}

// SanitizeText neutralizes free text before it is stored. Stripping plus
// HTML-escaping runs on every persisted field whether or not the detector
// fired, so stored records can never execute.
func SanitizeText(text string) string {
	for _, re := range xssStripPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return html.EscapeString(text)
}
