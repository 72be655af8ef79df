package observability

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/m-mizutani/masq"
)

// RedactedValue replaces masked values.
const RedactedValue = "[REDACTED]"

// DefaultRedactFields are masked when no fields are configured. They cover
// credentials and the CDN token parameters commonly appended to manifest and
// steering URLs.
var DefaultRedactFields = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"access_token",
	"apikey",
	"api_key",
	"credential",
	"authorization",
	"signature",
	"hdnts",
	"hdnea",
}

var userinfoPattern = regexp.MustCompile(`(://[^:/@\s]+:)[^@/\s]+@`)

// NewRedactor returns a slog ReplaceAttr function masking attributes named
// in fields, matching query parameters inside URL strings, URL passwords and
// struct fields tagged `masq:"secret"`.
func NewRedactor(fields []string) func(groups []string, a slog.Attr) slog.Attr {
	if len(fields) == 0 {
		fields = DefaultRedactFields
	}

	names := make(map[string]bool, len(fields))
	quoted := make([]string, 0, len(fields))
	opts := []masq.Option{masq.WithTag("secret")}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		names[strings.ToLower(f)] = true
		quoted = append(quoted, regexp.QuoteMeta(f))
		opts = append(opts, masq.WithFieldName(f), masq.WithFieldName(upperFirst(f)))
	}
	query := regexp.MustCompile(`(?i)([?&;](?:` + strings.Join(quoted, "|") + `)=)[^&#\s"]*`)
	mask := masq.New(opts...)

	return func(groups []string, a slog.Attr) slog.Attr {
		if names[strings.ToLower(a.Key)] {
			return slog.String(a.Key, RedactedValue)
		}
		switch a.Value.Kind() {
		case slog.KindString:
			s := a.Value.String()
			if !strings.Contains(s, "://") && !strings.Contains(s, "?") {
				return a
			}
			s = query.ReplaceAllString(s, "${1}"+RedactedValue)
			s = userinfoPattern.ReplaceAllString(s, "${1}"+RedactedValue+"@")
			return slog.String(a.Key, s)
		case slog.KindAny:
			return mask(groups, a)
		default:
			return a
		}
	}
}

// RedactURL masks sensitive query parameters and URL passwords in u using
// DefaultRedactFields.
func RedactURL(u string) string {
	return defaultRedactor(nil, slog.String("url", u)).Value.String()
}

var defaultRedactor = NewRedactor(nil)

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
