package detect

import (
	"regexp"
	"strings"
)

// Labels of the built-in rules.
const (
	LabelPrivateKey   = "private_key"
	LabelAWSAccessKey = "aws_access_key"
	LabelDBConnection = "db_connection"
	LabelJWT          = "jwt"
	LabelAPIKey       = "api_key"
	LabelPassword     = "password"
	LabelCreditCard   = "credit_card"
	LabelIDCard       = "id_card"
	LabelPhone        = "phone"
	LabelEmail        = "email"
)

// Rule is one labeled detector. Validate, when set, rejects regexp matches
// that are shaped right but fail a checksum or similar test.
type Rule struct {
	Label    string
	Pattern  *regexp.Regexp
	Risk     int
	Validate func(match string) bool
}

// DefaultRules returns the built-in registry entries, highest risk first.
func DefaultRules() []Rule {
	return []Rule{
		{
			Label:   LabelPrivateKey,
			Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |ENCRYPTED |PGP )?PRIVATE KEY(?: BLOCK)?-----`),
			Risk:    10,
		},
		{
			Label:   LabelAWSAccessKey,
			Pattern: regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
			Risk:    9,
		},
		{
			Label:   LabelDBConnection,
			Pattern: regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s"'<>:/]+:[^\s"'<>@]+@[^\s"'<>]+`),
			Risk:    9,
		},
		{
			Label:   LabelJWT,
			Pattern: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
			Risk:    8,
		},
		{
			Label:   LabelAPIKey,
			Pattern: regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|secret[_-]?key|access[_-]?key|client[_-]?secret)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{16,}`),
			Risk:    8,
		},
		{
			Label:   LabelPassword,
			Pattern: regexp.MustCompile(`(?i)["']?\b(?:password|passwd|pwd)["']?\s*[:=]\s*["']?[^\s"',;}]{6,}`),
			Risk:    7,
		},
		{
			Label:    LabelCreditCard,
			Pattern:  regexp.MustCompile(`\b\d{4}(?:[ -]?\d{4}){2}[ -]?\d{1,7}\b`),
			Risk:     7,
			Validate: luhnValid,
		},
		{
			Label:    LabelIDCard,
			Pattern:  regexp.MustCompile(`\b[1-9]\d{5}(?:18|19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\d{3}[\dXx]\b`),
			Risk:     6,
			Validate: idCardValid,
		},
		{
			Label:   LabelPhone,
			Pattern: regexp.MustCompile(`(?:\+86[- ]?|\b)1[3-9]\d{9}\b`),
			Risk:    4,
		},
		{
			Label:   LabelEmail,
			Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			Risk:    3,
		},
	}
}

// luhnValid reports whether the digits of s (separators ignored) form a
// 13 to 19 digit number passing the Luhn check.
func luhnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

var idCardWeights = [17]int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}

const idCardCheck = "10X98765432"

// idCardValid verifies the ISO 7064 MOD 11-2 check character of an 18 digit
// resident identity number.
func idCardValid(s string) bool {
	if len(s) != 18 {
		return false
	}
	sum := 0
	for i := 0; i < 17; i++ {
		sum += int(s[i]-'0') * idCardWeights[i]
	}
	return idCardCheck[sum%11] == strings.ToUpper(s[17:])[0]
}
