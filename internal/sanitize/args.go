// Package sanitize implements the argument sanitizer (C2): tokenizing a
// caller-supplied argument string, rejecting shell metacharacters and
// control characters, and enforcing per-token character class and length
// caps.
//
// Grounded on original_source/mcp_server/base_tool.py's _DENY_CHARS and
// _TOKEN_ALLOWED regexes and its shlex-based tokenizer.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxArgsLen is the default cap on the raw extra_args byte length
// (spec.md §3, overridable via the MAX_ARGS_LEN env var).
const MaxArgsLen = 2048

var denyChars = []rune{';', '&', '|', '`', '$', '>', '<', '\n', '\r'}

// tokenAllowed is a reasonably safe superset of characters a validated
// token may contain. '?' is included (beyond base_tool.py's
// _TOKEN_ALLOWED) so URL query strings survive Tokenize for tools, like
// sqlmap, that must pass a target URL through extra_args.
var tokenAllowed = regexp.MustCompile(`^[A-Za-z0-9._:/=+\-,@%?]+$`)

// Options customizes per-tool tokenization rules.
type Options struct {
	// MaxLen overrides MaxArgsLen when non-zero.
	MaxLen int
	// ExtraAllowedTokens is a set of bare (non-flag) tokens a tool permits
	// in addition to its normal grammar, e.g. gobuster's {"dir","dns","vhost"}.
	ExtraAllowedTokens map[string]bool
	// AllowedFlagPrefixes, when non-empty, requires every token beginning
	// with '-' to prefix-match one of these entries.
	AllowedFlagPrefixes []string
}

// Tokenize validates raw per the rules in spec.md §4.2 and returns the
// shell-style tokens. The returned error, when non-nil, is always
// *mcperr-compatible via the caller wrapping it with mcperr.KindValidation;
// sanitize itself stays free of the mcperr import to avoid a dependency
// cycle with packages that need to sanitize without full error context.
func Tokenize(raw string, opts Options) ([]string, error) {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = MaxArgsLen
	}
	if len(raw) > maxLen {
		return nil, fmt.Errorf("extra_args exceeds maximum length of %d bytes", maxLen)
	}
	for _, c := range denyChars {
		if strings.ContainsRune(raw, c) {
			return nil, fmt.Errorf("extra_args contains forbidden metacharacter %q", string(c))
		}
	}
	tokens, err := ShellSplit(raw)
	if err != nil {
		return nil, err
	}
	for _, tok := range tokens {
		if opts.ExtraAllowedTokens != nil && opts.ExtraAllowedTokens[tok] {
			continue
		}
		if !tokenAllowed.MatchString(tok) {
			return nil, fmt.Errorf("token %q contains disallowed characters", tok)
		}
		if strings.HasPrefix(tok, "-") && len(opts.AllowedFlagPrefixes) > 0 {
			if !hasAllowedPrefix(tok, opts.AllowedFlagPrefixes) {
				return nil, fmt.Errorf("flag %q is not in the allowed set", tok)
			}
		}
	}
	return tokens, nil
}

func hasAllowedPrefix(tok string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(tok, p) {
			return true
		}
	}
	return false
}

// ShellSplit performs POSIX shell-style tokenization with quote handling
// (single and double quotes, backslash escapes outside single quotes),
// equivalent to Python's shlex.split(raw, posix=True, comments=False).
// Exported so per-tool validators (which need to tokenize before applying
// their own grammar, ahead of or instead of Tokenize's generic character
// class) can reuse the same splitting rules.
func ShellSplit(raw string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote rune // 0, '\'' or '"'
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				if i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\') {
					i++
					cur.WriteRune(runes[i])
				} else {
					cur.WriteRune(r)
				}
			default:
				cur.WriteRune(r)
			}
		case r == '\'':
			quote = '\''
			inToken = true
		case r == '"':
			quote = '"'
			inToken = true
		case r == '\\':
			if i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
				inToken = true
			}
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in extra_args")
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
