package tools

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nordeim/Security-MCP-Server/internal/sanitize"
	"github.com/nordeim/Security-MCP-Server/internal/scope"
)

// Sqlmap is grounded on original_source/mcp_server/tools/sqlmap_tool-fixed.py.
// Per spec.md §9's second Open Question, the conservative hostname check is
// kept: a bare hostname target that isn't ".lab.internal" and doesn't parse
// as an IPv4 literal is rejected rather than resolved.
type Sqlmap struct {
	concurrency int
	timeout     time.Duration
	maxArgsLen  int
}

const (
	sqlmapMaxRiskLevel = 2
	sqlmapMaxTestLevel = 3
)

var sqlmapAllowedFlags = []string{
	"-u", "--url",
	"--batch",
	"--risk",
	"--level",
	"--dbs",
	"--tables",
	"--columns",
	"--dump",
	"--current-user",
	"--current-db",
	"--users",
	"--passwords",
	"--roles",
	"--technique",
	"--time-sec",
	"--union-cols",
	"--cookie",
	"--user-agent",
	"--referer",
	"--headers",
	"--output-dir",
	"--flush-session",
	"--json",
	"--xml",
}

var sqlmapValueFlags = map[string]bool{
	"--risk": true, "--level": true, "--technique": true, "--time-sec": true,
	"--union-cols": true, "--cookie": true, "--user-agent": true, "--referer": true,
	"--headers": true, "--output-dir": true,
}

func NewSqlmap(concurrency int, timeout time.Duration, maxArgsLen int) *Sqlmap {
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 1800 * time.Second
	}
	return &Sqlmap{concurrency: concurrency, timeout: timeout, maxArgsLen: maxArgsLen}
}

func (t *Sqlmap) Name() string                  { return "SqlmapTool" }
func (t *Sqlmap) CommandName() string           { return "sqlmap" }
func (t *Sqlmap) Concurrency() int              { return t.concurrency }
func (t *Sqlmap) DefaultTimeout() time.Duration { return t.timeout }
func (t *Sqlmap) AllowedFlags() []string        { return append([]string(nil), sqlmapAllowedFlags...) }

func (t *Sqlmap) ValidateAndBuild(input Input, allowIntrusive bool) (BuildResult, error) {
	target := strings.TrimSpace(input.Target)

	if err := t.validateTargetURL(target); err != nil {
		return BuildResult{}, err
	}

	if strings.TrimSpace(input.ExtraArgs) == "" {
		return BuildResult{}, validationError(t.Name(), target, "sqlmap requires URL specification (-u or --url)")
	}

	secured, err := t.secureArgs(input.ExtraArgs, target)
	if err != nil {
		return BuildResult{}, validationError(t.Name(), target, err.Error())
	}

	argv := append([]string{"sqlmap"}, secured...)

	return BuildResult{
		Argv:          argv,
		Optimizations: nil,
		Metadata:      map[string]any{},
	}, nil
}

// validateTargetURL mirrors _is_valid_url + _is_authorized_target: the
// target must parse as an absolute URL and its host must pass C1, with the
// conservative rule that a non-IP hostname is authorized only as
// ".lab.internal" (never resolved).
func (t *Sqlmap) validateTargetURL(target string) error {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return validationError(t.Name(), target, fmt.Sprintf("invalid sqlmap target URL: %s", target))
	}
	ok, reason := scope.ValidateHostFromURL(parsed.Host)
	if !ok {
		return validationError(t.Name(), target, fmt.Sprintf("unauthorized sqlmap target: %s (%s)", target, reason))
	}
	return nil
}

// secureArgs reimplements _secure_sqlmap_args: drops anything not on the
// allow-list, clamps --risk/--level into their safety ranges, injects
// --batch unconditionally, and defaults --risk/--level when absent.
func (t *Sqlmap) secureArgs(extraArgs, target string) ([]string, error) {
	tokens, err := sanitize.Tokenize(extraArgs, sanitize.Options{MaxLen: t.maxArgsLen})
	if err != nil {
		return nil, err
	}

	var secured []string
	hasURL := false
	hasBatch := false
	hasRisk := false
	hasLevel := false

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch {
		case tok == "-u" || tok == "--url":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%s requires a value", tok)
			}
			urlSpec := tokens[i+1]
			parsed, err := url.Parse(urlSpec)
			if err == nil && parsed.Scheme != "" && parsed.Host != "" {
				secured = append(secured, tok, urlSpec)
				hasURL = true
			}
			i++

		case tok == "--risk":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("--risk requires a value")
			}
			risk, err := strconv.Atoi(tokens[i+1])
			if err != nil {
				secured = append(secured, tok, "1")
			} else {
				secured = append(secured, tok, strconv.Itoa(min(max(risk, 1), sqlmapMaxRiskLevel)))
			}
			hasRisk = true
			i++

		case tok == "--level":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("--level requires a value")
			}
			level, err := strconv.Atoi(tokens[i+1])
			if err != nil {
				secured = append(secured, tok, "1")
			} else {
				secured = append(secured, tok, strconv.Itoa(min(max(level, 1), sqlmapMaxTestLevel)))
			}
			hasLevel = true
			i++

		case tok == "--batch":
			secured = append(secured, tok)
			hasBatch = true

		case strings.HasPrefix(tok, "-") && isSafeSqlmapFlag(tok):
			secured = append(secured, tok)
			if sqlmapValueFlags[tok] && i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
				secured = append(secured, tokens[i+1])
				i++
			}

		default:
			// Unknown/unsafe tokens are dropped silently, matching the
			// Python tool's log-and-skip behavior.
		}
	}

	if !hasURL {
		return nil, fmt.Errorf("missing required URL specification")
	}
	if !hasBatch {
		secured = append(secured, "--batch")
	}
	if !hasRisk {
		secured = append(secured, "--risk", "1")
	}
	if !hasLevel {
		secured = append(secured, "--level", "1")
	}

	_ = target
	return secured, nil
}

func isSafeSqlmapFlag(flag string) bool {
	for _, f := range sqlmapAllowedFlags {
		if f == flag {
			return true
		}
	}
	return false
}
