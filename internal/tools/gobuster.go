package tools

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nordeim/Security-MCP-Server/internal/sanitize"
	"github.com/nordeim/Security-MCP-Server/internal/scope"
)

// Gobuster is grounded on original_source/mcp_server/tools/gobuster_tool.py's
// mode extraction and target-injection logic. Thread defaults/caps and
// wordlist limits follow spec.md §4.5.3's literal numbers, which differ from
// the Python defaults (50/100/30): the spec's numbers win.
type Gobuster struct {
	AllowIntrusive bool
	concurrency    int
	timeout        time.Duration
	maxArgsLen     int
}

const (
	gobusterMaxWordlistBytes = 50 * 1024 * 1024
	gobusterMaxWordlistLines = 1_000_000
)

var gobusterAllowedModes = map[string]bool{"dir": true, "dns": true, "vhost": true}

var gobusterThreadDefaults = map[string]int{"dir": 10, "dns": 20, "vhost": 10}
var gobusterThreadCaps = map[string]int{"dir": 30, "dns": 50, "vhost": 20}

var gobusterIntrusiveExtensions = map[string]bool{
	"html": true, "htm": true, "php": true, "asp": true, "aspx": true, "txt": true, "xml": true, "json": true,
}

var gobusterAllowedFlags = []string{
	"-w", "--wordlist",
	"-t", "--threads",
	"-q", "--quiet",
	"-k", "--no-tls-validation",
	"-o", "--output",
	"-s", "--status-codes",
	"-x", "--extensions",
	"--timeout",
	"--no-color",
	"-H", "--header",
	"-r", "--follow-redirect",
	"-u", "--url",
	"-d", "--domain",
	"--wildcard",
	"--append-domain",
}

var gobusterExtensionsRe = regexp.MustCompile(`^[A-Za-z0-9,]+$`)

func NewGobuster(concurrency int, timeout time.Duration, allowIntrusive bool, maxArgsLen int) *Gobuster {
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 1200 * time.Second
	}
	return &Gobuster{AllowIntrusive: allowIntrusive, concurrency: concurrency, timeout: timeout, maxArgsLen: maxArgsLen}
}

func (t *Gobuster) Name() string                  { return "GobusterTool" }
func (t *Gobuster) CommandName() string           { return "gobuster" }
func (t *Gobuster) Concurrency() int              { return t.concurrency }
func (t *Gobuster) DefaultTimeout() time.Duration { return t.timeout }
func (t *Gobuster) AllowedFlags() []string        { return append([]string(nil), gobusterAllowedFlags...) }

func (t *Gobuster) ValidateAndBuild(input Input, allowIntrusive bool) (BuildResult, error) {
	target := strings.TrimSpace(input.Target)

	if strings.TrimSpace(input.ExtraArgs) == "" {
		return BuildResult{}, validationError(t.Name(), target, "gobuster requires a mode: dir, dns, or vhost")
	}

	tokens, err := sanitize.Tokenize(input.ExtraArgs, sanitize.Options{
		MaxLen:             t.maxArgsLen,
		ExtraAllowedTokens: gobusterAllowedModes,
	})
	if err != nil {
		return BuildResult{}, validationError(t.Name(), target, err.Error())
	}

	mode, rest, err := t.extractModeAndArgs(tokens)
	if err != nil {
		return BuildResult{}, validationError(t.Name(), target, err.Error())
	}

	if !t.isModeValidForTarget(mode, target) {
		return BuildResult{}, validationError(t.Name(), target,
			fmt.Sprintf("invalid target %q for mode %q", target, mode))
	}

	for _, tok := range rest {
		if !strings.HasPrefix(tok, "-") && gobusterAllowedModes[tok] {
			return BuildResult{}, validationError(t.Name(), target,
				fmt.Sprintf("multiple modes specified: %s, %s", mode, tok))
		}
	}

	if err := t.validateModeTarget(mode, target); err != nil {
		return BuildResult{}, err
	}

	validated, err := t.validateFlags(rest, allowIntrusive)
	if err != nil {
		return BuildResult{}, validationError(t.Name(), target, err.Error())
	}

	final := t.ensureTargetArg(mode, validated, target)
	optimized, applied := t.optimize(mode, final)

	argv := []string{"gobuster", mode}
	argv = append(argv, optimized...)

	return BuildResult{
		Argv:          argv,
		Optimizations: applied,
		Metadata:      map[string]any{"optimizations_applied": applied, "mode": mode},
	}, nil
}

// extractModeAndArgs mirrors _extract_mode_and_args: the mode is the first
// non-flag token; everything after it (flag or not) is kept for later checks.
func (t *Gobuster) extractModeAndArgs(tokens []string) (string, []string, error) {
	var mode string
	var rest []string
	found := false
	for i, tok := range tokens {
		if strings.HasPrefix(tok, "-") {
			rest = append(rest, tok)
			continue
		}
		mode = tok
		rest = append(rest, tokens[i+1:]...)
		found = true
		break
	}
	if !found {
		return "", nil, fmt.Errorf("gobuster requires a mode: one of dir, dns, vhost as the first non-flag token")
	}
	if !gobusterAllowedModes[mode] {
		return "", nil, fmt.Errorf("gobuster mode not allowed: %s", mode)
	}
	return mode, rest, nil
}

func (t *Gobuster) isModeValidForTarget(mode, target string) bool {
	switch mode {
	case "dns":
		return !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://")
	case "dir", "vhost":
		return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
	default:
		return true
	}
}

// validateModeTarget enforces C1 on the extracted host/domain: dir/vhost
// extract the URL host, dns requires a .lab.internal hostname directly.
func (t *Gobuster) validateModeTarget(mode, target string) error {
	switch mode {
	case "dir", "vhost":
		ok, reason := scope.ValidateHostFromURL(stripScheme(target))
		if !ok {
			return validationError(t.Name(), target, reason)
		}
	case "dns":
		ok, reason := scope.ValidateTarget(target)
		if !ok {
			return validationError(t.Name(), target, reason)
		}
	}
	return nil
}

func stripScheme(url string) string {
	s := strings.TrimPrefix(url, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// ensureTargetArg injects -u/-d from the validated target when the caller
// did not already supply one, exactly as _ensure_target_arg does.
func (t *Gobuster) ensureTargetArg(mode string, args []string, target string) []string {
	out := append([]string(nil), args...)
	hasU := false
	hasD := false
	for _, a := range out {
		if a == "-u" || a == "--url" {
			hasU = true
		}
		if a == "-d" || a == "--domain" {
			hasD = true
		}
	}
	switch mode {
	case "dir", "vhost":
		if !hasU {
			out = append(out, "-u", target)
		}
	case "dns":
		if !hasD {
			out = append(out, "-d", target)
		}
	}
	return out
}

// validateFlags checks every flag against the allow-list and applies
// dedicated validators for -w (wordlist) and -x/--extensions (spec.md §4.5.3).
func (t *Gobuster) validateFlags(tokens []string, allowIntrusive bool) ([]string, error) {
	var out []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok, "-") {
			out = append(out, tok)
			continue
		}
		flagBase := tok
		if idx := strings.IndexByte(tok, '='); idx >= 0 {
			flagBase = tok[:idx]
		}
		if !hasAllowedPrefixIn(flagBase, gobusterAllowedFlags) {
			return nil, fmt.Errorf("flag not allowed: %s", tok)
		}

		switch flagBase {
		case "-w", "--wordlist":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%s requires a value", tok)
			}
			path := tokens[i+1]
			if err := validateWordlist(path); err != nil {
				return nil, err
			}
			out = append(out, tok, path)
			i++
		case "-x", "--extensions":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%s requires a value", tok)
			}
			spec := tokens[i+1]
			if !gobusterExtensionsRe.MatchString(spec) {
				return nil, fmt.Errorf("invalid extensions specification: %s", spec)
			}
			if !allowIntrusive {
				spec = intersectExtensions(spec)
				if spec == "" {
					return nil, fmt.Errorf("no allowed extensions in specification")
				}
			}
			out = append(out, tok, spec)
			i++
		default:
			out = append(out, tok)
		}
	}
	return out, nil
}

func intersectExtensions(spec string) string {
	var kept []string
	for _, ext := range strings.Split(spec, ",") {
		if gobusterIntrusiveExtensions[strings.ToLower(ext)] {
			kept = append(kept, ext)
		}
	}
	return strings.Join(kept, ",")
}

// validateWordlist enforces the existence/size/line-count caps from
// spec.md §4.5.3. Grounded on base_tool.py's general philosophy of failing
// closed on anything it cannot verify about a filesystem path.
func validateWordlist(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("wordlist not found: %s", path)
	}
	if info.Size() > gobusterMaxWordlistBytes {
		return fmt.Errorf("wordlist too large: %d bytes (max %d)", info.Size(), gobusterMaxWordlistBytes)
	}
	lines, err := countLines(path)
	if err != nil {
		return fmt.Errorf("unable to read wordlist: %s", path)
	}
	if lines > gobusterMaxWordlistLines {
		return fmt.Errorf("wordlist has too many lines: %d (max %d)", lines, gobusterMaxWordlistLines)
	}
	return nil
}

func countLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	count := strings.Count(string(data), "\n")
	if data[len(data)-1] != '\n' {
		count++
	}
	return count, nil
}

// optimize adds mode-appropriate defaults: the spec's literal thread
// defaults/caps, status codes for dir, wildcard detection for dns,
// append-domain for vhost, plus a shared 10s per-request timeout, quiet,
// and no-progress.
func (t *Gobuster) optimize(mode string, args []string) ([]string, []string) {
	optimized := append([]string(nil), args...)
	var applied []string

	threads, hasThreads := extractThreads(args)
	if !hasThreads {
		threads = gobusterThreadDefaults[mode]
		optimized = append(optimized, "-t", strconv.Itoa(threads))
		applied = append(applied, fmt.Sprintf("-t=%d", threads))
	} else if cap := gobusterThreadCaps[mode]; threads > cap {
		optimized = replaceThreads(optimized, cap)
		applied = append(applied, fmt.Sprintf("threads-capped=%d", cap))
	}

	switch mode {
	case "dir":
		if !hasFlag(args, "-s", "--status-codes") {
			optimized = append(optimized, "-s", "200,204,301,302,307,401,403")
			applied = append(applied, "status-codes=200,204,301,302,307,401,403")
		}
	case "dns":
		if !hasFlag(args, "--wildcard") {
			optimized = append(optimized, "--wildcard")
			applied = append(applied, "--wildcard")
		}
	case "vhost":
		if !hasFlag(args, "--append-domain") {
			optimized = append(optimized, "--append-domain")
			applied = append(applied, "--append-domain")
		}
	}

	if !hasFlag(args, "--timeout") {
		optimized = append(optimized, "--timeout", "10s")
		applied = append(applied, "--timeout=10s")
	}
	if !hasFlag(args, "-q", "--quiet") {
		optimized = append(optimized, "-q")
		applied = append(applied, "-q")
	}
	if !hasFlag(args, "--no-progress") {
		optimized = append(optimized, "--no-progress")
		applied = append(applied, "--no-progress")
	}

	return optimized, applied
}

func extractThreads(args []string) (int, bool) {
	for i, a := range args {
		if (a == "-t" || a == "--threads") && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func replaceThreads(args []string, capVal int) []string {
	out := append([]string(nil), args...)
	for i, a := range out {
		if (a == "-t" || a == "--threads") && i+1 < len(out) {
			out[i+1] = strconv.Itoa(capVal)
		}
	}
	return out
}

func hasFlag(args []string, names ...string) bool {
	for _, a := range args {
		for _, n := range names {
			if a == n {
				return true
			}
		}
	}
	return false
}
