package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nordeim/Security-MCP-Server/internal/sanitize"
	"github.com/nordeim/Security-MCP-Server/internal/scope"
)

// Nmap is grounded on original_source/mcp_server_v2/tools/nmap_tool.py, the
// stricter/newer variant named by spec.md §9's first Open Question.
type Nmap struct {
	AllowIntrusive bool
	concurrency    int
	timeout        time.Duration
	maxArgsLen     int
}

const (
	nmapMaxNetworkSize = 1024
	nmapMaxPortRanges  = 100
)

var nmapBaseAllowedFlags = []string{
	"-sV", "-sC", "-p", "--top-ports", "-T", "-T4", "-Pn",
	"-O", "--script", "-oX", "-oN", "-oG", "--max-parallelism",
	"-sS", "-sT", "-sU", "-sn", "-PS", "-PA", "-PU", "-PY",
	"--open", "--reason", "-v", "-vv", "--version-intensity",
	"--min-rate", "--max-rate", "--max-retries", "--host-timeout",
	"-T0", "-T1", "-T2", "-T3", "-T4", "-T5",
	"--scan-delay", "--max-scan-delay",
	"-f", "--mtu",
	"-D", "--decoy",
	"--source-port", "-g",
	"--data-length",
	"--ttl",
	"--randomize-hosts",
	"--spoof-mac",
}

var nmapSafeScriptCategories = map[string]bool{"safe": true, "default": true, "discovery": true, "version": true}

var nmapSafeScripts = map[string]bool{
	"http-headers": true, "ssl-cert": true, "ssh-hostkey": true, "smb-os-discovery": true,
	"dns-brute": true, "http-title": true, "ftp-anon": true, "smtp-commands": true,
	"pop3-capabilities": true, "imap-capabilities": true, "mongodb-info": true,
	"mysql-info": true, "ms-sql-info": true, "oracle-sid-brute": true,
	"rdp-enum-encryption": true, "vnc-info": true, "x11-access": true,
}

var nmapIntrusiveScriptCategories = map[string]bool{"vuln": true, "exploit": true, "intrusive": true, "brute": true, "dos": true}

var nmapIntrusiveScripts = map[string]bool{
	"http-vuln-*": true, "smb-vuln-*": true, "ssl-heartbleed": true, "ms-sql-brute": true,
	"mysql-brute": true, "ftp-brute": true, "ssh-brute": true, "rdp-brute": true,
	"dns-zone-transfer": true, "snmp-brute": true, "http-slowloris": true,
}

var nmapNumericValueFlags = map[string]bool{
	"--max-parallelism": true, "--version-intensity": true, "--min-rate": true,
	"--max-rate": true, "--max-retries": true, "--host-timeout": true, "--top-ports": true,
	"--scan-delay": true, "--max-scan-delay": true, "--mtu": true, "--data-length": true,
	"--ttl": true, "--source-port": true, "-g": true,
}

var (
	nmapPortSpecRe   = regexp.MustCompile(`^[0-9,\-]+$`)
	nmapNumericValRe = regexp.MustCompile(`^[0-9ms]+$`)
)

func NewNmap(concurrency int, timeout time.Duration, allowIntrusive bool, maxArgsLen int) *Nmap {
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &Nmap{AllowIntrusive: allowIntrusive, concurrency: concurrency, timeout: timeout, maxArgsLen: maxArgsLen}
}

func (t *Nmap) Name() string                 { return "NmapTool" }
func (t *Nmap) CommandName() string          { return "nmap" }
func (t *Nmap) Concurrency() int             { return t.concurrency }
func (t *Nmap) DefaultTimeout() time.Duration { return t.timeout }

func (t *Nmap) AllowedFlags() []string {
	flags := append([]string(nil), nmapBaseAllowedFlags...)
	if t.AllowIntrusive {
		flags = append(flags, "-A")
	}
	return flags
}

func (t *Nmap) ValidateAndBuild(input Input, allowIntrusive bool) (BuildResult, error) {
	target := strings.TrimSpace(input.Target)

	if err := t.validateTarget(target); err != nil {
		return BuildResult{}, err
	}

	tokens, err := t.parseAndValidateArgs(input.ExtraArgs, allowIntrusive)
	if err != nil {
		return BuildResult{}, validationError(t.Name(), target, err.Error())
	}

	optimized, applied := t.optimize(tokens)

	argv := append([]string{"nmap"}, optimized...)
	argv = append(argv, target)

	return BuildResult{
		Argv:          argv,
		Optimizations: applied,
		Metadata:      map[string]any{"optimizations_applied": applied},
	}, nil
}

func (t *Nmap) validateTarget(target string) error {
	if strings.Contains(target, "/") {
		size, err := scope.NetworkSize(target)
		if err != nil {
			return validationError(t.Name(), target, fmt.Sprintf("invalid network range: %s", target))
		}
		if size > nmapMaxNetworkSize {
			suggested := scope.SuggestPrefixForSize(nmapMaxNetworkSize)
			return validationError(t.Name(), target,
				fmt.Sprintf("network range too large: %d addresses (max: %d)", size, nmapMaxNetworkSize)).
				WithMetadata("network_size", size).
				WithMetadata("max_allowed", nmapMaxNetworkSize).
				WithMetadata("suggested_cidr", fmt.Sprintf("/%d", suggested))
		}
		ok, reason := scope.ValidateTarget(target)
		if !ok {
			return validationError(t.Name(), target, reason)
		}
		return nil
	}
	ok, reason := scope.ValidateTarget(target)
	if !ok {
		return validationError(t.Name(), target, reason)
	}
	return nil
}

// parseAndValidateArgs reimplements _parse_and_validate_args: non-flag
// tokens are rejected outright, -A is policy-gated, -p/--ports and
// --script get dedicated validators, -T<digit> timing templates are
// checked by shape, and every other flag must prefix-match the allow-list,
// with a fixed set of flags requiring a numeric-ish value.
func (t *Nmap) parseAndValidateArgs(extraArgs string, allowIntrusive bool) ([]string, error) {
	if strings.TrimSpace(extraArgs) == "" {
		return nil, nil
	}
	tokens, err := sanitize.Tokenize(extraArgs, sanitize.Options{MaxLen: t.maxArgsLen})
	if err != nil {
		return nil, err
	}

	allowed := nmapBaseAllowedFlags
	if allowIntrusive {
		allowed = append(append([]string(nil), nmapBaseAllowedFlags...), "-A")
	}

	var out []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if !strings.HasPrefix(tok, "-") {
			return nil, fmt.Errorf("unexpected non-flag token (potential injection): %s", tok)
		}

		switch {
		case tok == "-A":
			if !allowIntrusive {
				return nil, fmt.Errorf("-A flag requires intrusive operations to be enabled")
			}
			out = append(out, tok)

		case tok == "-p" || tok == "--ports":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("port flag %s requires a value", tok)
			}
			portSpec := tokens[i+1]
			if !t.validatePortSpec(portSpec) {
				return nil, fmt.Errorf("invalid port specification: %s", portSpec)
			}
			out = append(out, tok, portSpec)
			i++

		case tok == "--script":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("--script requires a value")
			}
			filtered := t.filterScripts(tokens[i+1], allowIntrusive)
			if filtered == "" {
				return nil, fmt.Errorf("no allowed scripts in specification: %s", tokens[i+1])
			}
			out = append(out, tok, filtered)
			i++

		case strings.HasPrefix(tok, "-T"):
			if len(tok) == 3 && strings.ContainsRune("012345", rune(tok[2])) {
				out = append(out, tok)
			} else {
				return nil, fmt.Errorf("invalid timing template: %s", tok)
			}

		default:
			flagBase := tok
			if idx := strings.IndexByte(tok, '='); idx >= 0 {
				flagBase = tok[:idx]
			}
			if !hasAllowedPrefixIn(flagBase, allowed) {
				return nil, fmt.Errorf("flag not allowed: %s", tok)
			}
			if nmapNumericValueFlags[flagBase] {
				if i+1 >= len(tokens) {
					return nil, fmt.Errorf("%s requires a value", tok)
				}
				value := tokens[i+1]
				if !nmapNumericValRe.MatchString(value) {
					return nil, fmt.Errorf("invalid value for %s: %s", tok, value)
				}
				out = append(out, tok, value)
				i++
			} else {
				out = append(out, tok)
			}
		}
	}
	return out, nil
}

func (t *Nmap) validatePortSpec(spec string) bool {
	if spec == "" || !nmapPortSpecRe.MatchString(spec) {
		return false
	}
	ranges := strings.Split(spec, ",")
	if len(ranges) > nmapMaxPortRanges {
		return false
	}
	for _, r := range ranges {
		if strings.Contains(r, "-") {
			parts := strings.SplitN(r, "-", 2)
			if len(parts) != 2 {
				return false
			}
			start, err1 := strconv.Atoi(parts[0])
			end, err2 := strconv.Atoi(parts[1])
			if err1 != nil || err2 != nil {
				return false
			}
			if start < 1 || start > 65535 || end < 1 || end > 65535 || start > end {
				return false
			}
		} else {
			port, err := strconv.Atoi(r)
			if err != nil || port < 1 || port > 65535 {
				return false
			}
		}
	}
	return true
}

func (t *Nmap) filterScripts(spec string, allowIntrusive bool) string {
	var allowed []string
	for _, raw := range strings.Split(spec, ",") {
		s := strings.TrimSpace(raw)
		switch {
		case nmapSafeScriptCategories[s]:
			allowed = append(allowed, s)
		case nmapIntrusiveScriptCategories[s]:
			if allowIntrusive {
				allowed = append(allowed, s)
			}
		case nmapSafeScripts[s]:
			allowed = append(allowed, s)
		case nmapIntrusiveScripts[s]:
			if allowIntrusive {
				allowed = append(allowed, s)
			}
		case matchesIntrusiveWildcard(s):
			if allowIntrusive {
				allowed = append(allowed, s)
			}
		}
	}
	return strings.Join(allowed, ",")
}

func matchesIntrusiveWildcard(script string) bool {
	for pattern := range nmapIntrusiveScripts {
		if strings.Contains(pattern, "*") {
			prefix := strings.TrimSuffix(pattern, "*")
			if strings.HasPrefix(script, prefix) {
				return true
			}
		}
	}
	return false
}

// optimize mirrors _optimize_nmap_args: adds -T4, --max-parallelism=10,
// -Pn, --top-ports=1000 when none of those categories are already present.
func (t *Nmap) optimize(tokens []string) ([]string, []string) {
	hasTiming := false
	hasParallelism := false
	hasDiscovery := false
	hasPortSpec := false
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "-T"):
			hasTiming = true
		case strings.Contains(tok, "--max-parallelism"):
			hasParallelism = true
		case tok == "-Pn" || tok == "-sn" || tok == "-PS" || tok == "-PA":
			hasDiscovery = true
		case tok == "-p" || tok == "--ports" || tok == "--top-ports":
			hasPortSpec = true
		}
	}

	var applied []string
	var optimized []string
	if !hasTiming {
		optimized = append(optimized, "-T4")
		applied = append(applied, "-T4")
	}
	if !hasParallelism {
		optimized = append(optimized, "--max-parallelism=10")
		applied = append(applied, "--max-parallelism=10")
	}
	if !hasDiscovery {
		optimized = append(optimized, "-Pn")
		applied = append(applied, "-Pn")
	}
	if !hasPortSpec {
		optimized = append(optimized, "--top-ports=1000")
		applied = append(applied, "--top-ports=1000")
	}
	optimized = append(optimized, tokens...)
	return optimized, applied
}

func hasAllowedPrefixIn(flagBase string, allowed []string) bool {
	for _, a := range allowed {
		if strings.HasPrefix(flagBase, a) {
			return true
		}
	}
	return false
}
