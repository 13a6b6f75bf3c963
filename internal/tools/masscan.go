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

// Masscan is grounded on original_source/mcp_server/tools/masscan_tool.py.
// Unlike Nmap, masscan tolerates large ranges up to a hard ceiling rather
// than rejecting anything above its soft MAX_NETWORK_SIZE outright.
type Masscan struct {
	concurrency int
	timeout     time.Duration
	maxArgsLen  int
}

const (
	masscanMaxNetworkSize = 65536
	masscanHardCap        = masscanMaxNetworkSize * 4
	masscanDefaultRate    = 1000
	masscanMinRate        = 100
	masscanMaxRate        = 100000
	masscanDefaultWait    = 0
)

const masscanDefaultPorts = "80,443,22,21,23,25,3306,3389,8080,8443"

var masscanAllowedFlags = []string{
	"-p", "--ports",
	"--rate",
	"-e", "--interface",
	"--wait",
	"--banners",
	"--router-ip",
	"--router-mac",
	"--source-ip",
	"--source-port",
	"--exclude",
	"--excludefile",
	"-oG", "-oJ", "-oX", "-oL",
	"--rotate",
	"--max-rate",
	"--connection-timeout",
	"--ping",
	"--retries",
}

var (
	masscanPortSpecRe  = regexp.MustCompile(`^[0-9,\-]+$`)
	masscanInterfaceRe = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)
)

func NewMasscan(concurrency int, timeout time.Duration, maxArgsLen int) *Masscan {
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Masscan{concurrency: concurrency, timeout: timeout, maxArgsLen: maxArgsLen}
}

func (t *Masscan) Name() string                  { return "MasscanTool" }
func (t *Masscan) CommandName() string           { return "masscan" }
func (t *Masscan) Concurrency() int              { return t.concurrency }
func (t *Masscan) DefaultTimeout() time.Duration { return t.timeout }
func (t *Masscan) AllowedFlags() []string        { return append([]string(nil), masscanAllowedFlags...) }

func (t *Masscan) ValidateAndBuild(input Input, allowIntrusive bool) (BuildResult, error) {
	target := strings.TrimSpace(input.Target)

	if err := t.validateTarget(target); err != nil {
		return BuildResult{}, err
	}

	tokens, err := t.parseAndValidateArgs(input.ExtraArgs)
	if err != nil {
		return BuildResult{}, validationError(t.Name(), target, err.Error())
	}

	optimized, applied := t.applySafetyLimits(tokens)

	argv := append([]string{"masscan"}, optimized...)
	argv = append(argv, target)

	return BuildResult{
		Argv:          argv,
		Optimizations: applied,
		Metadata:      map[string]any{"optimizations_applied": applied},
	}, nil
}

// validateTarget mirrors _validate_masscan_requirements: a CIDR target may
// exceed MAX_NETWORK_SIZE (accepted without any warning being logged or
// returned) but is rejected
// outright past the 4x hard cap, and must ultimately be private or loopback.
func (t *Masscan) validateTarget(target string) error {
	if !strings.Contains(target, "/") {
		ok, reason := scope.ValidateTarget(target)
		if !ok {
			return validationError(t.Name(), target, reason)
		}
		return nil
	}

	size, err := scope.NetworkSize(target)
	if err != nil {
		return validationError(t.Name(), target, fmt.Sprintf("invalid network range: %s", target))
	}
	if size > masscanHardCap {
		return validationError(t.Name(), target,
			fmt.Sprintf("network range too large: %d addresses", size)).
			WithMetadata("network_size", size).
			WithMetadata("max_allowed", masscanHardCap)
	}
	ok, reason := scope.ValidateTarget(target)
	if !ok {
		return validationError(t.Name(), target, reason)
	}
	return nil
}

// parseAndValidateArgs reimplements _parse_and_validate_args: --rate and
// port flags get dedicated validators, -e/--interface gets a name regex,
// every other flag must prefix-match the allow-list, and non-flag tokens
// (unlike nmap) pass through untouched.
func (t *Masscan) parseAndValidateArgs(extraArgs string) ([]string, error) {
	if strings.TrimSpace(extraArgs) == "" {
		return nil, nil
	}
	tokens, err := sanitize.Tokenize(extraArgs, sanitize.Options{MaxLen: t.maxArgsLen})
	if err != nil {
		return nil, err
	}

	var out []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch {
		case tok == "--rate":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("--rate requires a value")
			}
			rateSpec := tokens[i+1]
			rate, err := strconv.Atoi(rateSpec)
			if err != nil || rate < masscanMinRate || rate > masscanMaxRate {
				return nil, fmt.Errorf("invalid rate specification: %s", rateSpec)
			}
			out = append(out, tok, strconv.Itoa(rate))
			i++

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

		case tok == "-e" || tok == "--interface":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("interface flag %s requires a value", tok)
			}
			iface := tokens[i+1]
			if !masscanInterfaceRe.MatchString(iface) {
				return nil, fmt.Errorf("invalid interface name: %s", iface)
			}
			out = append(out, tok, iface)
			i++

		case strings.HasPrefix(tok, "-"):
			flagBase := tok
			if idx := strings.IndexByte(tok, '='); idx >= 0 {
				flagBase = tok[:idx]
			}
			if !hasAllowedPrefixIn(flagBase, masscanAllowedFlags) {
				return nil, fmt.Errorf("flag not allowed: %s", tok)
			}
			out = append(out, tok)

		default:
			out = append(out, tok)
		}
	}
	return out, nil
}

// validatePortSpec allows masscan's U:/T: protocol prefixes in addition to
// the nmap-style comma/range grammar.
func (t *Masscan) validatePortSpec(spec string) bool {
	if spec == "" {
		return false
	}
	trimmed := spec
	if strings.HasPrefix(trimmed, "U:") || strings.HasPrefix(trimmed, "T:") {
		trimmed = trimmed[2:]
	}
	if !masscanPortSpecRe.MatchString(trimmed) {
		return false
	}
	for _, r := range strings.Split(trimmed, ",") {
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
			if start < 0 || start > 65535 || end < 0 || end > 65535 || start > end {
				return false
			}
		} else {
			port, err := strconv.Atoi(r)
			if err != nil || port < 0 || port > 65535 {
				return false
			}
		}
	}
	return true
}

// applySafetyLimits mirrors _apply_safety_limits: rate, wait, retries and a
// default port list are prepended whenever the caller didn't already supply
// them, exactly as nmap's optimize() prepends its own defaults.
func (t *Masscan) applySafetyLimits(tokens []string) ([]string, []string) {
	hasRate := false
	hasWait := false
	hasRetries := false
	hasPorts := false
	for i, tok := range tokens {
		switch {
		case strings.Contains(tok, "--rate"):
			hasRate = true
		case strings.Contains(tok, "--wait"):
			hasWait = true
		case strings.Contains(tok, "--retries"):
			hasRetries = true
		case tok == "-p" || tok == "--ports":
			hasPorts = true
		}
		_ = i
	}

	var applied []string
	var optimized []string
	if !hasRate {
		optimized = append(optimized, "--rate", strconv.Itoa(masscanDefaultRate))
		applied = append(applied, fmt.Sprintf("--rate=%d", masscanDefaultRate))
	}
	if !hasWait {
		optimized = append(optimized, "--wait", strconv.Itoa(masscanDefaultWait))
		applied = append(applied, fmt.Sprintf("--wait=%d", masscanDefaultWait))
	}
	if !hasRetries {
		optimized = append(optimized, "--retries", "1")
		applied = append(applied, "--retries=1")
	}
	if !hasPorts {
		optimized = append(optimized, "-p", masscanDefaultPorts)
		applied = append(applied, "-p="+masscanDefaultPorts)
	}
	optimized = append(optimized, tokens...)
	return optimized, applied
}
