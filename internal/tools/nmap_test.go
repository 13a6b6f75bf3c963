package tools

import "testing"

func TestNmapValidateAndBuildHappyPath(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	result, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "-p 80,443"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Argv[0] != "nmap" || result.Argv[len(result.Argv)-1] != "192.168.1.10" {
		t.Fatalf("unexpected argv: %v", result.Argv)
	}
	if len(result.Optimizations) == 0 {
		t.Fatal("expected default optimizations to be applied")
	}
}

func TestNmapRejectsPublicTarget(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	if _, err := n.ValidateAndBuild(Input{Target: "8.8.8.8"}, false); err == nil {
		t.Fatal("expected rejection of public target")
	}
}

func TestNmapRejectsOversizedNetwork(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	_, err := n.ValidateAndBuild(Input{Target: "10.0.0.0/8"}, false)
	if err == nil {
		t.Fatal("expected rejection of oversized network")
	}
}

func TestNmapRejectsShellInjectionAttempt(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	if _, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "; rm -rf /"}, false); err == nil {
		t.Fatal("expected rejection of injected command")
	}
}

func TestNmapRejectsCommandSubstitutionInFlagValue(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	if _, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "--mtu=$(id)"}, false); err == nil {
		t.Fatal("expected rejection of command substitution hidden inside a flag value")
	}
}

func TestNmapRejectsRedirectionInFlagToken(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	if _, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "-sV>out"}, false); err == nil {
		t.Fatal("expected rejection of output redirection appended to a flag")
	}
}

func TestNmapRejectsIntrusiveFlagWithoutPolicy(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	if _, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "-A"}, false); err == nil {
		t.Fatal("expected -A to require allow_intrusive")
	}
}

func TestNmapAllowsIntrusiveFlagWithPolicy(t *testing.T) {
	n := NewNmap(2, 0, true, 0)
	result, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "-A"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, a := range result.Argv {
		if a == "-A" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected -A in argv: %v", result.Argv)
	}
}

func TestNmapRejectsBadPortSpec(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	if _, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "-p notaport"}, false); err == nil {
		t.Fatal("expected rejection of malformed port spec")
	}
}

func TestNmapScriptFiltersIntrusiveByDefault(t *testing.T) {
	n := NewNmap(2, 0, false, 0)
	if _, err := n.ValidateAndBuild(Input{Target: "192.168.1.10", ExtraArgs: "--script vuln"}, false); err == nil {
		t.Fatal("expected intrusive script category to be rejected without allow_intrusive")
	}
}

func TestNmapInfo(t *testing.T) {
	n := NewNmap(3, 0, false, 0)
	if n.Name() != "NmapTool" || n.CommandName() != "nmap" || n.Concurrency() != 3 {
		t.Fatalf("unexpected tool identity: %+v", n)
	}
	for _, f := range n.AllowedFlags() {
		if f == "-A" {
			t.Fatal("did not expect -A in allowed flags without allow_intrusive")
		}
	}
}
