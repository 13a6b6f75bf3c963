package sanitize

import "testing"

func TestTokenizeRejectsMetacharacters(t *testing.T) {
	for _, raw := range []string{"-p 80; rm -rf /", "-p `whoami`", "-p 80 && ls", "-p 80 | cat"} {
		if _, err := Tokenize(raw, Options{}); err == nil {
			t.Fatalf("Tokenize(%q) expected rejection", raw)
		}
	}
}

func TestTokenizeAcceptsOrdinaryFlags(t *testing.T) {
	toks, err := Tokenize("-p 1-1000 -sV --open", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"-p", "1-1000", "-sV", "--open"}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestTokenizeEnforcesMaxLen(t *testing.T) {
	raw := make([]byte, MaxArgsLen+1)
	for i := range raw {
		raw[i] = 'a'
	}
	if _, err := Tokenize(string(raw), Options{}); err == nil {
		t.Fatal("expected length cap rejection")
	}
}

func TestTokenizeFlagPrefixAllowList(t *testing.T) {
	opts := Options{AllowedFlagPrefixes: []string{"-p", "--open"}}
	if _, err := Tokenize("-p 80 --open", opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Tokenize("-p 80 --script=vuln", opts); err == nil {
		t.Fatal("expected rejection of disallowed flag")
	}
}

func TestTokenizeExtraAllowedTokens(t *testing.T) {
	opts := Options{ExtraAllowedTokens: map[string]bool{"dir": true}}
	toks, err := Tokenize("dir -u http://10.0.0.1/", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0] != "dir" {
		t.Fatalf("got %v", toks)
	}
}

func TestShellSplitQuoting(t *testing.T) {
	toks, err := ShellSplit(`-p 80 --script "http-title,http-headers"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"-p", "80", "--script", "http-title,http-headers"}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestShellSplitUnterminatedQuote(t *testing.T) {
	if _, err := ShellSplit(`-p "80`); err == nil {
		t.Fatal("expected unterminated quote error")
	}
}
