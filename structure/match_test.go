package structure

import "testing"

func TestNormalizeNameStripsSymbols(t *testing.T) {
	if got := NormalizeName("\U0001F4E6 QiFlow"); got != "qiflow" {
		t.Fatalf("NormalizeName = %q, want %q", got, "qiflow")
	}
	if got := NormalizeName("  \U0001F6E0️ SUPPORT "); got != "support" {
		t.Fatalf("NormalizeName = %q, want %q", got, "support")
	}
}

func TestNamesMatchDecoratedPrefix(t *testing.T) {
	if !NamesMatch("\U0001F4E6 QiFlow", "QiFlow") {
		t.Fatal("expected decorated live name to match plain spec name")
	}
	if !NamesMatch("QiFlow", "\U0001F4E6 QiFlow") {
		t.Fatal("expected plain live name to match decorated spec name")
	}
}

func TestNamesMatchNegative(t *testing.T) {
	if NamesMatch("QiFlow", "LogSmith") {
		t.Fatal("unrelated names must not match")
	}
	if NamesMatch("", "QiFlow") {
		t.Fatal("empty name must not match")
	}
}

func TestNamesMatchCaseInsensitive(t *testing.T) {
	if !NamesMatch("GENERAL", "general") {
		t.Fatal("expected case-insensitive match")
	}
}
