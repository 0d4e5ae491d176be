package utils

import "testing"

func TestCalculateSHA256(t *testing.T) {
	// sha256("AAAA")
	want := "63c1dd951ffedf6f7fd968ad4efa39b8ed584f162f46e715114ee184f8de9201"
	if got := CalculateSHA256([]byte("AAAA")); got != want {
		t.Fatalf("CalculateSHA256 = %s, want %s", got, want)
	}
	if !ValidSHA256(want) {
		t.Fatal("ValidSHA256 rejected a valid hash")
	}
}

func TestChecksumMatches(t *testing.T) {
	sum := CalculateSHA256([]byte("BBBB"))
	if !ChecksumMatches([]byte("BBBB"), sum) {
		t.Fatal("expected match")
	}
	if ChecksumMatches([]byte("CCCC"), sum) {
		t.Fatal("expected mismatch")
	}
	if !ChecksumMatches([]byte("anything"), "") {
		t.Fatal("empty checksum should be skipped")
	}
}

func TestValidSHA256(t *testing.T) {
	for _, s := range []string{"", "abc", "zz" + CalculateSHA256(nil)[2:]} {
		if ValidSHA256(s) {
			t.Fatalf("ValidSHA256(%q) = true", s)
		}
	}
}
