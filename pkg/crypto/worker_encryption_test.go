package crypto

import (
	"errors"
	"testing"
)

func TestTokenCipher_SealOpen(t *testing.T) {
	c, err := NewTokenCipher("short-secret")
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := c.Seal("ya29.access-token")
	if err != nil {
		t.Fatal(err)
	}
	if sealed == "ya29.access-token" || !LooksSealed(sealed) {
		t.Fatalf("token was not sealed: %q", sealed)
	}

	plain, err := c.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "ya29.access-token" {
		t.Fatalf("Open = %q", plain)
	}
}

func TestTokenCipher_WrongKey(t *testing.T) {
	a, _ := NewTokenCipher("key-a")
	b, _ := NewTokenCipher("key-b")

	sealed, err := a.Seal("refresh")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("err = %v, want ErrDecryptionFailed", err)
	}
}

func TestTokenCipher_NilPassesThrough(t *testing.T) {
	var c *TokenCipher
	sealed, err := c.Seal("plain")
	if err != nil || sealed != "plain" {
		t.Fatalf("Seal = %q, %v", sealed, err)
	}
	opened, err := c.Open("plain")
	if err != nil || opened != "plain" {
		t.Fatalf("Open = %q, %v", opened, err)
	}
}

func TestNewTokenCipher_EmptyKey(t *testing.T) {
	if _, err := NewTokenCipher(""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestLooksSealed(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"ya29.a0AfH6SM", false},
		{"c2hvcnQ=", false},
		{"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := LooksSealed(tt.in); got != tt.want {
				t.Fatalf("LooksSealed(%q) = %v", tt.in, got)
			}
		})
	}
}
