package client

import (
	"context"
	"testing"
)

func TestStaticCredentials(t *testing.T) {
	creds := NewStaticCredentials("abc")
	ctx := context.Background()

	if tok, _ := creds.Token(ctx); tok != "abc" {
		t.Errorf("Token() = %q, want abc", tok)
	}

	creds.Invalidate()
	if tok, _ := creds.Token(ctx); tok != "" {
		t.Errorf("Token() after Invalidate = %q, want empty", tok)
	}

	creds.Set("def")
	if tok, _ := creds.Token(ctx); tok != "def" {
		t.Errorf("Token() after Set = %q, want def", tok)
	}
}
