package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGreetingText(t *testing.T) {
	if got := (ClientConfig{Greeting: "  Hi from Acme  "}).GreetingText(); got != "Hi from Acme" {
		t.Errorf("Expected configured greeting, got %q", got)
	}
	if got := (ClientConfig{CompanyName: "Acme"}).GreetingText(); !strings.Contains(got, "Acme") {
		t.Errorf("Expected company greeting, got %q", got)
	}
	if got := Default().GreetingText(); got != DefaultGreeting {
		t.Errorf("Expected default greeting, got %q", got)
	}
}

func TestBuildInstructions(t *testing.T) {
	c := ClientConfig{
		CompanyName:   "Acme Plumbing",
		Language:      "Spanish",
		BusinessHours: "Mon-Fri 9-5",
		FAQs: []FAQ{
			{Question: "Do you do emergencies?", Answer: "Yes, 24/7."},
			{Question: "incomplete"},
		},
		Knowledge: []string{"We serve Springfield.", "  "},
	}

	got := BuildInstructions(c, "Be warm.")

	for _, want := range []string{
		"Be warm.",
		"receptionist for Acme Plumbing",
		"Speak Spanish",
		"Mon-Fri 9-5",
		"Q: Do you do emergencies?\nA: Yes, 24/7.",
		"- We serve Springfield.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected instructions to contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "incomplete") {
		t.Error("Expected incomplete FAQ to be skipped")
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(ClientConfig{ID: "acme", CompanyName: "Acme"})

	c, err := p.Lookup(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if c.CompanyName != "Acme" {
		t.Errorf("Expected Acme, got %q", c.CompanyName)
	}

	if _, err := p.Lookup(context.Background(), "other"); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound, got %v", err)
	}
	if _, err := p.Lookup(context.Background(), ""); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound for empty id, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Lookup(ctx, "acme"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context error, got %v", err)
	}
}

func TestStaticProviderClients(t *testing.T) {
	p := NewStaticProvider(ClientConfig{ID: "zeta"}, ClientConfig{ID: "acme"})

	clients := p.Clients()
	if len(clients) != 2 || p.Len() != 2 {
		t.Fatalf("Expected 2 clients, got %d", len(clients))
	}
	if clients[0].ID != "acme" || clients[1].ID != "zeta" {
		t.Errorf("Expected clients ordered by id, got %q, %q", clients[0].ID, clients[1].ID)
	}
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.yaml")
	content := `clients:
  - id: acme
    company_name: Acme Corp
    voice: alloy
    faqs:
      - question: Where are you?
        answer: Main street.
  - id: globex
    company_name: Globex
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write client file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("Expected 2 clients, got %d", p.Len())
	}

	c, err := p.Lookup(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if c.Voice != "alloy" || len(c.FAQs) != 1 || c.FAQs[0].Answer != "Main street." {
		t.Errorf("Unexpected client %+v", c)
	}

	// A broken file keeps the previous clients.
	if err := os.WriteFile(path, []byte("clients:\n  - company_name: missing id\n"), 0644); err != nil {
		t.Fatalf("Failed to write client file: %v", err)
	}
	if err := p.Reload(); err == nil {
		t.Error("Expected reload error for client without id")
	}
	if p.Len() != 2 {
		t.Errorf("Expected previous clients to be kept, got %d", p.Len())
	}
}

func TestFileProviderErrors(t *testing.T) {
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "dup.yaml")
	os.WriteFile(path, []byte("clients:\n  - id: a\n  - id: a\n"), 0644)
	if _, err := NewFileProvider(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected duplicate id error, got %v", err)
	}
}
