package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrClientNotFound is returned when no configuration exists for a client id.
var ErrClientNotFound = errors.New("client not found")

// DefaultGreeting is played when a call cannot be matched to a client.
const DefaultGreeting = "Hello, thank you for calling. How can I help you today?"

// FAQ is a question the receptionist should be able to answer.
type FAQ struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// ClientConfig is the per-business configuration used on a call.
type ClientConfig struct {
	ID            string   `yaml:"id" json:"id"`
	CompanyName   string   `yaml:"company_name" json:"company_name"`
	Greeting      string   `yaml:"greeting" json:"greeting,omitempty"`
	Voice         string   `yaml:"voice" json:"voice,omitempty"`
	Language      string   `yaml:"language" json:"language,omitempty"`
	BusinessHours string   `yaml:"business_hours" json:"business_hours,omitempty"`
	FAQs          []FAQ    `yaml:"faqs" json:"faqs,omitempty"`
	Knowledge     []string `yaml:"knowledge" json:"knowledge,omitempty"`
}

// Provider looks up client configuration.
type Provider interface {
	Lookup(ctx context.Context, clientID string) (ClientConfig, error)
}

// Default returns the configuration used for unknown callers.
func Default() ClientConfig {
	return ClientConfig{Greeting: DefaultGreeting}
}

// GreetingText returns the configured greeting, or one built from the
// company name, or DefaultGreeting.
func (c ClientConfig) GreetingText() string {
	if g := strings.TrimSpace(c.Greeting); g != "" {
		return g
	}
	if c.CompanyName != "" {
		return fmt.Sprintf("Thank you for calling %s. How can I help you today?", c.CompanyName)
	}
	return DefaultGreeting
}

// BuildInstructions renders the AI system instructions for a client. base is
// the deployment-wide receptionist persona.
func BuildInstructions(c ClientConfig, base string) string {
	var b strings.Builder

	if base = strings.TrimSpace(base); base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}

	if c.CompanyName != "" {
		fmt.Fprintf(&b, "You are the receptionist for %s.", c.CompanyName)
	} else {
		b.WriteString("You are a professional telephone receptionist.")
	}
	b.WriteString(" Keep answers short and natural for a phone call. Take the caller's name, company, phone number and reason for calling.\n")

	if c.Language != "" {
		fmt.Fprintf(&b, "Speak %s unless the caller uses another language.\n", c.Language)
	}
	if c.BusinessHours != "" {
		fmt.Fprintf(&b, "Business hours: %s\n", c.BusinessHours)
	}

	if len(c.FAQs) > 0 {
		b.WriteString("\nFrequently asked questions:\n")
		for _, f := range c.FAQs {
			if f.Question == "" || f.Answer == "" {
				continue
			}
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", f.Question, f.Answer)
		}
	}

	if len(c.Knowledge) > 0 {
		b.WriteString("\nBusiness information:\n")
		for _, k := range c.Knowledge {
			if k = strings.TrimSpace(k); k != "" {
				fmt.Fprintf(&b, "- %s\n", k)
			}
		}
	}

	b.WriteString("\nIf you do not know an answer, offer to take a message.")
	return b.String()
}

// StaticProvider serves a fixed set of clients.
type StaticProvider struct {
	mu      sync.RWMutex
	clients map[string]ClientConfig
}

// NewStaticProvider creates a provider for the given clients.
func NewStaticProvider(clients ...ClientConfig) *StaticProvider {
	p := &StaticProvider{clients: make(map[string]ClientConfig, len(clients))}
	for _, c := range clients {
		p.clients[c.ID] = c
	}
	return p
}

// Lookup returns the configuration for clientID.
func (p *StaticProvider) Lookup(ctx context.Context, clientID string) (ClientConfig, error) {
	if err := ctx.Err(); err != nil {
		return ClientConfig{}, err
	}
	if clientID == "" {
		return ClientConfig{}, fmt.Errorf("empty client id: %w", ErrClientNotFound)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.clients[clientID]
	if !ok {
		return ClientConfig{}, fmt.Errorf("client %q: %w", clientID, ErrClientNotFound)
	}
	return c, nil
}

// Len returns the number of clients served.
func (p *StaticProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}

// Clients returns every client served, ordered by id.
func (p *StaticProvider) Clients() []ClientConfig {
	p.mu.RLock()
	out := make([]ClientConfig, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *StaticProvider) replace(clients map[string]ClientConfig) {
	p.mu.Lock()
	p.clients = clients
	p.mu.Unlock()
}

// FileProvider serves clients loaded from a YAML file of the form
//
//	clients:
//	  - id: acme
//	    company_name: Acme Corp
//	    greeting: ...
type FileProvider struct {
	*StaticProvider
	path string
}

type clientFile struct {
	Clients []ClientConfig `yaml:"clients"`
}

// NewFileProvider loads clients from path.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{StaticProvider: NewStaticProvider(), path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the client file. On error the previous clients are kept.
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read client directory: %w", err)
	}

	var file clientFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse client directory: %w", err)
	}

	clients := make(map[string]ClientConfig, len(file.Clients))
	for i, c := range file.Clients {
		if c.ID == "" {
			return fmt.Errorf("client %d: id is required", i)
		}
		if _, dup := clients[c.ID]; dup {
			return fmt.Errorf("client %q: duplicate id", c.ID)
		}
		clients[c.ID] = c
	}

	p.replace(clients)
	return nil
}
