// Package catalog holds the fixed reply templates and the FAQ knowledge
// catalog. Every caller-facing sentence in the system comes from here.
package catalog

import (
	_ "embed"
	"log"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

// Channel selects the rendering variant of a message.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelText  Channel = "text"
)

type entry struct {
	Voice string `yaml:"voice"`
	Text  string `yaml:"text"`
}

// Catalog is a read-only message table, safe for concurrent use.
type Catalog struct {
	entries map[string]entry
}

// Load parses the embedded message table.
func Load() (*Catalog, error) {
	var entries map[string]entry
	if err := yaml.Unmarshal(messagesYAML, &entries); err != nil {
		return nil, err
	}
	return &Catalog{entries: entries}, nil
}

// MustLoad is Load for wiring paths where the embedded data is known good.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

const fallbackText = "I'm sorry, something went wrong on my side. Let me put you through to a colleague."

// Render returns the message for id on the given channel with {param}
// placeholders substituted. It never returns an empty string: an unknown id
// or empty variant renders the fixed fallback and logs.
func (c *Catalog) Render(id string, ch Channel, params map[string]string) string {
	e, ok := c.entries[id]
	if !ok {
		log.Printf("[catalog] missing message id=%q", id)
		return fallbackText
	}
	text := e.Voice
	if ch == ChannelText && e.Text != "" {
		text = e.Text
	}
	if text == "" {
		// Only one variant authored; use whichever exists.
		text = e.Text
	}
	if text == "" {
		log.Printf("[catalog] empty message id=%q channel=%q", id, ch)
		return fallbackText
	}
	for k, v := range params {
		text = strings.ReplaceAll(text, "{"+k+"}", v)
	}
	return text
}

// Has reports whether the catalog contains id (used to probe retry variants).
func (c *Catalog) Has(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// Merge joins candidate messages into the single outgoing reply for a turn.
func Merge(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
