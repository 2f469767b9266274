package speech

import (
	"context"
	"fmt"
	"strings"
)

// Voice describes one synthesizer voice.
type Voice struct {
	ID   string
	Name string
	Lang string
}

// VoiceLister is implemented by engines that can enumerate their voices.
type VoiceLister interface {
	Voices(ctx context.Context) ([]Voice, error)
}

// StaticVoices is a VoiceLister backed by a fixed list, typically from config.
type StaticVoices []Voice

// Voices returns a copy of the list.
func (s StaticVoices) Voices(context.Context) ([]Voice, error) {
	return append([]Voice(nil), s...), nil
}

// Catalog is the immutable set of voices a Player chooses from. It is built
// once at startup and shared read-only.
type Catalog struct {
	voices []Voice
}

// NewCatalog copies voices into a Catalog.
func NewCatalog(voices []Voice) *Catalog {
	return &Catalog{voices: append([]Voice(nil), voices...)}
}

// LoadCatalog queries lister once and keeps the voices whose language starts
// with langPrefix. An empty prefix keeps everything.
func LoadCatalog(ctx context.Context, lister VoiceLister, langPrefix string) (*Catalog, error) {
	if lister == nil {
		return NewCatalog(nil), nil
	}
	all, err := lister.Voices(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech: list voices: %w", err)
	}
	prefix := strings.ToLower(langPrefix)
	kept := make([]Voice, 0, len(all))
	for _, v := range all {
		if strings.HasPrefix(strings.ToLower(v.Lang), prefix) {
			kept = append(kept, v)
		}
	}
	return &Catalog{voices: kept}, nil
}

// Voices returns a copy of the catalog contents.
func (c *Catalog) Voices() []Voice {
	if c == nil {
		return nil
	}
	return append([]Voice(nil), c.voices...)
}

// Len reports the number of voices.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.voices)
}

// Select picks the voice named name, otherwise the first voice whose language
// equals locale (case-insensitive). The second result is false when neither
// exists and the engine default should be used.
func (c *Catalog) Select(name, locale string) (Voice, bool) {
	if c == nil {
		return Voice{}, false
	}
	if name != "" {
		for _, v := range c.voices {
			if v.Name == name {
				return v, true
			}
		}
	}
	if locale != "" {
		for _, v := range c.voices {
			if strings.EqualFold(v.Lang, locale) {
				return v, true
			}
		}
	}
	return Voice{}, false
}
