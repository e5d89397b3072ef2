package config

import (
	"fmt"
	"strings"
)

// Validate checks runtime configuration constraints.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.ShareCodeLength < 6 || c.ShareCodeLength > 32 {
		return fmt.Errorf("share_code_length must be within [6,32], got %d", c.ShareCodeLength)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	switch c.Grader.Provider {
	case ProviderHeuristic:
	case ProviderChatGPT:
		if c.Grader.APIKey == "" {
			return fmt.Errorf("grader.api_key (or OPENAI_API_KEY) is required for provider %q", ProviderChatGPT)
		}
	default:
		return fmt.Errorf("grader.provider must be %q or %q, got %q", ProviderHeuristic, ProviderChatGPT, c.Grader.Provider)
	}
	if c.Grader.Timeout <= 0 {
		return fmt.Errorf("grader.timeout must be > 0, got %v", c.Grader.Timeout)
	}
	if c.Grader.Attempts < 1 {
		return fmt.Errorf("grader.attempts must be >= 1, got %d", c.Grader.Attempts)
	}
	if c.Grader.Backoff < 0 {
		return fmt.Errorf("grader.backoff must be >= 0, got %v", c.Grader.Backoff)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0, got %v", c.Cache.TTL)
	}
	if c.Stream.MaxLen < 0 {
		return fmt.Errorf("stream.max_len must be >= 0, got %d", c.Stream.MaxLen)
	}
	if y := c.Valuation.DraftYear; y != 0 && (y < 1900 || y > 2200) {
		return fmt.Errorf("valuation.draft_year must be 0 or a calendar year, got %d", y)
	}
	if err := c.Valuation.Tables.Validate(); err != nil {
		return fmt.Errorf("valuation.tables: %w", err)
	}
	for sport, byPos := range c.Aging.Windows {
		for pos, w := range byPos {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("aging.windows.%s.%s: %w", sport, pos, err)
			}
		}
	}
	for sport, w := range c.Aging.SportDefaults {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("aging.sport_defaults.%s: %w", sport, err)
		}
	}
	if err := c.Aging.Fallback.Validate(); err != nil {
		return fmt.Errorf("aging.fallback: %w", err)
	}
	return nil
}
