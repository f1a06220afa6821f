package labs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidInput is returned for onboarding requests that fail validation
var ErrInvalidInput = errors.New("invalid input")

const maxNameLength = 120

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// NewID returns a fresh laboratory id
func NewID() string {
	return "lab_" + uuid.NewString()
}

// Normalize trims the request and validates it
func (r *OnboardingRequest) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: laboratory name is required", ErrInvalidInput)
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: laboratory name exceeds %d characters", ErrInvalidInput, maxNameLength)
	}
	if r.ThemeColors != nil {
		if err := r.ThemeColors.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every non-empty color is a hex triplet
func (c *ThemeColors) Validate() error {
	for field, value := range map[string]string{
		"primary":   c.Primary,
		"secondary": c.Secondary,
		"accent":    c.Accent,
	} {
		if value != "" && !hexColor.MatchString(value) {
			return fmt.Errorf("%w: %s color %q is not a hex color", ErrInvalidInput, field, value)
		}
	}
	return nil
}

// GenerateSlug derives a URL-safe slug from a laboratory name
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
