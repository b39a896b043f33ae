package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  Result
	}{
		{"empty", "", Result{Error: "Email is required"}},
		{"no at", "userexample.com", Result{Error: "Please enter a valid email address"}},
		{"short tld", "user@example.c", Result{Error: "Please enter a valid email address"}},
		{"valid", "jane.doe+closet@example.co.uk", Result{Valid: true}},
		{"too long", strings.Repeat("a", 250) + "@example.com", Result{Error: "Email is too long"}},
		{"long and malformed reports format", strings.Repeat("a", 260), Result{Error: "Please enter a valid email address"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.email))
		})
	}
}

func TestPassword_Defaults(t *testing.T) {
	opts := DefaultPasswordOptions()

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, PasswordResult{Error: "Password is required"}, Password("", opts))
	})

	t.Run("accumulates every violation", func(t *testing.T) {
		r := Password("abc", opts)
		assert.False(t, r.Valid)
		assert.Equal(t,
			"Password must be at least 8 characters. Password must contain at least one uppercase letter. Password must contain at least one number",
			r.Error)
		assert.Equal(t, 20, r.Strength)
	})

	t.Run("strong enough", func(t *testing.T) {
		for _, pw := range []string{"Wardrobe1", "Closet2024", "ABCdef123"} {
			r := Password(pw, opts)
			assert.True(t, r.Valid, pw)
			assert.GreaterOrEqual(t, r.Strength, 80, pw)
		}
	})

	t.Run("length and special bonuses", func(t *testing.T) {
		r := Password("Wardrobe2024!", opts)
		assert.True(t, r.Valid)
		assert.Equal(t, 100, r.Strength)
	})

	t.Run("common passwords", func(t *testing.T) {
		for _, pw := range []string{"password", "PASSWORD", "12345678", "Qwerty123", "abc12345"} {
			r := Password(pw, opts)
			assert.False(t, r.Valid, pw)
			assert.Contains(t, r.Error, "This password is too common", pw)
			assert.Equal(t, 10, r.Strength, pw)
		}
	})
}

func TestPassword_SignInPolicy(t *testing.T) {
	opts := DefaultPasswordOptions()
	opts.MinLength = 6
	opts.RequireUppercase = false
	opts.RequireNumber = false

	assert.True(t, Password("secret", opts).Valid)

	r := Password("SECRET", opts)
	assert.False(t, r.Valid)
	assert.Equal(t, "Password must contain at least one lowercase letter", r.Error)
}

func TestPassword_RequireSpecial(t *testing.T) {
	opts := DefaultPasswordOptions()
	opts.RequireSpecial = true

	r := Password("Wardrobe1", opts)
	assert.False(t, r.Valid)
	assert.Equal(t, "Password must contain at least one special character", r.Error)
	assert.True(t, Password("Wardrobe1?", opts).Valid)
}

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  NameResult
	}{
		{"empty", "", NameResult{Error: "Name is required"}},
		{"too short after trim", "  a  ", NameResult{Error: "Name must be at least 2 characters"}},
		{"too long", strings.Repeat("a", 51), NameResult{Error: "Name is too long (max 50 characters)"}},
		{"digits", "R2D2", NameResult{Error: "Name contains invalid characters"}},
		{"valid", " Mary-Jane O'Neil ", NameResult{Valid: true, Sanitized: "Mary-Jane O'Neil"}},
		{"markup stripped", "<b>Ann</b>", NameResult{Error: "Name contains invalid characters"}},
		{"handler stripped", "onclick=Bob", NameResult{Valid: true, Sanitized: "Bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.input))
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "", Sanitize(""))
	assert.Equal(t, "alert(1)", Sanitize("<script>JavaScript:alert(1)"[8:]))
	assert.Equal(t, "scriptalert(1)/script", Sanitize("<script>alert(1)</script>"))
	assert.Equal(t, "x", Sanitize("  ONLOAD=x "))
	assert.Equal(t, "hello", Sanitize("javascript:hello"))
}

func TestURL(t *testing.T) {
	assert.Equal(t, URLResult{Error: "URL is required"}, URL(""))
	assert.Equal(t, URLResult{Error: "Invalid URL format"}, URL("not a url"))
	assert.Equal(t, URLResult{Valid: true, Secure: true}, URL("https://closet.example.com/a"))
	assert.Equal(t, URLResult{Valid: true, Warning: "URL should use HTTPS for security"}, URL("http://closet.example.com"))
}
