package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySensitivity(t *testing.T) {
	cases := []struct {
		name   string
		action string
		params map[string]any
		want   func(t *testing.T, phi, pii, secrets, finance, system bool)
	}{
		{
			name:   "email is pii",
			action: "email.send",
			params: map[string]any{"to": "a@example.com"},
			want: func(t *testing.T, phi, pii, secrets, finance, system bool) {
				assert.True(t, pii)
				assert.False(t, phi)
			},
		},
		{
			name:   "phone is pii",
			action: "messaging.sms.send",
			params: map[string]any{"body": "call 555-123-4567"},
			want: func(t *testing.T, phi, pii, secrets, finance, system bool) {
				assert.True(t, pii)
			},
		},
		{
			name:   "finance keyword",
			action: "notes.create",
			params: map[string]any{"text": "check the Portfolio"},
			want: func(t *testing.T, phi, pii, secrets, finance, system bool) {
				assert.True(t, finance)
			},
		},
		{
			name:   "finance action",
			action: "finance.transfer",
			params: map[string]any{},
			want: func(t *testing.T, phi, pii, secrets, finance, system bool) {
				assert.True(t, finance)
			},
		},
		{
			name:   "system by prefix and install",
			action: "install.software",
			params: nil,
			want: func(t *testing.T, phi, pii, secrets, finance, system bool) {
				assert.True(t, system)
				assert.False(t, finance)
			},
		},
		{
			name:   "secrets and phi",
			action: "memory.write",
			params: map[string]any{"content": "sk-abcdefghijklmnopqrstuvwxyz MRN 123456"},
			want: func(t *testing.T, phi, pii, secrets, finance, system bool) {
				assert.True(t, secrets)
				assert.True(t, phi)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.action, tc.params, nil)
			s := got.Sensitivity
			tc.want(t, s.PHI, s.PII, s.Secrets, s.Finance, s.System)
		})
	}
}

func TestResourceRefsSortedAndNested(t *testing.T) {
	params := map[string]any{
		"zPath":    "/tmp/z",
		"filename": "a.txt",
		"nested": map[string]any{
			"targetPath": `C:\Users\me\x`,
			"count":      3,
		},
		"items":    []any{map[string]any{"file": "b.txt"}},
		"pathList": []any{"not-collected"},
	}

	assert.Equal(t, []string{"a.txt", "b.txt", `C:\Users\me\x`, "/tmp/z"}, ResourceRefs(params))
	assert.Equal(t, []string{}, ResourceRefs(nil))
}

func TestResourceRefsDepthBound(t *testing.T) {
	var deep any = map[string]any{"path": "bottom"}
	for i := 0; i < 100; i++ {
		deep = map[string]any{"n": deep}
	}
	assert.Empty(t, ResourceRefs(map[string]any{"root": deep}))
}

func TestNormalizeDomains(t *testing.T) {
	got := NormalizeDomains([]string{
		"https://API.Example.com:8443/path",
		"api.example.com",
		" Slack.com ",
		"http://slack.com",
		"",
	})
	assert.Equal(t, []string{"api.example.com", "slack.com"}, got)
}

func TestNormalizeDomainsHostlessSchemes(t *testing.T) {
	got := NormalizeDomains([]string{
		"mailto:a@b.com",
		"urn:isbn:0451450523",
		"Host:443",
		"example.com:8080",
		"tel:5551234567",
		"10.0.0.7:9000",
	})
	assert.Equal(t, []string{"host", "example.com", "10.0.0.7"}, got)
}

func TestClassifyHTMLCharactersNotEscaped(t *testing.T) {
	got := Classify("notes.create", map[string]any{"text": "<b>a@example.com</b>"}, nil)
	assert.True(t, got.Sensitivity.PII)
}
