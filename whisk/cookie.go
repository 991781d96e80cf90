// Package whisk is the HTTP adapter for the Whisk image service: session
// token exchange from a browser cookie, reference captioning and upload,
// and prompt-only or reference-conditioned image generation.
package whisk

import (
	"encoding/json"
	"strings"
)

// sessionCookieName is the cookie a bare session JWT is sent as.
const sessionCookieName = "__Secure-next-auth.session-token"

type browserCookie struct {
	Name  *string `json:"name"`
	Value *string `json:"value"`
}

// ParseCookie normalizes the ways operators paste credentials into a
// Cookie header value:
//
//   - a JSON array (or single object) of {"name": ..., "value": ...}
//     cookies as exported by browser extensions, joined as "n=v; n=v";
//   - a bare session JWT ("eyJ..."), sent as the session-token cookie;
//   - anything else, used as-is.
func ParseCookie(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") {
		if header := joinJSONCookies(raw); header != "" {
			return header
		}
	}

	if strings.HasPrefix(raw, "ey") {
		return sessionCookieName + "=" + raw
	}
	return raw
}

func joinJSONCookies(raw string) string {
	var cookies []browserCookie
	if strings.HasPrefix(raw, "{") {
		var one browserCookie
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return ""
		}
		cookies = []browserCookie{one}
	} else if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		return ""
	}

	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == nil || c.Value == nil {
			continue
		}
		parts = append(parts, *c.Name+"="+*c.Value)
	}
	return strings.Join(parts, "; ")
}
