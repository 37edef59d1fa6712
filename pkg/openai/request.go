package openai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Resolution binds a requested model name to the backend model that serves
// it. DisplayModel is echoed back to the client in every chunk.
type Resolution struct {
	DisplayModel string
	UpstreamID   string
	Variant      *Variant
}

// Resolve maps the requested model through the variant table. Unknown names
// pass through unchanged so backend-native IDs keep working.
func Resolve(requested, defaultModel string) Resolution {
	model := strings.TrimSpace(requested)
	if model == "" {
		model = defaultModel
	}

	if v, ok := ResolveVariant(model); ok {
		return Resolution{DisplayModel: v.Name, UpstreamID: v.UpstreamID, Variant: &v}
	}
	return Resolution{DisplayModel: model, UpstreamID: model}
}

// NewID builds the backend's timestamp-based identifier scheme.
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// featureBoolKeys are coerced to booleans in the outgoing feature set.
var featureBoolKeys = []string{
	"enable_thinking", "web_search", "auto_web_search", "image_generation", "preview_mode",
}

// featureListKeys are coerced to lists in the outgoing feature set.
var featureListKeys = []string{"flags", "features"}

// buildFeatures merges the backend feature defaults, the client's feature
// object, the variant's flags, and the top-level reasoning override, in
// that order.
func buildFeatures(req *ChatRequest, res Resolution) map[string]any {
	features := map[string]any{
		"image_generation": false,
		"web_search":       false,
		"auto_web_search":  false,
		"preview_mode":     false,
		"flags":            []any{},
		"features":         []any{},
		"enable_thinking":  true,
	}

	for k, v := range req.Features {
		features[k] = v
	}
	if res.Variant != nil {
		for k, v := range res.Variant.Features {
			features[k] = v
		}
	}
	if req.Reasoning != nil {
		features["enable_thinking"] = *req.Reasoning
	}

	for _, key := range featureBoolKeys {
		if v, ok := features[key]; ok {
			features[key] = truthy(v)
		}
	}
	for _, key := range featureListKeys {
		if _, ok := features[key].([]any); !ok {
			features[key] = []any{}
		}
	}

	return features
}

// truthy follows JSON-ish truthiness for feature coercion.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}

// mergeMCPServers unions the client's server list with the variant's,
// preserving first-seen order.
func mergeMCPServers(req *ChatRequest, res Resolution) []string {
	var servers []string
	seen := make(map[string]bool)

	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			servers = append(servers, s)
		}
	}

	for _, s := range req.MCPServers {
		add(s)
	}
	if res.Variant != nil {
		for _, s := range res.Variant.MCPServers {
			add(s)
		}
	}
	return servers
}

// RewriteImageURLs walks multimodal message parts in the raw request map
// and replaces base64 data URLs with backend file references via upload.
// Upload failures leave the original URL in place; the backend rejects it
// instead of the relay.
func RewriteImageURLs(raw map[string]any, upload func(dataURL string) (string, error)) {
	messages, _ := raw["messages"].([]any)
	for _, m := range messages {
		message, ok := m.(map[string]any)
		if !ok {
			continue
		}
		parts, ok := message["content"].([]any)
		if !ok {
			continue
		}
		for _, p := range parts {
			part, ok := p.(map[string]any)
			if !ok || part["type"] != "image_url" {
				continue
			}
			imageURL, ok := part["image_url"].(map[string]any)
			if !ok {
				continue
			}
			url, _ := imageURL["url"].(string)
			if !strings.HasPrefix(url, "data:") {
				continue
			}
			if ref, err := upload(url); err == nil && ref != "" {
				imageURL["url"] = ref
			}
		}
	}
}

// BuildUpstreamPayload assembles the backend chat payload: the client's raw
// fields passed through, with the relay-owned fields overriding them. The
// backend only streams, so stream is always forced on.
func BuildUpstreamPayload(raw map[string]any, req *ChatRequest, res Resolution, chatID string) ([]byte, error) {
	payload := make(map[string]any, len(raw)+6)
	for k, v := range raw {
		payload[k] = v
	}

	payload["stream"] = true
	payload["chat_id"] = chatID
	payload["id"] = NewID("msg")
	payload["model"] = res.UpstreamID
	payload["features"] = buildFeatures(req, res)

	if servers := mergeMCPServers(req, res); len(servers) > 0 {
		payload["mcp_servers"] = servers
	}

	if _, ok := payload["model_item"]; !ok {
		payload["model_item"] = map[string]any{
			"id":       res.UpstreamID,
			"name":     res.DisplayModel,
			"owned_by": "z.ai",
		}
	}

	return json.Marshal(payload)
}

// FormatModelName normalizes a backend model ID into a display name:
// the first dash-separated segment uppercased, later segments capitalized,
// digits and symbols untouched.
func FormatModelName(name string) string {
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "-")
	if len(parts) == 1 {
		return strings.ToUpper(parts[0])
	}

	formatted := make([]string, 0, len(parts))
	formatted = append(formatted, strings.ToUpper(parts[0]))
	for _, p := range parts[1:] {
		switch {
		case p == "":
			formatted = append(formatted, "")
		case isDigits(p):
			formatted = append(formatted, p)
		case hasLetter(p):
			formatted = append(formatted, capitalize(p))
		default:
			formatted = append(formatted, p)
		}
	}
	return strings.Join(formatted, "-")
}

// StartsWithLetter reports whether the name begins with an ASCII letter,
// the catalog's test for usable display names.
func StartsWithLetter(name string) bool {
	if name == "" {
		return false
	}
	ch := name[0]
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
