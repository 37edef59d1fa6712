package openai

import "strings"

// Variant is one relay-exposed model: a display alias bound to a backend
// model ID plus the feature flags and MCP servers the backend expects.
type Variant struct {
	Name        string
	UpstreamID  string
	Description string
	Features    map[string]bool
	MCPServers  []string
}

// variantDefinition seeds the variant table. Each base alias expands into
// the base entry plus derived -Thinking and -Search entries.
type variantDefinition struct {
	upstreamID          string
	description         string
	thinkingDescription string
	searchDescription   string
	defaultFeatures     map[string]bool
}

// defaultSearchMCPServers back the -Search variants.
var defaultSearchMCPServers = []string{"deep-web-search"}

// upstreamAliases maps backend model IDs to relay display names.
var upstreamAliases = map[string]string{
	"glm-4.5v":                 "GLM-4.5V",
	"0727-106B-API":            "GLM-4.5-Air",
	"0727-360B-API":            "GLM-4.5",
	"0808-360B-DR":             "0808-360b-Dr",
	"deep-research":            "Z1-Rumination",
	"GLM-4-6-API-V1":           "GLM-4.6",
	"glm-4-flash":              "GLM-4-Flash",
	"GLM-4.1V-Thinking-FlashX": "GLM-4.1V-Thinking-FlashX",
	"main_chat":                "GLM-4-32B",
	"zero":                     "Z1-32B",
}

var baseDefinitions = map[string]variantDefinition{
	"GLM-4.5": {
		upstreamID:          "0727-360B-API",
		description:         "Standard model for general conversation",
		thinkingDescription: "Reasoning model that surfaces its thinking",
		searchDescription:   "Search model with live web results",
	},
	"GLM-4.5V": {
		upstreamID:  "glm-4.5v",
		description: "Vision model with multimodal understanding",
	},
	"GLM-4.5-Air": {
		upstreamID:  "0727-106B-API",
		description: "Lightweight model tuned for response speed",
	},
	"0808-360b-Dr": {
		upstreamID:  "0808-360B-DR",
		description: "Deep-research model for long documents",
	},
	"Z1-Rumination": {
		upstreamID:  "deep-research",
		description: "Z1 deep reasoning model",
		defaultFeatures: map[string]bool{
			"enable_thinking": true,
			"web_search":      true,
			"auto_web_search": true,
		},
		searchDescription: "Z1 deep reasoning model with enhanced search",
	},
	"GLM-4.6": {
		upstreamID:  "GLM-4-6-API-V1",
		description: "GLM 4.6 standard model",
	},
	"GLM-4-Flash": {
		upstreamID:  "glm-4-flash",
		description: "Flash model for fast responses",
	},
	"GLM-4.1V-Thinking-FlashX": {
		upstreamID:  "GLM-4.1V-Thinking-FlashX",
		description: "Vision FlashX model",
		defaultFeatures: map[string]bool{
			"enable_thinking": true,
		},
	},
	"GLM-4-32B": {
		upstreamID:  "main_chat",
		description: "General model at the 32B size",
	},
	"Z1-32B": {
		upstreamID:  "zero",
		description: "Z1 model at the 32B size",
	},
}

// variantTable is the expanded table, built once at init.
var variantTable = buildVariantTable()

func buildVariantTable() map[string]Variant {
	table := make(map[string]Variant, 3*len(baseDefinitions))

	for alias, def := range baseDefinitions {
		baseFeatures := map[string]bool{
			"enable_thinking": false,
			"web_search":      false,
			"auto_web_search": false,
		}
		for k, v := range def.defaultFeatures {
			baseFeatures[k] = v
		}

		var baseServers []string
		if baseFeatures["web_search"] {
			baseServers = append([]string(nil), defaultSearchMCPServers...)
		}

		table[alias] = Variant{
			Name:        alias,
			UpstreamID:  def.upstreamID,
			Description: def.description,
			Features:    baseFeatures,
			MCPServers:  baseServers,
		}

		thinkingFeatures := copyFeatures(baseFeatures)
		thinkingFeatures["enable_thinking"] = true
		thinkingDesc := def.thinkingDescription
		if thinkingDesc == "" {
			thinkingDesc = alias + " reasoning model"
		}
		table[alias+"-Thinking"] = Variant{
			Name:        alias + "-Thinking",
			UpstreamID:  def.upstreamID,
			Description: thinkingDesc,
			Features:    thinkingFeatures,
			MCPServers:  append([]string(nil), baseServers...),
		}

		searchFeatures := copyFeatures(baseFeatures)
		searchFeatures["web_search"] = true
		searchFeatures["auto_web_search"] = true
		searchDesc := def.searchDescription
		if searchDesc == "" {
			searchDesc = alias + " search model"
		}
		table[alias+"-Search"] = Variant{
			Name:        alias + "-Search",
			UpstreamID:  def.upstreamID,
			Description: searchDesc,
			Features:    searchFeatures,
			MCPServers:  append([]string(nil), defaultSearchMCPServers...),
		}
	}

	return table
}

func copyFeatures(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// ResolveVariant looks up a requested model name case-insensitively.
func ResolveVariant(name string) (Variant, bool) {
	if v, ok := variantTable[name]; ok {
		return v, true
	}
	for alias, v := range variantTable {
		if strings.EqualFold(alias, name) {
			return v, true
		}
	}
	return Variant{}, false
}

// Variants returns all expanded variants.
func Variants() []Variant {
	out := make([]Variant, 0, len(variantTable))
	for _, v := range variantTable {
		out = append(out, v)
	}
	return out
}

// AliasForUpstream returns the relay display name for a backend model ID.
func AliasForUpstream(upstreamID string) (string, bool) {
	name, ok := upstreamAliases[upstreamID]
	if !ok {
		name, ok = upstreamAliases[strings.ToLower(upstreamID)]
	}
	return name, ok
}
