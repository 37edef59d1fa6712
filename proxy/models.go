package proxy

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/zrelay/zrelay/pkg/openai"
	"github.com/zrelay/zrelay/pkg/upstream"
)

// handleModels serves /v1/models: the backend catalog with relay display
// names, plus the derived -Thinking and -Search variants for every catalog
// model the variant table covers.
func (p *Proxy) handleModels(c *fiber.Ctx) error {
	cred := p.acquireToken(context.Background())

	catalog, err := p.client.Models(context.Background(), cred.token)
	if err != nil {
		status := 0
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.Status
		}
		p.reportHealth(cred, status)
		p.logger.Error("fetching model catalog failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(openai.ErrorResponse{Error: "fetch models failed"})
	}
	p.reportHealth(cred, fiber.StatusOK)

	now := time.Now().Unix()
	models := make([]openai.Model, 0, len(catalog.Data))
	existing := make(map[string]bool)
	createdByUpstream := make(map[string]int64)

	for _, m := range catalog.Data {
		if !m.Active() {
			continue
		}

		name := m.Name
		if alias, ok := openai.AliasForUpstream(m.ID); ok {
			name = alias
		} else if strings.HasPrefix(m.ID, "GLM") || strings.HasPrefix(m.ID, "Z") {
			name = m.ID
		}
		if !openai.StartsWithLetter(name) {
			name = openai.FormatModelName(m.ID)
		}

		created := m.Info.CreatedAt
		if created == 0 {
			created = now
		}
		createdByUpstream[m.ID] = created

		models = append(models, openai.Model{
			ID:      m.ID,
			Object:  "model",
			Name:    name,
			Created: created,
			OwnedBy: "z.ai",
		})
		existing[m.ID] = true
		existing[name] = true
	}

	variants := openai.Variants()
	sort.Slice(variants, func(i, j int) bool { return variants[i].Name < variants[j].Name })

	for _, v := range variants {
		created, served := createdByUpstream[v.UpstreamID]
		if !served || existing[v.Name] {
			continue
		}

		models = append(models, openai.Model{
			ID:          v.Name,
			Object:      "model",
			Name:        v.Name,
			Created:     created,
			OwnedBy:     "z.ai",
			Description: v.Description,
			Metadata: map[string]any{
				"upstream_id": v.UpstreamID,
				"features":    v.Features,
				"mcp_servers": v.MCPServers,
			},
		})
		existing[v.Name] = true
	}

	return c.JSON(openai.ModelList{Object: "list", Data: models})
}
