package proxy

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zrelay/zrelay/pkg/openai"
	"github.com/zrelay/zrelay/pkg/tokenpool"
)

// handleDashboard serves the embedded status page.
func (p *Proxy) handleDashboard(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(dashboardHTML)
}

// handleDashboardStats returns the metrics snapshot.
func (p *Proxy) handleDashboardStats(c *fiber.Ctx) error {
	return c.JSON(p.recorder.Snapshot())
}

// handleDashboardPool returns the credential pool snapshot. Tokens appear
// only in masked display form.
func (p *Proxy) handleDashboardPool(c *fiber.Ctx) error {
	return c.JSON(p.pool.Snapshot())
}

// handleDashboardPoolUpdate replaces the credential list.
func (p *Proxy) handleDashboardPoolUpdate(c *fiber.Ctx) error {
	var body struct {
		Tokens []string `json:"tokens"`
		Raw    string   `json:"raw"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(openai.ErrorResponse{Error: "invalid request body"})
	}

	tokens := body.Tokens
	if len(tokens) == 0 && body.Raw != "" {
		tokens = tokenpool.ParseTokenList(body.Raw)
	}

	p.pool.Update(tokens)
	return c.JSON(p.pool.Snapshot())
}

// handleDashboardPoolDelete removes one credential by its identity hash.
func (p *Proxy) handleDashboardPoolDelete(c *fiber.Ctx) error {
	id := c.Params("id")

	token, ok := p.pool.ResolveIdentity(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(openai.ErrorResponse{Error: "unknown credential"})
	}

	remaining := make([]string, 0, p.pool.Size())
	for _, t := range p.pool.Tokens() {
		if t != token {
			remaining = append(remaining, t)
		}
	}
	p.pool.Update(remaining)

	return c.JSON(p.pool.Snapshot())
}

// handleDashboardPoolVerify enqueues a background check of every pool
// credential and returns immediately.
func (p *Proxy) handleDashboardPoolVerify(c *fiber.Ctx) error {
	enqueued := p.verifier.EnqueueAll()
	return c.JSON(fiber.Map{"enqueued": enqueued})
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>zrelay</title>
<style>
body { font-family: ui-monospace, monospace; margin: 2rem; background: #111; color: #ddd; }
h1 { font-size: 1.2rem; }
table { border-collapse: collapse; margin: 1rem 0; width: 100%; }
th, td { border: 1px solid #333; padding: .35rem .6rem; text-align: left; font-size: .85rem; }
th { background: #1c1c1c; }
.ok { color: #7c7; }
.bad { color: #e77; }
button { background: #222; color: #ddd; border: 1px solid #444; padding: .3rem .8rem; cursor: pointer; }
</style>
</head>
<body>
<h1>zrelay</h1>
<div id="totals"></div>
<h2>Credential pool</h2>
<button onclick="verify()">Verify all</button>
<table id="pool"><thead><tr>
<th>Identity</th><th>Token</th><th>Success</th><th>Failures</th><th>State</th>
</tr></thead><tbody></tbody></table>
<h2>Recent calls</h2>
<table id="recent"><thead><tr>
<th>Time</th><th>Path</th><th>Status</th><th>Duration</th><th>Key</th>
</tr></thead><tbody></tbody></table>
<script>
async function refresh() {
  const stats = await (await fetch('/dashboard/stats')).json();
  const pool = await (await fetch('/dashboard/pool')).json();
  document.getElementById('totals').textContent =
    'requests ' + stats.requests + ' | success ' + stats.success +
    ' | failure ' + stats.failure + ' | avg ' + (stats.avg_duration / 1e6).toFixed(0) + 'ms';
  const pt = document.querySelector('#pool tbody');
  pt.innerHTML = '';
  for (const t of pool.tokens || []) {
    const row = pt.insertRow();
    row.insertCell().textContent = t.identity;
    row.insertCell().textContent = t.display;
    row.insertCell().textContent = t.successes;
    row.insertCell().textContent = t.failures;
    const state = row.insertCell();
    state.textContent = t.disabled ? 'cooling' : 'available';
    state.className = t.disabled ? 'bad' : 'ok';
  }
  const rt = document.querySelector('#recent tbody');
  rt.innerHTML = '';
  for (const r of stats.recent || []) {
    const row = rt.insertRow();
    row.insertCell().textContent = new Date(r.timestamp).toLocaleTimeString();
    row.insertCell().textContent = r.path;
    row.insertCell().textContent = r.status || '-';
    row.insertCell().textContent = (r.duration / 1e6).toFixed(0) + 'ms';
    row.insertCell().textContent = r.identity || r.source || '';
  }
}
async function verify() {
  await fetch('/dashboard/pool/verify', {method: 'POST'});
  setTimeout(refresh, 1000);
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`
