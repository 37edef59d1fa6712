package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/zrelay/zrelay/pkg/metrics"
	"github.com/zrelay/zrelay/pkg/normalizer"
	"github.com/zrelay/zrelay/pkg/openai"
	"github.com/zrelay/zrelay/pkg/sse"
)

const chatPath = "/v1/chat/completions"

// handleChat serves POST /v1/chat/completions. The backend only streams, so
// non-streaming clients get an accumulated response built from the stream.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	start := time.Now()
	clientAddr := c.IP()

	req, raw, err := openai.DecodeChatRequest(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(openai.ErrorResponse{Error: "invalid request body"})
	}

	chatID := openai.NewID("chat")
	res := openai.Resolve(req.Model, p.config.DefaultModel)
	cred := p.acquireToken(context.Background())

	// Guest tokens cannot upload files, so image rewriting only runs with
	// a real credential.
	if !p.config.Anonymous {
		openai.RewriteImageURLs(raw, func(dataURL string) (string, error) {
			ref, err := p.client.UploadImage(context.Background(), dataURL, chatID, cred.token)
			if err != nil {
				p.logger.Debug("image upload failed", zap.Error(err))
			}
			return ref, err
		})
	}

	payload, err := openai.BuildUpstreamPayload(raw, req, res, chatID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(openai.ErrorResponse{Error: "internal error"})
	}

	p.logger.Debug("forwarding chat request",
		zap.String("model", res.DisplayModel),
		zap.String("upstream_model", res.UpstreamID),
		zap.Bool("stream", req.Streaming()),
	)

	// Use context.Background() instead of c.Context() because fasthttp
	// recycles its RequestCtx after the handler returns, while the streaming
	// goroutine needs the upstream connection to remain open.
	resp, err := p.client.ChatCompletions(context.Background(), payload, chatID, cred.token)
	if err != nil {
		p.reportHealth(cred, 0)
		p.observe(cred, 0, clientAddr, start, err)
		return c.Status(fiber.StatusBadGateway).JSON(openai.ErrorResponse{Error: fmt.Sprintf("upstream request failed: %v", err)})
	}

	p.reportHealth(cred, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		p.logger.Error("upstream rejected chat request",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		p.observe(cred, resp.StatusCode, clientAddr, start, nil)
		return c.Status(resp.StatusCode).Send(body)
	}

	promptTokens := openai.PromptTokens(req.Messages)

	if req.Streaming() {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set("Connection", "keep-alive")

		pr, pw := io.Pipe()
		go p.streamCompletion(resp, pw, req, res, cred, promptTokens, clientAddr, start)

		// Unknown size (-1) triggers chunked transfer encoding; pw.Write
		// blocks until fasthttp flushes, giving per-chunk backpressure.
		c.Context().Response.SetBodyStream(pr, -1)
		return nil
	}

	return p.accumulateCompletion(c, resp, res, cred, promptTokens, clientAddr, start)
}

// observe records one completed chat call.
func (p *Proxy) observe(cred credential, status int, clientAddr string, start time.Time, err error) {
	rec := metrics.Record{
		Method:     fiber.MethodPost,
		Path:       chatPath,
		Status:     status,
		Duration:   time.Since(start),
		ClientAddr: clientAddr,
		Identity:   cred.identity,
		Source:     cred.source,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	p.recorder.Observe(rec)
}

// chunkDeltaFor maps a normalized delta onto the OpenAI chunk delta shape.
// Tool-call fragments ride the content field for external reassembly.
func chunkDeltaFor(delta normalizer.Delta) *openai.ChunkDelta {
	switch delta.Kind {
	case normalizer.KindReasoning:
		return &openai.ChunkDelta{Role: "assistant", ReasoningContent: delta.Text}
	case normalizer.KindContent, normalizer.KindToolCall:
		return &openai.ChunkDelta{Role: "assistant", Content: delta.Text}
	default:
		return nil
	}
}

// writeChunk frames one chunk as an SSE data line.
func writeChunk(w io.Writer, chunk openai.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func newChunk(model string, choices []openai.ChunkChoice) openai.Chunk {
	return openai.Chunk{
		ID:      openai.NewID("chatcmpl"),
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: choices,
	}
}

// streamCompletion reads the backend stream, normalizes each record, and
// writes OpenAI chunks to the pipe until the stream ends or the client
// disconnects.
func (p *Proxy) streamCompletion(resp *http.Response, pw *io.PipeWriter, req *openai.ChatRequest, res openai.Resolution, cred credential, promptTokens int, clientAddr string, start time.Time) {
	defer resp.Body.Close()
	defer pw.Close()

	session := normalizer.NewSession(p.config.ThinkMode, p.logger)
	reader := sse.NewReader(resp.Body)

	var completion []byte

	for {
		ev, err := reader.Next()
		if err != nil {
			p.logger.Error("error reading upstream stream", zap.Error(err))
			p.observe(cred, 0, clientAddr, start, err)
			return
		}
		if ev == nil {
			break
		}

		done := ev.Data.Done
		delta := session.Transform(normalizer.Event{
			Phase: normalizer.Phase(ev.Data.Phase),
			Delta: ev.Data.DeltaContent,
			Edit:  ev.Data.EditContent,
		})

		if d := chunkDeltaFor(delta); d != nil {
			var finish *string
			if done {
				finish = strPtr("stop")
			}
			chunk := newChunk(res.DisplayModel, []openai.ChunkChoice{{
				Delta:        d,
				Message:      d,
				FinishReason: finish,
			}})
			if err := writeChunk(pw, chunk); err != nil {
				// Client went away; stop pulling from the backend.
				p.logger.Debug("client disconnected mid-stream", zap.Error(err))
				p.observe(cred, 0, clientAddr, start, err)
				return
			}
			completion = append(completion, delta.Text...)
		}

		if done {
			d := &openai.ChunkDelta{Role: "assistant"}
			chunk := newChunk(res.DisplayModel, []openai.ChunkChoice{{
				Delta:        d,
				Message:      d,
				FinishReason: strPtr("stop"),
			}})
			if err := writeChunk(pw, chunk); err != nil {
				p.observe(cred, 0, clientAddr, start, err)
				return
			}
			break
		}
	}

	if req.IncludeUsage() {
		completionTokens := openai.CountTokens(string(completion))
		usageChunk := newChunk(res.DisplayModel, []openai.ChunkChoice{})
		usageChunk.Usage = &openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
		if err := writeChunk(pw, usageChunk); err != nil {
			p.observe(cred, 0, clientAddr, start, err)
			return
		}
	}

	if _, err := io.WriteString(pw, "data: [DONE]\n\n"); err != nil {
		p.observe(cred, 0, clientAddr, start, err)
		return
	}

	p.observe(cred, http.StatusOK, clientAddr, start, nil)
}

// accumulateCompletion drains the backend stream into a single response for
// non-streaming clients.
func (p *Proxy) accumulateCompletion(c *fiber.Ctx, resp *http.Response, res openai.Resolution, cred credential, promptTokens int, clientAddr string, start time.Time) error {
	defer resp.Body.Close()

	session := normalizer.NewSession(p.config.ThinkMode, p.logger)
	reader := sse.NewReader(resp.Body)

	var content, reasoning []byte

	for {
		ev, err := reader.Next()
		if err != nil {
			p.logger.Error("error reading upstream stream", zap.Error(err))
			p.observe(cred, 0, clientAddr, start, err)
			return c.Status(fiber.StatusBadGateway).JSON(openai.ErrorResponse{Error: "upstream stream failed"})
		}
		if ev == nil || ev.Data.Done {
			break
		}

		delta := session.Transform(normalizer.Event{
			Phase: normalizer.Phase(ev.Data.Phase),
			Delta: ev.Data.DeltaContent,
			Edit:  ev.Data.EditContent,
		})
		switch delta.Kind {
		case normalizer.KindReasoning:
			reasoning = append(reasoning, delta.Text...)
		case normalizer.KindContent, normalizer.KindToolCall:
			content = append(content, delta.Text...)
		}
	}

	message := &openai.ChunkDelta{Role: "assistant"}
	message.ReasoningContent = string(reasoning)
	message.Content = string(content)

	completionTokens := openai.CountTokens(string(reasoning) + string(content))

	p.observe(cred, http.StatusOK, clientAddr, start, nil)

	return c.JSON(openai.Completion{
		ID:      openai.NewID("chatcmpl"),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   res.DisplayModel,
		Choices: []openai.ChunkChoice{{
			Delta:        message,
			Message:      message,
			FinishReason: strPtr("stop"),
		}},
		Usage: &openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

func strPtr(s string) *string {
	return &s
}
