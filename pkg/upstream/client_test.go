package upstream_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zrelay/zrelay/pkg/upstream"
)

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		client  *upstream.Client
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		client = upstream.New(upstream.Config{Base: server.URL})
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("ChatCompletions", func() {
		It("sends the payload with browser, auth, and referer headers", func() {
			var got *http.Request
			var body []byte
			handler = func(w http.ResponseWriter, r *http.Request) {
				got = r.Clone(context.Background())
				body, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}

			resp, err := client.ChatCompletions(context.Background(), []byte(`{"model":"GLM-4.5"}`), "chat-1", "tok-1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(got.Method).To(Equal(http.MethodPost))
			Expect(got.URL.Path).To(Equal("/api/chat/completions"))
			Expect(got.Header.Get("Authorization")).To(Equal("Bearer tok-1"))
			Expect(got.Header.Get("Referer")).To(HaveSuffix("/c/chat-1"))
			Expect(got.Header.Get("X-FE-Version")).NotTo(BeEmpty())
			Expect(got.Header.Get("User-Agent")).To(ContainSubstring("Mozilla"))
			Expect(body).To(MatchJSON(`{"model":"GLM-4.5"}`))
		})

		It("returns error statuses without failing", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}

			resp, err := client.ChatCompletions(context.Background(), []byte(`{}`), "chat-1", "bad")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("omits the auth header without a token", func() {
			var got *http.Request
			handler = func(w http.ResponseWriter, r *http.Request) {
				got = r.Clone(context.Background())
				w.WriteHeader(http.StatusOK)
			}

			resp, err := client.ChatCompletions(context.Background(), []byte(`{}`), "chat-1", "")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(got.Header.Get("Authorization")).To(BeEmpty())
		})
	})

	Describe("Models", func() {
		It("decodes the catalog", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/models"))
				w.Write([]byte(`{"data":[{"id":"GLM-4.5","name":"GLM 4.5"}]}`))
			}

			models, err := client.Models(context.Background(), "tok")
			Expect(err).NotTo(HaveOccurred())
			Expect(models.Data).To(HaveLen(1))
			Expect(models.Data[0].ID).To(Equal("GLM-4.5"))
		})

		It("surfaces auth failures as status errors", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			}

			_, err := client.Models(context.Background(), "bad")
			var statusErr *upstream.StatusError
			Expect(err).To(BeAssignableToTypeOf(statusErr))
			statusErr = err.(*upstream.StatusError)
			Expect(statusErr.AuthFailure()).To(BeTrue())
		})
	})

	Describe("AnonymousToken", func() {
		It("returns the guest token", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/v1/auths/"))
				Expect(r.Header.Get("Authorization")).To(BeEmpty())
				w.Write([]byte(`{"token":"guest-token"}`))
			}

			token, err := client.AnonymousToken(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal("guest-token"))
		})

		It("fails when the response carries no token", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			}

			_, err := client.AnonymousToken(context.Background())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("UploadImage", func() {
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))

		It("uploads the decoded image as multipart and returns the file reference", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/v1/files/"))

				file, header, err := r.FormFile("file")
				Expect(err).NotTo(HaveOccurred())
				defer file.Close()

				data, _ := io.ReadAll(file)
				Expect(data).To(Equal([]byte("png-bytes")))
				Expect(header.Header.Get("Content-Type")).To(Equal("image/png"))

				w.Write([]byte(`{"id":"file-9","filename":"` + header.Filename + `"}`))
			}

			ref, err := client.UploadImage(context.Background(), dataURL, "chat-1", "tok")
			Expect(err).NotTo(HaveOccurred())
			Expect(ref).To(HavePrefix("file-9_"))
		})

		It("rejects non data URLs", func() {
			_, err := client.UploadImage(context.Background(), "https://example.com/cat.png", "chat-1", "tok")
			Expect(err).To(HaveOccurred())
		})

		It("surfaces upload failures", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}

			_, err := client.UploadImage(context.Background(), dataURL, "chat-1", "tok")
			var statusErr *upstream.StatusError
			Expect(err).To(BeAssignableToTypeOf(statusErr))
		})
	})
})
