package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zrelay/zrelay/pkg/normalizer"
	"github.com/zrelay/zrelay/pkg/openai"
	"github.com/zrelay/zrelay/pkg/tokenpool"
)

var _ = Describe("Model listing", func() {
	var (
		p       *Proxy
		pool    *tokenpool.Pool
		backend *httptest.Server
	)

	catalog := `{"data":[
		{"id":"0727-360B-API","name":"glm 4.5 internal","info":{"is_active":true,"created_at":1700000000}},
		{"id":"dormant-model","name":"Dormant","info":{"is_active":false}}
	]}`

	BeforeEach(func() {
		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/models"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(catalog))
		}))
		p, pool = newTestProxy(backend.URL, normalizer.ModeReasoning, []string{"tok-a"})
	})

	AfterEach(func() {
		p.Close()
		backend.Close()
	})

	fetchModels := func() openai.ModelList {
		resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var list openai.ModelList
		Expect(json.NewDecoder(resp.Body).Decode(&list)).To(Succeed())
		return list
	}

	ids := func(list openai.ModelList) []string {
		out := make([]string, 0, len(list.Data))
		for _, m := range list.Data {
			out = append(out, m.ID)
		}
		return out
	}

	It("renames aliased catalog entries", func() {
		list := fetchModels()
		Expect(list.Object).To(Equal("list"))

		var base *openai.Model
		for i := range list.Data {
			if list.Data[i].ID == "0727-360B-API" {
				base = &list.Data[i]
			}
		}
		Expect(base).NotTo(BeNil())
		Expect(base.Name).To(Equal("GLM-4.5"))
		Expect(base.Created).To(Equal(int64(1700000000)))
	})

	It("hides inactive catalog entries", func() {
		Expect(ids(fetchModels())).NotTo(ContainElement("dormant-model"))
	})

	It("adds derived variants for served base models only", func() {
		listed := ids(fetchModels())
		Expect(listed).To(ContainElement("GLM-4.5-Thinking"))
		Expect(listed).To(ContainElement("GLM-4.5-Search"))
		// GLM-4.5V's upstream id is absent from the catalog.
		Expect(listed).NotTo(ContainElement("GLM-4.5V-Thinking"))
	})

	It("marks the credential healthy after a catalog fetch", func() {
		fetchModels()
		Expect(pool.Snapshot().Tokens[0].Successes).To(BeNumerically(">", 0))
	})
})
