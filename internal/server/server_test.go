package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/rs/zerolog"

	"github.com/hongminglow/coverage-api/internal/config"
	"github.com/hongminglow/coverage-api/internal/server"
	"github.com/hongminglow/coverage-api/internal/storage/memory"
)

func testConfig() config.Config {
	return config.Config{
		Host:           "127.0.0.1",
		Port:           "0",
		JWTSecret:      "suite-secret",
		JWTIssuer:      "coverage-api",
		JWTTTL:         30 * time.Minute,
		CORSOrigins:    []string{"*"},
		PasswordHasher: "bcrypt",
		BcryptCost:     4,
	}
}

type response struct {
	status int
	header http.Header
	body   map[string]any
	raw    string
}

var _ = Describe("Server", func() {
	var ts *httptest.Server

	BeforeEach(func() {
		srv, err := server.New(testConfig(), memory.NewUserStore(), zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())
		ts = httptest.NewServer(srv.Handler())
	})

	AfterEach(func() {
		ts.Close()
	})

	call := func(method, path, body, token string) response {
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		out := response{status: resp.StatusCode, header: resp.Header, raw: string(raw)}
		_ = json.Unmarshal(raw, &out.body)
		return out
	}

	Describe("public routes", func() {
		It("welcomes callers", func() {
			res := call(http.MethodGet, "/", "", "")
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("message", "Welcome to Hacklytics 2026 API"))
		})

		It("reports health", func() {
			res := call(http.MethodGet, "/health", "", "")
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("status", "healthy"))
			Expect(res.header.Get("X-Request-Id")).NotTo(BeEmpty())
		})

		It("exposes prometheus metrics", func() {
			call(http.MethodGet, "/health", "", "")
			res := call(http.MethodGet, "/metrics", "", "")
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.raw).To(ContainSubstring(`coverage_api_http_requests_total{method="GET",route="/health",status="200"}`))
		})

		It("answers CORS preflight", func() {
			req, err := http.NewRequest(http.MethodOptions, ts.URL+"/login", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", "https://frontend.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("the Ada scenario", func() {
		const ada = `{"full_name":"Ada","email":"ada@example.com","income_profile":42000,"coverage":"bronze","county":"Fulton","password":"s3cret"}`

		It("registers, logs in, reads the profile and rejects a wrong password", func() {
			By("registering")
			res := call(http.MethodPost, "/register", ada, "")
			Expect(res.status).To(Equal(http.StatusCreated))
			Expect(res.body).To(HaveKey("id"))
			Expect(res.body).NotTo(HaveKey("password"))
			Expect(res.body).NotTo(HaveKey("password_hash"))
			Expect(res.raw).NotTo(ContainSubstring("s3cret"))
			registered := res.body

			By("logging in")
			res = call(http.MethodPost, "/login", `{"email":"ada@example.com","password":"s3cret"}`, "")
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("token_type", "bearer"))
			token, ok := res.body["access_token"].(string)
			Expect(ok).To(BeTrue())
			Expect(token).NotTo(BeEmpty())

			By("reading the profile")
			res = call(http.MethodGet, "/users/me", "", token)
			Expect(res.status).To(Equal(http.StatusOK))
			for _, field := range []string{"id", "full_name", "email", "income_profile", "coverage", "county", "created_at"} {
				Expect(res.body).To(HaveKeyWithValue(field, registered[field]))
			}

			By("logging in with the wrong password")
			res = call(http.MethodPost, "/login", `{"email":"ada@example.com","password":"wrong"}`, "")
			Expect(res.status).To(Equal(http.StatusUnauthorized))
			Expect(res.header.Get("WWW-Authenticate")).To(Equal("Bearer"))
		})

		It("rejects a second registration of the same email", func() {
			Expect(call(http.MethodPost, "/register", ada, "").status).To(Equal(http.StatusCreated))
			res := call(http.MethodPost, "/register", ada, "")
			Expect(res.status).To(Equal(http.StatusBadRequest))
			Expect(res.body).To(HaveKeyWithValue("detail", "Email already registered"))
		})

		It("updates the profile and bumps updated_at", func() {
			Expect(call(http.MethodPost, "/register", ada, "").status).To(Equal(http.StatusCreated))
			token := call(http.MethodPost, "/login", `{"email":"ada@example.com","password":"s3cret"}`, "").body["access_token"].(string)

			before := call(http.MethodGet, "/users/me", "", token).body
			time.Sleep(10 * time.Millisecond)

			res := call(http.MethodPut, "/users/me", `{"full_name":"Ada Lovelace"}`, token)
			Expect(res.status).To(Equal(http.StatusOK))
			Expect(res.body).To(HaveKeyWithValue("full_name", "Ada Lovelace"))
			Expect(res.body).To(HaveKeyWithValue("created_at", before["created_at"]))
			Expect(res.body["updated_at"]).NotTo(Equal(before["updated_at"]))

			list := call(http.MethodGet, "/users", "", token)
			Expect(list.status).To(Equal(http.StatusOK))
		})
	})
})

var _ = Describe("New", func() {
	It("fails when the token secret is missing", func() {
		cfg := testConfig()
		cfg.JWTSecret = ""
		_, err := server.New(cfg, memory.NewUserStore(), zerolog.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("fails on an unknown password hasher", func() {
		cfg := testConfig()
		cfg.PasswordHasher = "md5"
		_, err := server.New(cfg, memory.NewUserStore(), zerolog.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("binds to the configured address", func() {
		srv, err := server.New(testConfig(), memory.NewUserStore(), zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(srv.Addr()).To(Equal("127.0.0.1:0"))
	})
})
