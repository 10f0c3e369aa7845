package preview

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/teDdyMucho/tumbnail-creator/internal/webhook"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		hook        *mockWebhook
		store       *mockStore
		toaster     *Toaster
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	rebuild := func() {
		service = NewServiceWithDeps(db, hook, store, nil, toaster, &fixedID{}, &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		ghttpServer = ghttp.NewServer()
		// Specs fire up to a handful of requests each.
		for i := 0; i < 8; i++ {
			ghttpServer.AppendHandlers(server.ServeHTTP)
		}
	}

	postJSON := func(path string, body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", bytes.NewBufferString(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		db = newMockDB()
		hook = &mockWebhook{}
		store = newMockStore()
		toaster = NewToaster(time.Minute)
		auth = BasicAuth{}
		rebuild()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleIndex", func() {
		It("should serve the embedded page", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Thumbnail Creator"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "secret"}
			rebuild()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/previews")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/previews", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("handleSubmit", func() {
		When("the webhook answers with an image reference", func() {
			BeforeEach(func() {
				hook.result = &webhook.Result{Kind: webhook.KindImageRef, Ref: "https://cdn/shot.png"}
			})

			It("should return 201 with the preview", func() {
				resp := postJSON("/api/previews", `{"url":"example.com/page"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var p Preview
				Expect(json.NewDecoder(resp.Body).Decode(&p)).To(Succeed())
				Expect(p.Kind).To(Equal(KindImage))
				Expect(p.ImageURL).To(Equal("https://cdn/shot.png"))
				Expect(p.SourceURL).To(Equal("https://example.com/page"))
			})
		})

		When("the URL is invalid", func() {
			It("should return 400 with the invalid_url kind", func() {
				resp := postJSON("/api/previews", `{"url":"ftp://x"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["kind"]).To(Equal("invalid_url"))
			})
		})

		When("the request body is not JSON", func() {
			It("should return 400", func() {
				resp := postJSON("/api/previews", `not json`)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the webhook answers with an error status", func() {
			BeforeEach(func() {
				hook.err = webhook.ErrWebhook
			})

			It("should return 502 with the webhook kind", func() {
				resp := postJSON("/api/previews", `{"url":"example.com"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["kind"]).To(Equal("webhook"))
			})
		})

		When("the webhook is unreachable", func() {
			BeforeEach(func() {
				hook.err = webhook.ErrTransport
			})

			It("should return 502 with the transport kind", func() {
				resp := postJSON("/api/previews", `{"url":"example.com"}`)
				defer resp.Body.Close()

				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["kind"]).To(Equal("transport"))
			})
		})
	})

	Describe("handleCurrent", func() {
		BeforeEach(func() {
			hook.result = &webhook.Result{Kind: webhook.KindNote, Note: "webhook responded with no body"}
		})

		It("should reflect the latest submission", func() {
			postJSON("/api/previews", `{"url":"example.com"}`).Body.Close()

			resp, err := http.Get(ghttpServer.URL() + "/api/previews/current")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var current CurrentResult
			Expect(json.NewDecoder(resp.Body).Decode(&current)).To(Succeed())
			Expect(current.Status).To(Equal(StatusNote))
			Expect(current.Seq).To(Equal(uint64(1)))
		})
	})

	Describe("handleListPreviews", func() {
		When("previews exist", func() {
			BeforeEach(func() {
				db.previews["id1"] = &Preview{ID: "id1", Kind: KindNote}
				db.previews["id2"] = &Preview{ID: "id2", Kind: KindNote}
			})

			It("should return all previews as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/previews")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var previews []*Preview
				Expect(json.NewDecoder(resp.Body).Decode(&previews)).To(Succeed())
				Expect(previews).To(HaveLen(2))
			})
		})

		When("no previews exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/previews")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(MatchJSON(`[]`))
			})
		})
	})

	Describe("handleGetImage", func() {
		BeforeEach(func() {
			db.previews["p1"] = &Preview{ID: "p1", Kind: KindImage, Filename: "p1.png", ContentType: "image/png"}
			store.files["p1.png"] = []byte("png bytes")
		})

		It("should stream the payload with its content type", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/previews/p1/image")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("png bytes")))
		})

		It("should return 404 for unknown previews", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/previews/nope/image")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDownload", func() {
		BeforeEach(func() {
			db.previews["p1"] = &Preview{
				ID:          "p1",
				SourceURL:   "https://example.com/gallery/shot.jpg",
				Kind:        KindImage,
				Filename:    "p1.png",
				ContentType: "image/png",
			}
			store.files["p1.png"] = []byte("png bytes")
		})

		It("should answer with an attachment disposition", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/previews/p1/download")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring(`attachment`))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("shot.jpg"))
		})
	})

	Describe("handleDeletePreview", func() {
		BeforeEach(func() {
			db.previews["p1"] = &Preview{ID: "p1", Kind: KindNote}
		})

		It("should return 204 on success", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/previews/p1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.previews).NotTo(HaveKey("p1"))
		})

		It("should return 404 for unknown previews", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/previews/nope", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("toasts", func() {
		It("should list pushed toasts in order", func() {
			toaster.Push("first", ToastInfo)
			toaster.Push("second", ToastError)

			resp, err := http.Get(ghttpServer.URL() + "/api/toasts")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var toasts []Toast
			Expect(json.NewDecoder(resp.Body).Decode(&toasts)).To(Succeed())
			Expect(toasts).To(HaveLen(2))
			Expect(toasts[0].Text).To(Equal("first"))
			Expect(toasts[1].Text).To(Equal("second"))
		})

		It("should dismiss a toast by id", func() {
			toast := toaster.Push("dismiss me", ToastInfo)

			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/toasts/"+toast.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(toaster.List()).To(BeEmpty())
		})
	})

	Describe("theme", func() {
		It("should return empty before any explicit choice", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/settings/theme")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var body map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body["theme"]).To(Equal(""))
		})

		It("should round-trip a stored choice", func() {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/settings/theme", bytes.NewBufferString(`{"theme":"dark"}`))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			get, err := http.Get(ghttpServer.URL() + "/api/settings/theme")
			Expect(err).NotTo(HaveOccurred())
			defer get.Body.Close()
			var body map[string]string
			Expect(json.NewDecoder(get.Body).Decode(&body)).To(Succeed())
			Expect(body["theme"]).To(Equal("dark"))
		})

		It("should reject values outside dark and light", func() {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/settings/theme", bytes.NewBufferString(`{"theme":"sepia"}`))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleFavicon", func() {
		When("the origin serves a favicon", func() {
			var origin *ghttp.Server

			BeforeEach(func() {
				origin = ghttp.NewServer()
				origin.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/favicon.ico"),
					ghttp.RespondWith(http.StatusOK, []byte{0x00, 0x01}, http.Header{
						"Content-Type": []string{"image/x-icon"},
					}),
				))
			})

			AfterEach(func() {
				origin.Close()
			})

			It("should proxy the icon", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/favicon?url=" + origin.URL() + "/deep/page")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/x-icon"))
			})
		})

		When("the origin is unreachable", func() {
			It("should answer 204 so the page hides the icon", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/favicon?url=http://127.0.0.1:1/page")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			})
		})

		When("the url parameter is invalid", func() {
			It("should answer 204", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/favicon?url=ftp://x")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			})
		})
	})

	Describe("handleCaption", func() {
		When("no captioner is configured", func() {
			BeforeEach(func() {
				db.previews["p1"] = &Preview{ID: "p1", Kind: KindImage, Filename: "p1.png"}
			})

			It("should return 503", func() {
				resp := postJSON("/api/previews/p1/caption", ``)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			})
		})
	})
})
