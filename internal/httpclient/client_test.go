package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/testit-tms/migrators-sub001/internal/httpclient"
)

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		calls  atomic.Int32
		log    *logrus.Logger
		ctx    context.Context
	)

	BeforeEach(func() {
		calls.Store(0)
		ctx = context.Background()
		log = logrus.New()
		log.SetOutput(io.Discard)
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	newClient := func(retries int) *httpclient.Client {
		return httpclient.New(httpclient.Options{
			BaseURL:    server.URL + "/",
			Header:     http.Header{"Authorization": {"Bearer secret"}},
			RetryCount: retries,
			RetryDelay: time.Millisecond,
			Timeout:    5 * time.Second,
		}, log)
	}

	It("should send the auth header and decode JSON", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer secret"))
			Expect(r.URL.Path).To(Equal("/api/items"))
			Expect(r.URL.Query().Get("q")).To(Equal("a b"))
			w.Write([]byte(`{"name":"item"}`))
		}))

		var out struct{ Name string }
		err := newClient(0).GetJSON(ctx, "api/items", url.Values{"q": {"a b"}}, &out)
		Expect(err).ToNot(HaveOccurred())
		Expect(out.Name).To(Equal("item"))
	})

	It("should retry server errors a fixed number of times", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			body, _ := io.ReadAll(r.Body)
			Expect(string(body)).To(Equal(`{"n":1}`))
			w.Write([]byte(`{}`))
		}))

		err := newClient(2).PostJSON(ctx, "/api/things", map[string]int{"n": 1}, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("should give up after the last retry", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		err := newClient(1).GetJSON(ctx, "/x", nil, nil)
		var se *httpclient.StatusError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.StatusCode).To(Equal(http.StatusTooManyRequests))
		Expect(calls.Load()).To(Equal(int32(2)))
	})

	It("should not retry client errors", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "no such project", http.StatusNotFound)
		}))

		err := newClient(3).GetJSON(ctx, "/x", nil, nil)
		Expect(err).To(MatchError(ContainSubstring("no such project")))
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("should upload multipart files", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f, hdr, err := r.FormFile("file")
			Expect(err).ToNot(HaveOccurred())
			data, _ := io.ReadAll(f)
			Expect(hdr.Filename).To(Equal("a.png"))
			Expect(string(data)).To(Equal("png-bytes"))
			w.Write([]byte(`{"id":"42"}`))
		}))

		var out struct{ ID string }
		err := newClient(0).Upload(ctx, "/api/Attachments", "file", "a.png", strings.NewReader("png-bytes"), &out)
		Expect(err).ToNot(HaveOccurred())
		Expect(out.ID).To(Equal("42"))
	})

	It("should download absolute URLs", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("blob"))
		}))

		body, err := newClient(0).Download(ctx, server.URL+"/files/1")
		Expect(err).ToNot(HaveOccurred())
		defer body.Close()
		data, _ := io.ReadAll(body)
		Expect(string(data)).To(Equal("blob"))
	})

	It("should keep the auth header away from other hosts", func() {
		var baseAuth, foreignAuth atomic.Value
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			baseAuth.Store(r.Header.Get("Authorization"))
			w.Write([]byte("own"))
		}))
		foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			foreignAuth.Store(r.Header.Get("Authorization"))
			w.Write([]byte("cdn"))
		}))
		defer foreign.Close()

		client := newClient(0)
		body, err := client.Download(ctx, foreign.URL+"/files/1")
		Expect(err).ToNot(HaveOccurred())
		body.Close()
		Expect(foreignAuth.Load()).To(Equal(""))

		body, err = client.Download(ctx, server.URL+"/files/2")
		Expect(err).ToNot(HaveOccurred())
		body.Close()
		Expect(baseAuth.Load()).To(Equal("Bearer secret"))
	})
})
