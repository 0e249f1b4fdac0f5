package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(rt roundTripFunc) *Client {
	return NewClient(WithBaseURL("http://catalog.test/"), WithHTTPClient(&http.Client{Transport: rt}))
}

const productJSON = `{"id":1,"title":"Fjallraven - Foldsack No. 1 Backpack","price":109.95,"description":"Your perfect pack","category":"men's clothing","image":"https://fakestoreapi.com/img/1.jpg","rating":{"rate":3.9,"count":120}}`

func TestGetProduct(t *testing.T) {
	var capturedURL string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return jsonResponse(http.StatusOK, productJSON), nil
	})

	product, err := client.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if capturedURL != "http://catalog.test/products/1" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if !product.Price.Equal(decimal.RequireFromString("109.95")) {
		t.Fatalf("unexpected price %s", product.Price)
	}
	if product.Rating.Count != 120 || product.Category != "men's clothing" {
		t.Fatalf("unexpected product %+v", product)
	}
}

func TestGetProductNotFound(t *testing.T) {
	cases := map[string]*http.Response{
		"empty body": jsonResponse(http.StatusOK, ""),
		"null body":  jsonResponse(http.StatusOK, "null"),
		"404":        jsonResponse(http.StatusNotFound, ""),
	}
	for name, resp := range cases {
		resp := resp
		client := newTestClient(func(*http.Request) (*http.Response, error) { return resp, nil })
		_, err := client.Get(context.Background(), 999)
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			t.Fatalf("%s: expected not found, got %v", name, err)
		}
	}
}

func TestGetProductValidatesID(t *testing.T) {
	client := newTestClient(func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	if _, err := client.Get(context.Background(), 0); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpstreamFailuresAreDependencyErrors(t *testing.T) {
	failing := newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, "oops"), nil
	})
	if _, err := failing.List(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	unreachable := newTestClient(func(*http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})
	if _, err := unreachable.Categories(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	garbled := newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, "{not json"), nil
	})
	if _, err := garbled.List(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error for bad json, got %v", err)
	}
}

func TestByCategoryEscapesPath(t *testing.T) {
	var capturedPath string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		capturedPath = req.URL.EscapedPath()
		return jsonResponse(http.StatusOK, "["+productJSON+"]"), nil
	})

	products, err := client.ByCategory(context.Background(), "men's clothing")
	if err != nil {
		t.Fatalf("by category: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if capturedPath != "/products/category/men%27s%20clothing" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if _, err := client.ByCategory(context.Background(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentReadsShareOneRequest(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	client := newTestClient(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return jsonResponse(http.StatusOK, `["electronics","jewelery"]`), nil
	})

	var wg sync.WaitGroup
	results := make([][]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			categories, err := client.Categories(context.Background())
			if err != nil {
				t.Errorf("categories: %v", err)
				return
			}
			results[i] = categories
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
	results[0][0] = "mutated"
	if results[1][0] != "electronics" {
		t.Fatalf("callers must not share decoded slices")
	}
}

func TestCancelledCallerDoesNotFailJoinedCaller(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		return jsonResponse(http.StatusOK, productJSON), nil
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := client.Get(ctxA, 1)
		errA <- err
	}()
	<-started

	type result struct {
		product *Product
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		product, err := client.Get(context.Background(), 1)
		resB <- result{product: product, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected caller A cancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case got := <-resB:
		if got.err != nil {
			t.Fatalf("joined caller failed: %v", got.err)
		}
		if got.product == nil || got.product.ID != 1 {
			t.Fatalf("unexpected product %+v", got.product)
		}
	case <-time.After(time.Second):
		t.Fatal("joined caller never returned")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
}
