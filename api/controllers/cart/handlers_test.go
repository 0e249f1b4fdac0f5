package cart

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/webstore-backend/api/middleware"
	domain "github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/angelmondragon/webstore-backend/internal/cartstore"
	"github.com/angelmondragon/webstore-backend/internal/catalog"
	"github.com/angelmondragon/webstore-backend/internal/coupons"
	"github.com/angelmondragon/webstore-backend/internal/storefront"
	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
)

type stubCatalog struct {
	products map[int64]catalog.Product
}

func (s stubCatalog) Get(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &p, nil
}

type envelope struct {
	Data  cartResponse `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (http.Handler, *storefront.Registry) {
	t.Helper()
	engine, err := coupons.NewEngine(map[string]string{"WEBSTORE10": "10"})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	reg, err := storefront.NewRegistry(storefront.Params{
		Factory: cartstore.NewMemoryFactory(),
		Pricing: domain.DefaultPricing(),
		Coupons: engine,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	products := stubCatalog{products: map[int64]catalog.Product{
		1: {ID: 1, Title: "Backpack", Price: decimal.RequireFromString("10.99"), Category: "bags"},
		2: {ID: 2, Title: "Shirt", Price: decimal.RequireFromString("20.00"), Stock: 2},
	}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithDeviceID(req.Context(), "device-1")))
		})
	})
	r.Get("/cart", CartFetch(reg, nil))
	r.Post("/cart/items", CartAddItem(reg, products, nil))
	r.Patch("/cart/items/{productId}", CartUpdateItem(reg, nil))
	r.Delete("/cart/items/{productId}", CartRemoveItem(reg, nil))
	r.Delete("/cart", CartClear(reg, nil))
	r.Post("/cart/coupon", CouponApply(reg, nil))
	r.Delete("/cart/coupon", CouponRemove(reg, nil))
	r.Get("/cart/events", CartEvents(reg, time.Hour, nil))
	return r, reg
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestAddItemMergesAndSummarizes(t *testing.T) {
	h, _ := newTestRouter(t)

	status, _ := do(t, h, http.MethodPost, "/cart/items", `{"product_id":1,"quantity":1,"size":"L","color":"Black"}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	status, env := do(t, h, http.MethodPost, "/cart/items", `{"product_id":1,"size":"S"}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	if len(env.Data.Items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(env.Data.Items))
	}
	line := env.Data.Items[0]
	if line.Quantity != 2 || line.Size != "L" || line.Color != "Black" {
		t.Fatalf("unexpected merged line %+v", line)
	}
	if !line.LineTotal.Equal(decimal.RequireFromString("21.98")) {
		t.Fatalf("expected line total 21.98, got %s", line.LineTotal)
	}
	if env.Data.Count != 2 || !env.Data.Shipping.Equal(decimal.RequireFromString("5.99")) {
		t.Fatalf("unexpected totals %+v", env.Data)
	}
	if !env.Data.Total.Equal(decimal.RequireFromString("27.97")) {
		t.Fatalf("expected total 27.97, got %s", env.Data.Total)
	}
}

func TestAddItemUnknownProduct(t *testing.T) {
	h, _ := newTestRouter(t)
	status, env := do(t, h, http.MethodPost, "/cart/items", `{"product_id":99}`)
	if status != http.StatusNotFound || env.Error.Code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %d %+v", status, env.Error)
	}
}

func TestAddItemRejectsBadBody(t *testing.T) {
	h, _ := newTestRouter(t)
	status, env := do(t, h, http.MethodPost, "/cart/items", `{"product_id":0}`)
	if status != http.StatusBadRequest || env.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %d %+v", status, env.Error)
	}
	status, _ = do(t, h, http.MethodPost, "/cart/items", `{"product_id":1,"unexpected":true}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected unknown field rejection, got %d", status)
	}
}

func TestUpdateClampsAndRemoves(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/cart/items", `{"product_id":2}`)

	status, env := do(t, h, http.MethodPatch, "/cart/items/2", `{"quantity":5}`)
	if status != http.StatusOK || env.Data.Items[0].Quantity != 2 {
		t.Fatalf("expected quantity clamped to stock 2, got %d %+v", status, env.Data.Items)
	}

	status, env = do(t, h, http.MethodPatch, "/cart/items/2", `{"quantity":0}`)
	if status != http.StatusOK || len(env.Data.Items) != 0 {
		t.Fatalf("expected line removed, got %d %+v", status, env.Data.Items)
	}

	status, _ = do(t, h, http.MethodPatch, "/cart/items/2", `{}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected missing quantity rejected, got %d", status)
	}
	status, _ = do(t, h, http.MethodPatch, "/cart/items/abc", `{"quantity":1}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad id rejected, got %d", status)
	}
}

func TestRemoveAndClear(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/cart/items", `{"product_id":1}`)
	do(t, h, http.MethodPost, "/cart/items", `{"product_id":2}`)

	_, env := do(t, h, http.MethodDelete, "/cart/items/1", "")
	if len(env.Data.Items) != 1 || env.Data.Items[0].ProductID != 2 {
		t.Fatalf("expected only product 2 left, got %+v", env.Data.Items)
	}

	_, env = do(t, h, http.MethodDelete, "/cart", "")
	if len(env.Data.Items) != 0 || !env.Data.Shipping.IsZero() || !env.Data.Total.IsZero() {
		t.Fatalf("expected empty cart without shipping, got %+v", env.Data)
	}
}

func TestCouponLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/cart/items", `{"product_id":2,"quantity":2}`)

	status, env := do(t, h, http.MethodPost, "/cart/coupon", `{"code":"bogus"}`)
	if status != http.StatusUnprocessableEntity || env.Error.Code != string(pkgerrors.CodeInvalidCoupon) {
		t.Fatalf("expected invalid coupon, got %d %+v", status, env.Error)
	}

	status, env = do(t, h, http.MethodPost, "/cart/coupon", `{"code":" webstore10 "}`)
	if status != http.StatusOK || env.Data.Coupon == nil {
		t.Fatalf("expected coupon applied, got %d %+v", status, env.Data)
	}
	if env.Data.Coupon.Code != "WEBSTORE10" || !env.Data.Coupon.Percent.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected coupon %+v", env.Data.Coupon)
	}
	if !env.Data.Discount.Equal(decimal.RequireFromString("4")) {
		t.Fatalf("expected 4.00 discount, got %s", env.Data.Discount)
	}

	status, _ = do(t, h, http.MethodPost, "/cart/coupon", `{"code":"WEBSTORE10"}`)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected second coupon rejected, got %d", status)
	}

	_, env = do(t, h, http.MethodDelete, "/cart/coupon", "")
	if env.Data.Coupon != nil || !env.Data.Discount.IsZero() {
		t.Fatalf("expected coupon removed, got %+v", env.Data)
	}
}

func TestMissingDeviceIsUnauthorized(t *testing.T) {
	engine, _ := coupons.NewEngine(nil)
	reg, _ := storefront.NewRegistry(storefront.Params{Factory: cartstore.NewMemoryFactory(), Coupons: engine})

	rec := httptest.NewRecorder()
	CartFetch(reg, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCartEventsStreamsUpdates(t *testing.T) {
	h, reg := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/cart/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	session, _ := reg.Session("device-1")
	deadline := time.Now().Add(time.Second)
	for session.Watchers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := session.Cart().AddItem(context.Background(), domain.Product{ID: 1, Name: "Backpack", Price: decimal.NewFromInt(1)}, domain.Variant{}, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before event")
			}
			if strings.HasPrefix(line, "event: ") {
				if line != "event: "+cartUpdatedEvent {
					t.Fatalf("unexpected event %q", line)
				}
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for cartUpdated")
		}
	}
}
