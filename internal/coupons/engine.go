package coupons

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rule is a recognized coupon and the fraction of the subtotal it discounts.
type Rule struct {
	Code string          `json:"code"`
	Rate decimal.Decimal `json:"rate"`
}

// Engine matches coupon codes against a fixed table.
type Engine struct {
	rules map[string]Rule
}

// NewEngine builds an engine from code -> percent entries, e.g. "WEBSTORE10" -> "10".
func NewEngine(table map[string]string) (*Engine, error) {
	rules := make(map[string]Rule, len(table))
	for code, percent := range table {
		key := normalize(code)
		if key == "" {
			return nil, fmt.Errorf("coupon code must not be blank")
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(percent))
		if err != nil {
			return nil, fmt.Errorf("coupon %s: invalid percent %q: %w", key, percent, err)
		}
		if !pct.IsPositive() || pct.GreaterThan(hundred) {
			return nil, fmt.Errorf("coupon %s: percent must be in (0, 100], got %s", key, pct)
		}
		rules[key] = Rule{Code: key, Rate: pct.Div(hundred)}
	}
	return &Engine{rules: rules}, nil
}

// Apply resolves code after trimming and case folding.
func (e *Engine) Apply(code string) (Rule, error) {
	key := normalize(code)
	if key == "" {
		return Rule{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required").
			WithDetails(map[string]any{"field": "code"})
	}
	rule, ok := e.rules[key]
	if !ok {
		return Rule{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon code not recognized").
			WithDetails(map[string]any{"code": key})
	}
	return rule, nil
}

// Codes lists the configured codes in sorted order.
func (e *Engine) Codes() []string {
	codes := make([]string, 0, len(e.rules))
	for code := range e.rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Discount is subtotal multiplied by rate, rounded to cents.
func Discount(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Round(2)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Session is the applied-coupon state of one storefront device. It lives in
// memory only and is never persisted with the cart.
type Session struct {
	mu      sync.Mutex
	engine  *Engine
	applied *Rule
}

// NewSession starts with no coupon applied.
func NewSession(engine *Engine) *Session {
	return &Session{engine: engine}
}

// Apply validates code and marks it applied. A second apply while a coupon is
// applied is rejected; the caller must Remove first.
func (s *Session) Apply(code string) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied != nil {
		return Rule{}, pkgerrors.New(pkgerrors.CodeStateConflict, "a coupon is already applied").
			WithDetails(map[string]any{"applied": s.applied.Code})
	}
	rule, err := s.engine.Apply(code)
	if err != nil {
		return Rule{}, err
	}
	s.applied = &rule
	return rule, nil
}

// Remove clears any applied coupon.
func (s *Session) Remove() {
	s.mu.Lock()
	s.applied = nil
	s.mu.Unlock()
}

// Applied returns the applied rule, if any.
func (s *Session) Applied() (Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied == nil {
		return Rule{}, false
	}
	return *s.applied, true
}

// Rate is the applied discount fraction, zero when nothing is applied.
func (s *Session) Rate() decimal.Decimal {
	if rule, ok := s.Applied(); ok {
		return rule.Rate
	}
	return decimal.Zero
}
