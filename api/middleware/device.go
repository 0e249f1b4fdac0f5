package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/webstore-backend/api/responses"
	"github.com/angelmondragon/webstore-backend/pkg/config"
	"github.com/angelmondragon/webstore-backend/pkg/device"
	pkgerrors "github.com/angelmondragon/webstore-backend/pkg/errors"
	"github.com/angelmondragon/webstore-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	// DeviceTokenHeader carries the anonymous device token in both directions.
	DeviceTokenHeader = "X-Device-Token"
	// DeviceTokenQueryParam carries the token for clients that cannot set
	// headers, such as a browser EventSource.
	DeviceTokenQueryParam = "device_token"
)

// DeviceOption adjusts how Device reads the token.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	queryToken bool
}

// WithQueryToken lets Device fall back to the device_token query parameter
// when the header is absent. Use it only on routes EventSource connects to.
func WithQueryToken() DeviceOption {
	return func(o *deviceOptions) {
		o.queryToken = true
	}
}

// Device resolves the caller's device from X-Device-Token. A missing, expired
// or forged token gets a freshly minted device, returned in the response header.
func Device(cfg config.DeviceConfig, logg *logger.Logger, opts ...DeviceOption) func(http.Handler) http.Handler {
	var options deviceOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := strings.TrimSpace(r.Header.Get(DeviceTokenHeader))
			if raw == "" && options.queryToken {
				raw = strings.TrimSpace(r.URL.Query().Get(DeviceTokenQueryParam))
			}

			var deviceID string
			if raw != "" {
				claims, err := device.Parse(cfg, raw)
				if err == nil {
					deviceID = claims.DeviceID.String()
					w.Header().Set(DeviceTokenHeader, raw)
				} else if logg != nil {
					logg.Debug(logg.WithField(ctx, "reason", err.Error()), "device.token_rejected")
				}
			}

			if deviceID == "" {
				id := uuid.New()
				token, err := device.Mint(cfg, time.Now(), id)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint device token"))
					return
				}
				deviceID = id.String()
				w.Header().Set(DeviceTokenHeader, token)
			}

			ctx = WithDeviceID(ctx, deviceID)
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, deviceID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
