package shipping

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLabelFromRate(t *testing.T) {
	t.Run("purchases a label", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/labels/rates/rate_1", r.URL.Path)
			assert.Equal(t, "key123", r.Header.Get("API-Key"))
			fmt.Fprint(w, `{
				"label_id": "lbl_1",
				"tracking_number": "TRACK123",
				"carrier_code": "usps",
				"service_code": "usps_priority_mail",
				"downloads": {"pdf": "https://labels.example.com/lbl_1.pdf"}
			}`)
		}))
		defer srv.Close()

		s := NewHTTPLabelService(srv.URL, "key123", nil)
		label, err := s.CreateLabelFromRate(context.Background(), "rate_1")
		require.NoError(t, err)

		assert.Equal(t, "lbl_1", label.LabelID)
		assert.Equal(t, "TRACK123", label.TrackingNumber)
		assert.Equal(t, "https://labels.example.com/lbl_1.pdf", label.Downloads.PDF)
	})

	t.Run("expired rate", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		s := NewHTTPLabelService(srv.URL, "key123", nil)
		_, err := s.CreateLabelFromRate(context.Background(), "rate_stale")
		assert.ErrorIs(t, err, ErrRateExpired)
	})

	t.Run("provider failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		s := NewHTTPLabelService(srv.URL, "key123", nil)
		_, err := s.CreateLabelFromRate(context.Background(), "rate_1")
		assert.ErrorContains(t, err, "status 502")
	})
}
