package httpjson

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type confirmBody struct {
	BookingID string `json:"bookingId" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=student teacher"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"bookingId":"b1","role":"teacher"}`},
		{name: "extra fields", body: `{"bookingId":"b1","role":"student","note":"x"}`},
		{name: "bad json", body: `{"bookingId":`, wantErr: "invalid json"},
		{name: "missing id", body: `{"role":"student"}`, wantErr: "bookingId: this field is required"},
		{name: "bad role", body: `{"bookingId":"b1","role":"admin"}`, wantErr: "role: must be one of: student, teacher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in confirmBody
			err := Decode(req, &in)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "b1", in.BookingID)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "booking not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"booking not found"}`, rec.Body.String())
}
