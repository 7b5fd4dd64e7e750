package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "10.0.0.5:4411"
	assert.Equal(t, "10.0.0.5", IPFromRequest(r))

	r.Header.Set("X-Real-IP", "192.168.1.2")
	assert.Equal(t, "192.168.1.2", IPFromRequest(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", IPFromRequest(r))
}

func TestDeviceIDFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?device_id=phone", nil)
	assert.Equal(t, "phone", DeviceIDFromRequest(r))

	r.Header.Set("X-Device-Id", "laptop")
	assert.Equal(t, "laptop", DeviceIDFromRequest(r))
}

func TestBuildHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
	assert.Empty(t, BuildHeaders("", ""))
}
