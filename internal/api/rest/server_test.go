package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/KevinKickass/OpenSimCore/internal/host"
	"github.com/KevinKickass/OpenSimCore/internal/interfaces"
	"github.com/KevinKickass/OpenSimCore/internal/model"
	"github.com/KevinKickass/OpenSimCore/internal/override"
	"github.com/KevinKickass/OpenSimCore/internal/parsers"
	"github.com/KevinKickass/OpenSimCore/internal/populate"
	"github.com/KevinKickass/OpenSimCore/internal/simdevice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	deviceName  = "weather/station/1"
	controlName = "weather/station/1_control"
	testSecret  = "0123456789abcdef0123456789abcdef"
)

type weatherOverride struct{}

func (weatherOverride) Actions() map[string]model.Handler {
	return map[string]model.Handler{
		"action_setmode": func(m *model.Model, args any) (any, error) {
			label, _ := args.(string)
			return nil, m.SetEnum("mode", label)
		},
	}
}

func init() {
	override.Register("weather_override", "OverrideWeather", func() override.Provider { return weatherOverride{} })
}

type fakeLM struct {
	cfg    *config.Config
	srv    *host.Server
	models *model.Registry
}

func (f *fakeLM) Config() *config.Config             { return f.cfg }
func (f *fakeLM) Host() *host.Server                 { return f.srv }
func (f *fakeLM) Models() *model.Registry            { return f.models }
func (f *fakeLM) Shutdown(ctx context.Context) error { return nil }

func (f *fakeLM) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "running", DeviceCount: len(f.srv.Devices()), Models: f.models.Names()}
}

func newLM(t *testing.T) *fakeLM {
	t.Helper()
	loader, err := parsers.NewLoader([]string{"../../parsers/testdata"})
	require.NoError(t, err)
	files, err := loader.LoadAll([]string{"Weather.xmi", "Weather_SIMDD.json"})
	require.NoError(t, err)

	m := model.New(deviceName, model.WithTimeFunc(func() float64 { return 1000 }))
	res, err := populate.Build(m, files, override.NewLoader(zap.NewNop()))
	require.NoError(t, err)
	asm, err := simdevice.NewAssembler(zap.NewNop()).Assemble(m, res.Merged)
	require.NoError(t, err)

	srv := host.NewServer(nil, zap.NewNop())
	_, _, err = simdevice.Install(context.Background(), srv, asm, deviceName, "")
	require.NoError(t, err)

	models := model.NewRegistry()
	models.Register(m)
	return &fakeLM{cfg: &config.Config{}, srv: srv, models: models}
}

func newTestServer(t *testing.T, jwt *auth.JWTHandler) (*Server, *fakeLM) {
	t.Helper()
	lm := newLM(t)
	return NewServer(lm.cfg, lm, zap.NewNop(), websocket.NewHub(zap.NewNop(), nil), jwt), lm
}

func devicePath(name, rest string) string {
	return "/api/v1/devices/" + url.PathEscape(name) + rest
}

func do(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, "running", status["state"])
	assert.Equal(t, 2.0, status["device_count"])
}

func TestListDevices(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/api/v1/devices", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 2.0, body["count"])
}

func TestReadAndWriteAttributes(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodPut, devicePath(deviceName, "/attributes/humidity"), `{"value": 55}`, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodGet, devicePath(deviceName, "/attributes/humidity"), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	reading := decode(t, w)
	assert.Equal(t, 55.0, reading["value"])
	assert.Equal(t, "VALID", reading["quality"])

	w = do(t, s, http.MethodGet, devicePath(deviceName, "/attributes"), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	attrs := decode(t, w)["attributes"].(map[string]any)
	assert.Contains(t, attrs, "temperature")

	w = do(t, s, http.MethodGet, devicePath(deviceName, "/attributes/nope"), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, devicePath("no/such/device", "/attributes"), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunCommand(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, devicePath(deviceName, "/commands/SetTemperature"), `{"value": 30}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30.0, decode(t, w)["result"])

	w = do(t, s, http.MethodPost, devicePath(deviceName, "/commands/State"), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ON", decode(t, w)["result"])

	w = do(t, s, http.MethodPost, devicePath(deviceName, "/commands/SetMode"), `{"value": "PARKED"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestInterfaceAndValidate(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, devicePath(deviceName, "/interface"), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	yamlDoc := w.Body.String()
	assert.Contains(t, yamlDoc, "class: Weather")

	w = do(t, s, http.MethodPost, devicePath(deviceName, "/validate?bidirectional=true"), yamlDoc, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["valid"])

	broken := strings.Replace(yamlDoc, "name: humidity", "name: humidityX", 1)
	w = do(t, s, http.MethodPost, devicePath(deviceName, "/validate"), broken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])
}

func TestExportDevice(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, devicePath(deviceName, ""), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "temperature")
}

func TestAuthorization(t *testing.T) {
	jwt := auth.NewJWTHandler(testSecret, time.Hour)
	s, _ := newTestServer(t, jwt)

	token := func(role string) string {
		tok, err := jwt.GenerateToken("tester", role)
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/devices", "", "", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/v1/devices", "", token(auth.RoleViewer), http.StatusOK},
		{"viewer cannot write", http.MethodPut, devicePath(deviceName, "/attributes/humidity"), `{"value": 1}`, token(auth.RoleViewer), http.StatusForbidden},
		{"operator writes", http.MethodPut, devicePath(deviceName, "/attributes/humidity"), `{"value": 1}`, token(auth.RoleOperator), http.StatusNoContent},
		{"operator cannot drive control", http.MethodPost, devicePath(controlName, "/commands/Freeze"), "", token(auth.RoleOperator), http.StatusForbidden},
		{"tester drives control", http.MethodPost, devicePath(controlName, "/commands/Freeze"), "", token(auth.RoleTester), http.StatusOK},
		{"health stays public", http.MethodGet, "/health", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
