package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/gofindmy/internal/sink"
)

const standardAdv = "4C001219C35D1A27C46E0B93F2A8174C6D20E95B3F8C71D4A2069EAB07"

type memorySink struct {
	events []sink.Event
	err    error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Store(_ context.Context, evt sink.Event) error {
	m.events = append(m.events, evt)
	return m.err
}

func (m *memorySink) Close() error { return nil }

type callbackSink struct{ memorySink }

func (c *callbackSink) BestEffort() bool { return true }

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/decode", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDecodeStores(t *testing.T) {
	mem := &memorySink{}
	h := New(mem, false, 16).Handler()
	rec := post(t, h, `{"message_id":5,"device_mac":"aa:bb:cc:dd:ee:ff","gateway_mac":"01-02-03-04-05-06","payload":"`+standardAdv+`","timestamp":1700000000000,"rssi":-70}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
	require.Equal(t, "offinding", resp["driver"])
	fields := resp["fields"].(map[string]any)
	require.Equal(t, "AABBCCDDEEFF5D1A27C46E0B93F2A8174C6D20E95B3F8C71D4A2069E", fields["reconstructed_public_key"])

	require.Len(t, mem.events, 1)
	evt := mem.events[0]
	require.Equal(t, int64(5), evt.MessageID)
	require.Equal(t, "AABBCCDDEEFF", evt.DeviceMAC)
	require.Equal(t, "010203040506", evt.GatewayMAC)
	require.Equal(t, -70, *evt.RSSI)
	require.Equal(t, standardAdv, evt.RawHex)
	require.Equal(t, "Critical", evt.Fields["battery_level"])
}

func TestDecodePayloadOnlyWithoutSink(t *testing.T) {
	h := New(nil, true, 0).Handler()
	rec := post(t, h, `{"payload":"121900"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDecodeRejected(t *testing.T) {
	mem := &memorySink{}
	rec := post(t, New(mem, true, 0).Handler(), `{"payload":"1219"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "rejected")
	require.Empty(t, mem.events)
}

func TestDecodeUnknownType(t *testing.T) {
	rec := post(t, New(nil, false, 0).Handler(), `{"payload":"4C0010051B"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "type 0x10")
}

func TestDecodeBadRequests(t *testing.T) {
	h := New(nil, false, 0).Handler()
	cases := map[string]string{
		"json":    `{`,
		"empty":   `{"payload":""}`,
		"not hex": `{"payload":"4C0Z12"}`,
		"odd":     `{"payload":"4C0"}`,
		"address": `{"payload":"` + standardAdv + `","device_mac":"nope"}`,
		"short":   `{"payload":"4C00"}`,
	}
	for name, body := range cases {
		rec := post(t, h, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestDecodeSinkError(t *testing.T) {
	mem := &memorySink{err: errors.New("db down")}
	rec := post(t, New(mem, false, 0).Handler(), `{"payload":"`+standardAdv+`"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestDecodeCallbackErrorAfterStore(t *testing.T) {
	store := &memorySink{}
	callbacks := &callbackSink{memorySink{err: errors.New("publish timeout")}}
	rec := post(t, New(sink.Multi{store, callbacks}, false, 0).Handler(), `{"message_id":3,"payload":"`+standardAdv+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, store.events, 1)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
	require.Contains(t, resp["callback_error"], "publish timeout")
}

func TestDecodeMultiStoreFailure(t *testing.T) {
	store := &memorySink{err: errors.New("db down")}
	callbacks := &callbackSink{}
	rec := post(t, New(sink.Multi{store, callbacks}, false, 0).Handler(), `{"payload":"`+standardAdv+`"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestMethodAndHealth(t *testing.T) {
	h := New(nil, false, 0).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/decode", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHead(t *testing.T) {
	require.Equal(t, "abc", head("abcdef", 3))
	require.Equal(t, "abc", head("abc", 0))
}
