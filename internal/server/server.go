package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/gofindmy/internal/sink"
	"gitlab.com/d21d3q/gofindmy/pkg/gofindmy"
)

// Message is the ingestion request body. Payload is manufacturer data in hex,
// with the company identifier unless the server runs payload-only.
type Message struct {
	MessageID  int64  `json:"message_id"`
	GatewayMAC string `json:"gateway_mac"`
	DeviceMAC  string `json:"device_mac"`
	Payload    string `json:"payload"`
	Timestamp  int64  `json:"timestamp"`
	RSSI       *int   `json:"rssi,omitempty"`
}

// Server decodes posted advertisements and hands them to a sink.
type Server struct {
	sink         sink.Sink
	payloadOnly  bool
	previewChars int
}

// New returns a Server. s may be nil, in which case decoded results are only
// returned to the caller.
func New(s sink.Sink, payloadOnly bool, previewChars int) *Server {
	return &Server{sink: s, payloadOnly: payloadOnly, previewChars: previewChars}
}

// Handler routes /decode and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("gofindmy ok"))
	})
	mux.HandleFunc("/decode", s.handleDecode)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logrus.WithField("trace", genTraceID())

	if r.Method != http.MethodPost {
		http.Error(w, "only POST", http.StatusMethodNotAllowed)
		return
	}

	var in Message
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		log.WithError(err).Warn("request decode error")
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	normalize(&in)
	if err := validate(&in); err != nil {
		log.WithError(err).Warn("validation error")
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	log = log.WithFields(logrus.Fields{
		"msg_id":  in.MessageID,
		"dev_mac": in.DeviceMAC,
		"gw_mac":  in.GatewayMAC,
	})
	log.WithFields(logrus.Fields{
		"payload_len": len(in.Payload),
		"preview":     head(in.Payload, s.previewChars),
	}).Debug("message received")

	result, err := gofindmy.AnalyzeHexWithOptions(r.Context(), in.Payload, gofindmy.AnalyzeOptions{
		Address:     in.DeviceMAC,
		PayloadOnly: s.payloadOnly,
	})
	if err != nil {
		log.WithError(err).Warn("analyze error")
		http.Error(w, "parse error: "+err.Error(), http.StatusBadRequest)
		return
	}
	if result.Driver == "unknown" {
		msg := fmt.Sprintf("unsupported advertisement company %s type 0x%02X", result.Frame.CompanyIDString(), result.Frame.Type)
		log.Warn(msg)
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}
	if reason, rejected := result.Fields["error"].(string); rejected {
		log.WithField("reason", reason).Warn("advertisement rejected")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status":     "rejected",
			"message_id": in.MessageID,
			"fields":     result.Fields,
		})
		return
	}

	var callbackErr error
	if s.sink != nil {
		evt := sink.Event{
			MessageID:  in.MessageID,
			DeviceMAC:  in.DeviceMAC,
			GatewayMAC: in.GatewayMAC,
			Timestamp:  in.Timestamp,
			RSSI:       in.RSSI,
			RawHex:     result.RawHex,
			Driver:     result.Driver,
			Fields:     result.Fields,
		}
		// The event is persisted before callbacks run; a callback-only failure
		// is reported in the body so a client retry does not store it twice.
		if err := s.sink.Store(r.Context(), evt); err != nil {
			if sink.IsCritical(err) {
				log.WithError(err).Error("sink store error")
				http.Error(w, "store: "+err.Error(), http.StatusInternalServerError)
				return
			}
			log.WithError(err).Warn("callback error")
			callbackErr = err
		} else {
			log.WithField("sink", s.sink.Name()).Debug("stored")
		}
	}

	elapsed := time.Since(start).Milliseconds()
	log.WithField("ms", elapsed).Info("decode ok")
	resp := map[string]any{
		"status":     "ok",
		"message_id": in.MessageID,
		"driver":     result.Driver,
		"fields":     result.Fields,
		"ms":         elapsed,
	}
	if callbackErr != nil {
		resp["callback_error"] = callbackErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func normalize(m *Message) {
	strip := strings.NewReplacer(":", "", "-", "", ".", "", " ", "")
	m.DeviceMAC = strings.ToUpper(strip.Replace(m.DeviceMAC))
	m.GatewayMAC = strings.ToUpper(strip.Replace(m.GatewayMAC))
	m.Payload = strings.TrimSpace(m.Payload)
}

func validate(m *Message) error {
	if m.Payload == "" {
		return fmt.Errorf("payload empty")
	}
	if !isLikelyHex(m.Payload) {
		return fmt.Errorf("payload is not hex-like")
	}
	if m.Timestamp < 0 {
		return fmt.Errorf("timestamp must be unix ms")
	}
	return nil
}

func isLikelyHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func head(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func genTraceID() string {
	return fmt.Sprintf("%08x", rand.Uint32())
}
