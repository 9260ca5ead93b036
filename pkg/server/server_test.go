package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/audio/synth"
	"github.com/haivivi/voicegate/pkg/audio/wav"
	"github.com/haivivi/voicegate/pkg/deepfake"
	"github.com/haivivi/voicegate/pkg/kv"
	"github.com/haivivi/voicegate/pkg/metrics"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/token"
	"github.com/haivivi/voicegate/pkg/vad"
	"github.com/haivivi/voicegate/pkg/verify"
	"github.com/haivivi/voicegate/pkg/voiceprint"
)

const (
	rate      = pcm.DefaultSampleRate
	testModel = "const/v1"
)

// constExtractor maps any sufficient speech to the same vector.
type constExtractor struct{}

func (constExtractor) Embed(ctx context.Context, sp *vad.Speech) (voiceprint.Embedding, error) {
	if err := sp.Require(voiceprint.DefaultMinSpeech); err != nil {
		return voiceprint.Embedding{}, err
	}
	return voiceprint.Embedding{Model: testModel, Vector: []float32{0.6, 0.8}}, ctx.Err()
}
func (constExtractor) Model() string  { return testModel }
func (constExtractor) Dimension() int { return 2 }

type testServer struct {
	*httptest.Server
	issuer *token.Issuer
}

func newTestServer(t *testing.T, fake deepfake.Score) *testServer {
	t.Helper()
	det, err := vad.New(vad.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	store, err := profile.NewStore(profile.StoreConfig{KV: kv.NewMemory(), Model: testModel, Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	v, err := verify.NewVerifier(verify.Config{
		Detector:   det,
		Extractor:  constExtractor{},
		Classifier: deepfake.Fixed{Value: fake},
		Profiles:   store,
		Metrics:    m,
	})
	if err != nil {
		t.Fatal(err)
	}
	en, err := verify.NewEnroller(verify.EnrollerConfig{Detector: det, Extractor: constExtractor{}, Profiles: store, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	iss, err := token.NewIssuer(token.Config{Secret: []byte("test")})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(Config{
		Verifier:   v,
		Enroller:   en,
		Profiles:   store,
		Issuer:     iss,
		SampleRate: rate,
		Metrics:    m,
		Gatherer:   reg,
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, issuer: iss}
}

func wavBytes(t *testing.T, seg *pcm.Segment) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := wav.WriteFile(path, seg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func aliceWAV(t *testing.T, seed uint64) []byte {
	return wavBytes(t, synth.Alice.Render(rate, synth.Take{Seconds: 1, Seed: seed}))
}

func multipartBody(t *testing.T, field string, files ...[]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i, data := range files {
		fw, err := w.CreateFormFile(field, "sample"+string(rune('a'+i))+".wav")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (ts *testServer) enroll(t *testing.T, user string) {
	t.Helper()
	body, ct := multipartBody(t, "sample", aliceWAV(t, 1), aliceWAV(t, 2), aliceWAV(t, 3))
	resp, data := ts.do(t, http.MethodPost, "/v1/users/"+user+"/enroll", body, ct)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll status = %d: %s", resp.StatusCode, data)
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, 0)
	resp, data := ts.do(t, http.MethodGet, "/healthz", nil, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), testModel) {
		t.Fatalf("healthz = %d %s", resp.StatusCode, data)
	}
}

func TestEnrollGetListDelete(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.enroll(t, "alice")

	resp, data := ts.do(t, http.MethodGet, "/v1/users/alice", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get = %d %s", resp.StatusCode, data)
	}
	sum := decode[profile.Summary](t, data)
	if sum.Samples != 3 || sum.Stale || sum.Threshold != 0.9 {
		t.Fatalf("summary = %+v", sum)
	}

	_, data = ts.do(t, http.MethodGet, "/v1/users", nil, "")
	if users := decode[UsersResponse](t, data); len(users.Users) != 1 || users.Users[0] != "alice" {
		t.Fatalf("users = %+v", users)
	}

	resp, _ = ts.do(t, http.MethodDelete, "/v1/users/alice", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	resp, data = ts.do(t, http.MethodGet, "/v1/users/alice", nil, "")
	if resp.StatusCode != http.StatusNotFound || decode[ErrorResponse](t, data).Error != "unknown_user" {
		t.Fatalf("get after delete = %d %s", resp.StatusCode, data)
	}
}

func TestVerifyAcceptedIssuesToken(t *testing.T) {
	ts := newTestServer(t, 0.05)
	ts.enroll(t, "alice")

	resp, data := ts.do(t, http.MethodPost, "/v1/users/alice/verify?challenge=blue+river", bytes.NewReader(aliceWAV(t, 7)), "audio/wav")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify = %d %s", resp.StatusCode, data)
	}
	rep := decode[verify.Report](t, data)
	if !rep.Accepted || rep.Reason != verify.ReasonNone || rep.AttemptID == "" || rep.Token == "" {
		t.Fatalf("report = %+v", rep)
	}
	claims, err := ts.issuer.Validate(rep.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "alice" || claims.AttemptID != rep.AttemptID {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyMultipartDeepfake(t *testing.T) {
	ts := newTestServer(t, 0.9)
	ts.enroll(t, "alice")

	body, ct := multipartBody(t, "audio", aliceWAV(t, 8))
	resp, data := ts.do(t, http.MethodPost, "/v1/users/alice/verify", body, ct)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify = %d %s", resp.StatusCode, data)
	}
	rep := decode[verify.Report](t, data)
	if rep.Accepted || rep.Reason != verify.ReasonDeepfakeSuspected || rep.Token != "" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestVerifySilenceIsNoSpeech(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.enroll(t, "alice")
	resp, data := ts.do(t, http.MethodPost, "/v1/users/alice/verify", bytes.NewReader(wavBytes(t, synth.Silence(rate, 1))), "audio/wav")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify = %d %s", resp.StatusCode, data)
	}
	if rep := decode[verify.Report](t, data); rep.Reason != verify.ReasonNoSpeech || rep.Accepted {
		t.Fatalf("report = %+v", rep)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, 0)
	tests := []struct {
		name       string
		method     string
		path       string
		body       func() (io.Reader, string)
		wantStatus int
		wantCode   string
	}{
		{
			name: "unknown user verify", method: http.MethodPost, path: "/v1/users/ghost/verify",
			body:       func() (io.Reader, string) { return bytes.NewReader(aliceWAV(t, 1)), "audio/wav" },
			wantStatus: http.StatusNotFound, wantCode: "unknown_user",
		},
		{
			name: "garbage audio", method: http.MethodPost, path: "/v1/users/alice/verify",
			body:       func() (io.Reader, string) { return strings.NewReader("not a wav file"), "audio/wav" },
			wantStatus: http.StatusBadRequest, wantCode: "bad_audio",
		},
		{
			name: "too few samples", method: http.MethodPost, path: "/v1/users/alice/enroll",
			body:       func() (io.Reader, string) { return multipartBody(t, "sample", aliceWAV(t, 1)) },
			wantStatus: http.StatusBadRequest, wantCode: "too_few_samples",
		},
		{
			name: "silent enrollment sample", method: http.MethodPost, path: "/v1/users/alice/enroll",
			body: func() (io.Reader, string) {
				return multipartBody(t, "sample", aliceWAV(t, 1), aliceWAV(t, 2), wavBytes(t, synth.Silence(rate, 1)))
			},
			wantStatus: http.StatusBadRequest, wantCode: "no_speech",
		},
		{
			name: "retrain unknown", method: http.MethodPost, path: "/v1/users/ghost/retrain",
			body: func() (io.Reader, string) {
				return multipartBody(t, "sample", aliceWAV(t, 1), aliceWAV(t, 2), aliceWAV(t, 3))
			},
			wantStatus: http.StatusNotFound, wantCode: "unknown_user",
		},
		{
			name: "invalid user id", method: http.MethodGet, path: "/v1/users/bad%20id",
			body:       func() (io.Reader, string) { return nil, "" },
			wantStatus: http.StatusBadRequest, wantCode: "invalid_user_id",
		},
		{
			name: "no route", method: http.MethodGet, path: "/v2/nothing",
			body:       func() (io.Reader, string) { return nil, "" },
			wantStatus: http.StatusNotFound, wantCode: "not_found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := tt.body()
			resp, data := ts.do(t, tt.method, tt.path, body, ct)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, data)
			}
			if got := decode[ErrorResponse](t, data).Error; got != tt.wantCode {
				t.Fatalf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestStaleProfileConflict(t *testing.T) {
	if status, code := classify(profile.ErrStaleProfile); status != http.StatusConflict || code != "stale_profile" {
		t.Fatalf("classify = %d %q", status, code)
	}
}

func TestVerifyStream(t *testing.T) {
	ts := newTestServer(t, 0.1)
	ts.enroll(t, "alice")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/users/alice/verify/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	pcm16 := synth.Alice.Render(rate, synth.Take{Seconds: 1.2, Seed: 11}).Int16LE()
	for len(pcm16) > 0 {
		n := min(len(pcm16), 3200)
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm16[:n]); err != nil {
			t.Fatal(err)
		}
		pcm16 = pcm16[n:]
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("end")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var rep verify.Report
	if err := conn.ReadJSON(&rep); err != nil {
		t.Fatal(err)
	}
	if !rep.Accepted || rep.Token == "" || rep.SpeechSeconds < 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestVerifyStreamUnknownUser(t *testing.T) {
	ts := newTestServer(t, 0)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/users/ghost/verify/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.WriteMessage(websocket.BinaryMessage, synth.Alice.Render(rate, synth.Take{Seconds: 1, Seed: 1}).Int16LE())
	conn.WriteMessage(websocket.TextMessage, []byte("end"))
	var e ErrorResponse
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatal(err)
	}
	if e.Error != "unknown_user" {
		t.Fatalf("error = %+v", e)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.enroll(t, "alice")
	ts.do(t, http.MethodPost, "/v1/users/alice/verify", bytes.NewReader(aliceWAV(t, 5)), "audio/wav")
	resp, data := ts.do(t, http.MethodGet, "/metrics", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
	for _, want := range []string{"voicegate_verifications_total", "voicegate_enrollments_total", "voicegate_http_requests_total"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func rtpPackets(t *testing.T, seg *pcm.Segment, startSeq uint16) [][]byte {
	t.Helper()
	le := seg.Int16LE()
	const chunk = 640 // 20 ms at 16 kHz
	var out [][]byte
	seq := startSeq
	for off := 0; off < len(le); off += chunk {
		end := min(off+chunk, len(le))
		payload := make([]byte, end-off)
		for i := 0; i+1 < len(payload); i += 2 {
			payload[i], payload[i+1] = le[off+i+1], le[off+i]
		}
		p := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    96,
				SequenceNumber: seq,
				Timestamp:      uint32(off / 2),
				SSRC:           0x1234abcd,
			},
			Payload: payload,
		}
		b, err := p.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, b)
		seq++
	}
	return out
}

func TestRTPAssemblerReorders(t *testing.T) {
	seg := synth.Tone(rate, 440, 0.1, 0.5)
	pkts := rtpPackets(t, seg, 65534)

	asm := newRTPAssembler()
	order := []int{1, 0, 3, 2, 2, 4}
	for _, i := range order {
		if err := asm.Add(pkts[i]); err != nil {
			t.Fatal(err)
		}
	}
	data, lost := asm.PCM16LE()
	if lost != 0 {
		t.Fatalf("lost = %d", lost)
	}
	if !bytes.Equal(data, seg.Int16LE()) {
		t.Fatal("reassembled audio differs from the original")
	}
}

func TestRTPAssemblerLongStreamWraps(t *testing.T) {
	// Two-byte payloads carry their own position, so more packets than
	// half the sequence space fit under the upload limit.
	const n = 80000
	pkt := func(i int) []byte {
		p := &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: uint16(60000 + i), SSRC: 7},
			Payload: []byte{byte(uint16(i) >> 8), byte(uint16(i))},
		}
		b, err := p.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	asm := newRTPAssembler()
	for i := 0; i < n; i++ {
		j := i
		// swap the packets on either side of each wrap
		switch i {
		case 5535, 71071:
			j = i + 1
		case 5536, 71072:
			j = i - 1
		}
		if err := asm.Add(pkt(j)); err != nil {
			t.Fatal(err)
		}
	}
	data, lost := asm.PCM16LE()
	if lost != 0 {
		t.Fatalf("lost = %d", lost)
	}
	if len(data) != 2*n {
		t.Fatalf("len = %d, want %d", len(data), 2*n)
	}
	for i := 0; i < n; i++ {
		if got := uint16(data[2*i]) | uint16(data[2*i+1])<<8; got != uint16(i) {
			t.Fatalf("sample %d = %d, want %d", i, got, uint16(i))
		}
	}
}

func TestRTPAssemblerCountsLoss(t *testing.T) {
	pkts := rtpPackets(t, synth.Tone(rate, 440, 0.1, 0.5), 10)
	asm := newRTPAssembler()
	for _, i := range []int{0, 1, 4} {
		if err := asm.Add(pkts[i]); err != nil {
			t.Fatal(err)
		}
	}
	if _, lost := asm.PCM16LE(); lost != 2 {
		t.Fatalf("lost = %d, want 2", lost)
	}
}

func TestRTPAssemblerRejects(t *testing.T) {
	asm := newRTPAssembler()
	if err := asm.Add([]byte{0x80}); err == nil {
		t.Fatal("accepted a truncated packet")
	}
	pkts := rtpPackets(t, synth.Tone(rate, 440, 0.04, 0.5), 1)
	if err := asm.Add(pkts[0]); err != nil {
		t.Fatal(err)
	}
	other := &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 2, SSRC: 7}, Payload: []byte{0, 1}}
	b, _ := other.Marshal()
	if err := asm.Add(b); err == nil {
		t.Fatal("accepted a packet from another source")
	}
}

func TestVerifyStreamRTP(t *testing.T) {
	ts := newTestServer(t, 0.1)
	ts.enroll(t, "alice")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/users/alice/verify/stream?framing=rtp"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	pkts := rtpPackets(t, synth.Alice.Render(rate, synth.Take{Seconds: 1.2, Seed: 12}), 100)
	pkts[3], pkts[4] = pkts[4], pkts[3]
	for _, p := range pkts {
		if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("end")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var rep verify.Report
	if err := conn.ReadJSON(&rep); err != nil {
		t.Fatal(err)
	}
	if !rep.Accepted || rep.SpeechSeconds < 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestVerifyStreamBadFraming(t *testing.T) {
	ts := newTestServer(t, 0)
	resp, body := ts.do(t, http.MethodGet, "/v1/users/alice/verify/stream?framing=opus", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
}
