package consumer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"parley/db"
	"parley/stt"
)

type fakeIngester struct {
	data []byte
	err  error
}

func (f *fakeIngester) Open(
	ctx context.Context,
	streamARN string,
) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type passthroughTranscoder struct{}

func (passthroughTranscoder) Transcode(
	ctx context.Context,
	src io.Reader,
) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

type fakeSession struct {
	segments  chan stt.Segment
	audioSeen int
	mu        sync.Mutex
}

func (s *fakeSession) SendAudio(data []byte) error {
	s.mu.Lock()
	s.audioSeen += len(data)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Segments() <-chan stt.Segment { return s.segments }
func (s *fakeSession) Close() error                 { return nil }

type fakeTranscription struct {
	session *fakeSession
}

func (f *fakeTranscription) Start(
	ctx context.Context,
) (stt.LiveTranscriptionSession, error) {
	return f.session, nil
}

type update struct {
	transactionID string
	function      string
	text          string
}

type fakeUpdater struct {
	mu      sync.Mutex
	updates []update
	notify  chan update
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{notify: make(chan update, 32)}
}

func (f *fakeUpdater) Update(
	ctx context.Context,
	transactionID, function, text string,
) error {
	u := update{transactionID: transactionID, function: function, text: text}
	f.mu.Lock()
	f.updates = append(f.updates, u)
	f.mu.Unlock()
	f.notify <- u
	return nil
}

func (f *fakeUpdater) await(t *testing.T, n int) []update {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for update %d of %d", i+1, n)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]update(nil), f.updates...)
}

type fakeResponder struct {
	answer string
	err    error
	delay  chan struct{} // when set, Answer blocks until it is closed
}

func (f *fakeResponder) Answer(
	ctx context.Context,
	question string,
) (string, error) {
	if f.delay != nil {
		<-f.delay
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer + " (" + question + ")", nil
}

func newTestService(
	session *fakeSession,
	store db.SessionStore,
	responder Responder,
	updater *fakeUpdater,
) *Service {
	return New(log.New(io.Discard), Options{
		Store:         store,
		Ingester:      &fakeIngester{data: []byte("media bytes")},
		Transcoder:    passthroughTranscoder{},
		Transcription: &fakeTranscription{session: session},
		Responder:     responder,
		Updater:       updater,
	})
}

func storeWith(meetingID, transactionID string) db.SessionStore {
	store := &memoryStore{rows: map[string]db.Session{}}
	if meetingID != "" {
		store.rows[meetingID] = db.Session{
			MeetingID:     meetingID,
			TransactionID: transactionID,
		}
	}
	return store
}

type memoryStore struct {
	mu   sync.Mutex
	rows map[string]db.Session
}

func (m *memoryStore) Put(ctx context.Context, session db.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[session.MeetingID] = session
	return nil
}

func (m *memoryStore) GetByMeetingID(
	ctx context.Context,
	meetingID string,
) (db.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.rows[meetingID]
	if !ok {
		return db.Session{}, db.ErrSessionNotFound
	}
	return session, nil
}

func (m *memoryStore) Delete(ctx context.Context, meetingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, meetingID)
	return nil
}

func startRequest() StartRequest {
	return StartRequest{
		MeetingID:       "meeting-1",
		CallerStreamARN: "arn:aws:kinesisvideo:us-east-1:0:stream/caller/1",
	}
}

func TestFinalizedSegmentTriggersThinkingThenResponse(t *testing.T) {
	session := &fakeSession{segments: make(chan stt.Segment)}
	updater := newFakeUpdater()
	service := newTestService(
		session,
		storeWith("meeting-1", "tx-1"),
		&fakeResponder{answer: "It is Paris."},
		updater,
	)

	go func() {
		session.segments <- stt.Segment{Text: "what is", IsPartial: true}
		session.segments <- stt.Segment{
			Text: "what is the capital of France",
		}
		close(session.segments)
	}()

	if err := service.Run(context.Background(), startRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	updates := updater.await(t, 2)
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2: %+v", len(updates), updates)
	}
	if updates[0].function != "Thinking" || updates[0].text != "" {
		t.Errorf("first update = %+v, want Thinking with no text", updates[0])
	}
	if updates[1].function != "Response" {
		t.Errorf("second update = %+v, want Response", updates[1])
	}
	if !strings.Contains(updates[1].text, "It is Paris.") {
		t.Errorf("response text = %q", updates[1].text)
	}
	for _, u := range updates {
		if u.transactionID != "tx-1" {
			t.Errorf("update addressed %q, want tx-1", u.transactionID)
		}
	}
}

func TestPartialSegmentsAreAdvisoryOnly(t *testing.T) {
	session := &fakeSession{segments: make(chan stt.Segment)}
	updater := newFakeUpdater()
	service := newTestService(
		session,
		storeWith("meeting-1", "tx-1"),
		&fakeResponder{answer: "never used"},
		updater,
	)

	go func() {
		session.segments <- stt.Segment{Text: "hel", IsPartial: true}
		session.segments <- stt.Segment{Text: "hello th", IsPartial: true}
		close(session.segments)
	}()

	if err := service.Run(context.Background(), startRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case u := <-updater.notify:
		t.Fatalf("partial segment produced update %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSegmentAfterCallEndIsDropped(t *testing.T) {
	session := &fakeSession{segments: make(chan stt.Segment)}
	updater := newFakeUpdater()
	service := newTestService(
		session,
		storeWith("", ""), // no session row: call already torn down
		&fakeResponder{answer: "never used"},
		updater,
	)

	go func() {
		session.segments <- stt.Segment{Text: "anyone there"}
		close(session.segments)
	}()

	if err := service.Run(context.Background(), startRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case u := <-updater.notify:
		t.Fatalf("late segment produced update %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResponderFailureDoesNotKillPipeline(t *testing.T) {
	session := &fakeSession{segments: make(chan stt.Segment)}
	updater := newFakeUpdater()
	responder := &fakeResponder{err: errors.New("model unavailable")}
	service := newTestService(
		session,
		storeWith("meeting-1", "tx-1"),
		responder,
		updater,
	)

	go func() {
		session.segments <- stt.Segment{Text: "first question"}
		close(session.segments)
	}()

	if err := service.Run(context.Background(), startRequest()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Thinking goes out before the model call; the failure swallows only
	// the response half of the pair.
	updates := updater.await(t, 1)
	if updates[0].function != "Thinking" {
		t.Errorf("update = %+v, want Thinking", updates[0])
	}
	select {
	case u := <-updater.notify:
		t.Fatalf("failed responder still produced %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSegmentPairsDoNotInterleave(t *testing.T) {
	session := &fakeSession{segments: make(chan stt.Segment, 2)}
	updater := newFakeUpdater()
	release := make(chan struct{})
	responder := &fakeResponder{answer: "answer", delay: release}
	service := newTestService(
		session,
		storeWith("meeting-1", "tx-1"),
		responder,
		updater,
	)

	session.segments <- stt.Segment{Text: "first", ResultIndex: 0}
	session.segments <- stt.Segment{Text: "second", ResultIndex: 1}
	close(session.segments)

	done := make(chan error, 1)
	go func() { done <- service.Run(context.Background(), startRequest()) }()

	// First Thinking arrives while the responder is held; the second
	// segment must wait rather than start its own pair.
	updater.await(t, 1)
	select {
	case u := <-updater.notify:
		t.Fatalf("second pair started before first finished: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	updates := updater.await(t, 3)
	functions := make([]string, len(updates))
	for i, u := range updates {
		functions[i] = u.function
	}
	want := []string{"Thinking", "Response", "Thinking", "Response"}
	if fmt.Sprint(functions) != fmt.Sprint(want) {
		t.Errorf("update order = %v, want %v", functions, want)
	}
	if !strings.Contains(updates[1].text, "first") ||
		!strings.Contains(updates[3].text, "second") {
		t.Errorf("answers out of order: %+v", updates)
	}
}

func TestIngestFailureEndsPipeline(t *testing.T) {
	service := New(log.New(io.Discard), Options{
		Store:         storeWith("meeting-1", "tx-1"),
		Ingester:      &fakeIngester{err: errors.New("stream not found")},
		Transcoder:    passthroughTranscoder{},
		Transcription: &fakeTranscription{session: &fakeSession{segments: make(chan stt.Segment)}},
		Responder:     &fakeResponder{},
		Updater:       newFakeUpdater(),
	})

	err := service.Run(context.Background(), startRequest())
	if err == nil {
		t.Fatal("expected missing source stream to fail fast")
	}
}

func TestCallEndpointAcknowledgesImmediately(t *testing.T) {
	session := &fakeSession{segments: make(chan stt.Segment)}
	service := newTestService(
		session,
		storeWith("meeting-1", "tx-1"),
		&fakeResponder{answer: "ok"},
		newFakeUpdater(),
	)
	server := httptest.NewServer(service.Router())
	defer server.Close()
	defer close(session.segments)

	body := strings.NewReader(`{
		"meetingId": "meeting-1",
		"callerStreamArn": "arn:aws:kinesisvideo:us-east-1:0:stream/caller/1"
	}`)

	resp, err := http.Post(server.URL+"/call", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
}

func TestCallEndpointRejectsMalformedRequests(t *testing.T) {
	service := newTestService(
		&fakeSession{segments: make(chan stt.Segment)},
		storeWith("meeting-1", "tx-1"),
		&fakeResponder{},
		newFakeUpdater(),
	)
	server := httptest.NewServer(service.Router())
	defer server.Close()

	t.Run("bad json", func(t *testing.T) {
		resp, err := http.Post(
			server.URL+"/call",
			"application/json",
			strings.NewReader("{nope"),
		)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("missing stream arn", func(t *testing.T) {
		resp, err := http.Post(
			server.URL+"/call",
			"application/json",
			strings.NewReader(`{"meetingId": "meeting-1"}`),
		)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestLivenessProbe(t *testing.T) {
	service := newTestService(
		&fakeSession{segments: make(chan stt.Segment)},
		storeWith("", ""),
		&fakeResponder{},
		newFakeUpdater(),
	)
	server := httptest.NewServer(service.Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
