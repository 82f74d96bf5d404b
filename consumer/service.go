// Package consumer runs one streaming media pipeline per call: live media
// in, transcripts out, answers spoken back through the call controller's
// out-of-band update path.
package consumer

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"parley/conf"
	"parley/db"
	"parley/kvs"
	"parley/snd"
	"parley/stt"
)

// Responder is the slice of llm.Responder the pipeline needs.
type Responder interface {
	Answer(ctx context.Context, question string) (string, error)
}

// StartRequest is the pipeline start contract. The conferencing platform's
// event bridge posts one of these when a caller's media stream begins.
type StartRequest struct {
	StartFragmentNumber    string `json:"startFragmentNumber"`
	MeetingID              string `json:"meetingId"`
	AttendeeID             string `json:"attendeeId"`
	CallStreamingStartTime string `json:"callStreamingStartTime"`
	CallerStreamARN        string `json:"callerStreamArn"`
}

type Service struct {
	log           *log.Logger
	store         db.SessionStore
	ingester      kvs.Ingester
	transcoder    snd.Transcoder
	transcription stt.Transcription
	responder     Responder
	updater       conf.CallUpdater

	chunkSize    int
	segmentQueue int
}

type Options struct {
	Store         db.SessionStore
	Ingester      kvs.Ingester
	Transcoder    snd.Transcoder
	Transcription stt.Transcription
	Responder     Responder
	Updater       conf.CallUpdater

	// ChunkSize is the audio chunk size pumped into transcription;
	// SegmentQueue bounds how many finalized segments may wait on a slow
	// responder before new ones are dropped. Zero means default.
	ChunkSize    int
	SegmentQueue int
}

const defaultSegmentQueue = 8

func New(logger *log.Logger, opts Options) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = snd.DefaultChunkSize
	}
	if opts.SegmentQueue <= 0 {
		opts.SegmentQueue = defaultSegmentQueue
	}

	return &Service{
		log:           logger,
		store:         opts.Store,
		ingester:      opts.Ingester,
		transcoder:    opts.Transcoder,
		transcription: opts.Transcription,
		responder:     opts.Responder,
		updater:       opts.Updater,
		chunkSize:     opts.ChunkSize,
		segmentQueue:  opts.SegmentQueue,
	}
}

func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.handleLiveness)
	r.Post("/call", s.handleCall)
	return r
}

func (s *Service) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleCall acknowledges immediately and runs the pipeline detached from
// the request: the caller only needs to know we took the job.
func (s *Service) handleCall(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed start request", http.StatusBadRequest)
		return
	}

	if req.CallerStreamARN == "" || req.MeetingID == "" {
		http.Error(
			w,
			"callerStreamArn and meetingId are required",
			http.StatusBadRequest,
		)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Request received. Processing in progress...",
	})

	go func() {
		ctx := context.WithoutCancel(r.Context())
		if err := s.Run(ctx, req); err != nil {
			s.log.Error(
				"pipeline ended with error",
				"meeting", req.MeetingID,
				"error", err,
			)
		}
	}()
}
