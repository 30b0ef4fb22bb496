package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/probelab/callprobe/internal/log"
	"github.com/probelab/callprobe/pkg/audio"
	"github.com/probelab/callprobe/pkg/realtime"
	"github.com/probelab/callprobe/pkg/scenario"
	"github.com/probelab/callprobe/pkg/store"
	"github.com/probelab/callprobe/pkg/telephony"
)

// State tracks a session through its lifecycle.
type State int32

const (
	StateInitializing State = iota
	StateStreaming
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the session is done.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Options tune a session. Zero values fall back to the defaults below.
type Options struct {
	MinAudioBytes int
	IdleTimeout   time.Duration
	GoodbyeWord   string
	Voice         string
	VADThreshold  float64

	// AudioFormat selects the AI-endpoint codec. The default g711_ulaw
	// passes telephony audio through untouched; pcm16 transcodes both
	// directions between 8 kHz mu-law and 24 kHz linear PCM.
	AudioFormat string
}

const (
	// 1600 bytes of 8 kHz mu-law is 200 ms, the shortest clip worth keeping.
	DefaultMinAudioBytes = 1600
	DefaultIdleTimeout   = 30 * time.Second
	DefaultGoodbyeWord   = "bye"
)

func (o Options) withDefaults() Options {
	if o.MinAudioBytes == 0 {
		o.MinAudioBytes = DefaultMinAudioBytes
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.GoodbyeWord == "" {
		o.GoodbyeWord = DefaultGoodbyeWord
	}
	return o
}

// Session bridges one call: it owns the telephony media stream and the AI
// endpoint connection, runs the two relay loops, and commits turns to its
// ledger. All mutable call state lives here and is touched only by the two
// loops.
type Session struct {
	ID     string // call identifier, assigned by the controller
	TestID string

	opts       Options
	test       *scenario.Test
	stream     telephony.Stream
	endpoint   realtime.Endpoint
	controller telephony.Controller
	objects    store.ObjectStore
	handoff    *Handoff

	ledger    *Ledger
	agentBuf  *TurnBuffer
	evalBuf   *TurnBuffer
	transcode bool

	startedAt time.Time

	mu               sync.Mutex
	state            State
	failureMsg       string
	streamSID        string
	latestMediaTS    int64
	bargeInWatermark int64
	pendingUtterance string
	endAfterResponse bool

	finishOnce sync.Once
	done       chan struct{}
}

// NewSession wires a session. Run starts the relay loops.
func NewSession(callID string, test *scenario.Test, stream telephony.Stream,
	endpoint realtime.Endpoint, controller telephony.Controller,
	objects store.ObjectStore, handoff *Handoff, opts Options) *Session {

	opts = opts.withDefaults()
	return &Session{
		ID:         callID,
		TestID:     test.ID,
		opts:       opts,
		test:       test,
		stream:     stream,
		endpoint:   endpoint,
		controller: controller,
		objects:    objects,
		handoff:    handoff,
		startedAt:  time.Now().UTC(),
		transcode:  opts.AudioFormat == "pcm16",
		ledger:     NewLedger(),
		agentBuf:   NewTurnBuffer(SpeakerAgent, opts.MinAudioBytes),
		evalBuf:    NewTurnBuffer(SpeakerEvaluator, opts.MinAudioBytes),
		done:       make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ledger exposes the committed turns for read-only snapshots.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// Done is closed once the session reaches a terminal state and handoff has
// been attempted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run connects the AI endpoint, kicks off the conversation, and drives both
// relay loops until the call ends. It blocks until the session is terminal.
func (s *Session) Run(ctx context.Context) {
	if err := s.endpoint.Connect(ctx); err != nil {
		log.Error("bridge: endpoint connect failed", "call", s.ID, "error", err)
		s.finish(ctx, StateFailed, "endpoint connect: "+err.Error())
		return
	}

	if err := s.endpoint.ConfigureSession(realtime.SessionOptions{
		Instructions: s.test.Instructions(),
		Voice:        s.opts.Voice,
		VADThreshold: s.opts.VADThreshold,
		AudioFormat:  s.opts.AudioFormat,
	}); err != nil {
		log.Error("bridge: session configure failed", "call", s.ID, "error", err)
		s.finish(ctx, StateFailed, "session configure: "+err.Error())
		return
	}

	// The evaluator opens the call with the scenario question.
	if s.test.Question != "" {
		if err := s.endpoint.CreateUserMessage(s.test.Question); err != nil {
			log.Warn("bridge: opening message failed", "call", s.ID, "error", err)
		}
		if err := s.endpoint.CreateResponse(); err != nil {
			log.Warn("bridge: opening response failed", "call", s.ID, "error", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.callerLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.aiLoop(ctx)
	}()
	wg.Wait()

	s.finish(ctx, StateCompleted, "")
}

// callerLoop relays the telephony side: inbound audio frames go to the agent
// buffer and on to the AI endpoint; control events drive the lifecycle.
func (s *Session) callerLoop(ctx context.Context) {
	for {
		msg, err := s.stream.Read()
		if err != nil {
			// Stream close is the normal end of a call.
			log.Debug("bridge: media stream closed", "call", s.ID, "error", err)
			s.beginFinalizing()
			return
		}

		switch msg.Event {
		case telephony.EventConnected:
			log.Debug("bridge: media socket connected", "call", s.ID)

		case telephony.EventStart:
			s.mu.Lock()
			s.streamSID = msg.Start.StreamSID
			s.latestMediaTS = 0
			s.bargeInWatermark = 0
			s.pendingUtterance = ""
			if s.state == StateInitializing {
				s.state = StateStreaming
			}
			s.mu.Unlock()
			log.Info("bridge: media stream started", "call", s.ID, "stream", msg.Start.StreamSID)

		case telephony.EventMedia:
			frame, err := msg.Media.Audio()
			if err != nil {
				log.Warn("bridge: dropping bad media frame", "call", s.ID, "error", err)
				continue
			}
			s.mu.Lock()
			s.latestMediaTS = msg.Media.TimestampMS()
			streaming := s.state == StateStreaming
			s.mu.Unlock()
			if !streaming {
				continue
			}
			s.agentBuf.AppendAudio(frame)
			out := frame
			if s.transcode {
				out = audio.MuLawToModelPCM(frame)
			}
			if err := s.endpoint.AppendAudio(out); err != nil {
				log.Warn("bridge: audio forward failed", "call", s.ID, "error", err)
			}

		case telephony.EventMark:
			log.Debug("bridge: mark echoed", "call", s.ID, "mark", msg.Mark.Name)

		case telephony.EventStop:
			log.Info("bridge: media stream stopped", "call", s.ID)
			s.beginFinalizing()
			return

		default:
			log.Warn("bridge: unexpected media event", "call", s.ID, "event", string(msg.Event))
		}
	}
}

// aiLoop relays the AI side with an idle watchdog. A quiet endpoint during
// streaming means the connection died without a close frame.
func (s *Session) aiLoop(ctx context.Context) {
	idle := time.NewTimer(s.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case ev, ok := <-s.endpoint.Events():
			if !ok {
				s.beginFinalizing()
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.opts.IdleTimeout)

			if done := s.handleEvent(ctx, ev); done {
				return
			}

		case <-idle.C:
			log.Warn("bridge: endpoint idle timeout", "call", s.ID, "timeout", s.opts.IdleTimeout)
			s.beginFinalizing()
			return

		case <-ctx.Done():
			s.beginFinalizing()
			return
		}
	}
}

// handleEvent dispatches one AI endpoint event. Returns true when the loop
// should exit.
func (s *Session) handleEvent(ctx context.Context, ev realtime.Event) bool {
	switch ev.Kind {
	case realtime.KindTranscriptDelta:
		// Completed transcription of caller speech closes an agent turn.
		// An empty transcription commits only when buffered audio alone
		// crosses the flush threshold; short audio keeps accumulating
		// toward the next boundary.
		s.agentBuf.AppendText(ev.Text)
		if s.agentBuf.HasText() || s.agentBuf.ShouldFlush() {
			s.commitTurn(ctx, s.agentBuf)
		}
		s.checkGoodbye(ev.Text)

	case realtime.KindAudioDelta:
		s.onAssistantAudio(ev)

	case realtime.KindResponseTextDelta:
		s.evalBuf.AppendText(ev.Text)

	case realtime.KindResponseDone:
		s.commitTurn(ctx, s.evalBuf)
		s.mu.Lock()
		s.pendingUtterance = ""
		hangup := s.endAfterResponse
		s.mu.Unlock()
		if hangup {
			log.Info("bridge: goodbye exchange complete, ending call", "call", s.ID)
			if err := s.controller.EndCall(ctx, s.ID); err != nil {
				log.Warn("bridge: end call failed", "call", s.ID, "error", err)
			}
		}

	case realtime.KindSpeechStarted:
		s.handleBargeIn()

	case realtime.KindError:
		log.Error("bridge: endpoint error", "call", s.ID, "error", ev.Err)
		s.flushWithError(ctx, ev.Err)
		reason := "endpoint error"
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		s.markFailed(reason)
		s.beginFinalizing()
		return true
	}
	return false
}

// onAssistantAudio forwards one generated audio chunk to the caller and
// anchors the barge-in clock at the start of each new utterance.
func (s *Session) onAssistantAudio(ev realtime.Event) {
	s.mu.Lock()
	if ev.UtteranceID != "" && ev.UtteranceID != s.pendingUtterance {
		s.pendingUtterance = ev.UtteranceID
		s.bargeInWatermark = s.latestMediaTS
	}
	sid := s.streamSID
	s.mu.Unlock()

	payload := ev.Audio
	if s.transcode {
		payload = audio.ModelPCMToMuLaw(ev.Audio)
	}
	s.evalBuf.AppendAudio(payload)

	if sid == "" {
		// No stream anchor yet, audio cannot be delivered.
		return
	}
	if err := s.stream.Send(telephony.NewMediaMessage(sid, payload)); err != nil {
		log.Warn("bridge: playback send failed", "call", s.ID, "error", err)
		return
	}
	if err := s.stream.Send(telephony.NewMarkMessage(sid, ulid.Make().String())); err != nil {
		log.Debug("bridge: mark send failed", "call", s.ID, "error", err)
	}
}

// handleBargeIn runs the truncate-then-clear protocol when the caller starts
// talking over the assistant. Truncation must reach the AI endpoint before
// the playback queue is cleared; the reverse order leaves the model believing
// it said more than the caller heard.
func (s *Session) handleBargeIn() {
	s.mu.Lock()
	pending := s.pendingUtterance
	elapsed := s.latestMediaTS - s.bargeInWatermark
	sid := s.streamSID
	s.mu.Unlock()

	if pending == "" {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}

	log.Info("bridge: barge-in", "call", s.ID, "utterance", pending, "elapsed_ms", elapsed)

	if err := s.endpoint.TruncateUtterance(pending, elapsed); err != nil {
		log.Warn("bridge: truncate failed", "call", s.ID, "error", err)
	}
	if sid != "" {
		if err := s.stream.Send(telephony.NewClearMessage(sid)); err != nil {
			log.Warn("bridge: clear failed", "call", s.ID, "error", err)
		}
	}

	s.mu.Lock()
	s.pendingUtterance = ""
	s.bargeInWatermark = s.latestMediaTS
	s.mu.Unlock()
}

// commitTurn drains a buffer into the ledger. Audio and text for one
// utterance may arrive out of order across flushes; when the speaker's
// newest turn is missing the piece we now hold, that turn is amended instead
// of creating a second fragment.
func (s *Session) commitTurn(ctx context.Context, buf *TurnBuffer) {
	rawAudio, text := buf.Flush()
	if len(rawAudio) == 0 && text == "" {
		return
	}
	speaker := buf.Speaker()

	if text != "" && len(rawAudio) == 0 {
		if seq, ok := s.ledger.LastMissingText(speaker); ok {
			if err := s.ledger.AmendText(seq, text); err == nil {
				return
			}
		}
	}
	if len(rawAudio) > 0 && text == "" {
		if seq, ok := s.ledger.LastMissingAudio(speaker); ok {
			seqURL := s.storeAudio(ctx, seq, speaker, rawAudio)
			if seqURL != "" {
				if err := s.ledger.AmendAudio(seq, seqURL); err == nil {
					return
				}
			}
		}
	}

	audioRef := ""
	if len(rawAudio) > 0 {
		audioRef = s.storeAudio(ctx, s.ledger.NextSequence(), speaker, rawAudio)
	}
	if text == "" && audioRef == "" {
		// Audio-only flush whose recording could not be stored.
		return
	}
	turn := s.ledger.Append(speaker, text, audioRef)
	log.Debug("bridge: turn committed", "call", s.ID, "speaker", string(speaker),
		"sequence", turn.Sequence, "audio_bytes", len(rawAudio), "text_len", len(text))
}

// storeAudio wraps raw mu-law in a WAV container and persists it. Returns
// the object URL or empty on failure; a missed recording does not fail the
// turn.
func (s *Session) storeAudio(ctx context.Context, sequence int, speaker Speaker, mulaw []byte) string {
	key := store.AudioKey(s.TestID, s.ID, sequence, string(speaker), time.Now())
	url, err := s.objects.Put(ctx, key, "audio/wav", audio.WAVFromMuLaw(mulaw))
	if err != nil {
		log.Warn("bridge: audio store failed", "call", s.ID, "key", key, "error", err)
		return ""
	}
	return url
}

// checkGoodbye arms call teardown when the agent says the goodbye word. The
// hangup waits for the evaluator's farewell response to finish playing.
func (s *Session) checkGoodbye(text string) {
	if !containsWord(text, s.opts.GoodbyeWord) {
		return
	}
	s.mu.Lock()
	s.endAfterResponse = true
	s.mu.Unlock()
}

func containsWord(text, word string) bool {
	for _, f := range strings.Fields(strings.ToLower(text)) {
		if strings.Trim(f, ".,!?'\"") == word {
			return true
		}
	}
	return false
}

// flushWithError commits whatever is buffered, annotating the evaluator side
// with the upstream failure so the partial transcript survives.
func (s *Session) flushWithError(ctx context.Context, cause error) {
	s.commitTurn(ctx, s.agentBuf)
	s.commitTurn(ctx, s.evalBuf)
	if cause != nil {
		s.ledger.Append(SpeakerEvaluator, "[call aborted: "+cause.Error()+"]", "")
	}
}

func (s *Session) markFailed(reason string) {
	s.mu.Lock()
	s.state = StateFailed
	if s.failureMsg == "" {
		s.failureMsg = reason
	}
	s.mu.Unlock()
}

// beginFinalizing moves the session to Finalizing (unless already failed)
// and tears down both streams so the opposite loop unblocks.
func (s *Session) beginFinalizing() {
	s.mu.Lock()
	if s.state != StateFailed && !s.state.Terminal() {
		s.state = StateFinalizing
	}
	s.mu.Unlock()

	// Closing both ends wakes whichever loop is still blocked on I/O.
	if err := s.endpoint.Close(); err != nil {
		log.Debug("bridge: endpoint close", "call", s.ID, "error", err)
	}
	if err := s.stream.Close(); err != nil {
		log.Debug("bridge: stream close", "call", s.ID, "error", err)
	}
}

// finish flushes remaining buffers, runs the completion handoff exactly
// once, and settles the terminal state.
func (s *Session) finish(ctx context.Context, terminal State, errMsg string) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		if s.state == StateFailed {
			terminal = StateFailed
		}
		if errMsg == "" {
			errMsg = s.failureMsg
		}
		s.mu.Unlock()

		s.commitTurn(ctx, s.agentBuf)
		s.commitTurn(ctx, s.evalBuf)

		s.handoff.Run(ctx, s, errMsg)

		s.mu.Lock()
		s.state = terminal
		s.mu.Unlock()
		close(s.done)
	})
}
