package live

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddyhq/studybuddy/internal/audio"
	"github.com/studybuddyhq/studybuddy/internal/genai"
	"github.com/studybuddyhq/studybuddy/internal/observability"
	"github.com/studybuddyhq/studybuddy/internal/playback"
	"github.com/studybuddyhq/studybuddy/internal/protocol"
	"github.com/studybuddyhq/studybuddy/internal/session"
)

// TutorInstruction is the persona handed to the realtime model.
const TutorInstruction = `You are 'Buddy', a friendly and patient English tutor for Bengali students.
Your primary goal is to help the student improve their English.

CRITICAL RULES:
1. If the student speaks or writes WRONG English (grammatical errors, wrong word choice, etc.), immediately point it out in a friendly way.
2. ALWAYS explain the correction in BENGALI so they understand why it was wrong.
3. Example response: "Your sentence was 'He go to school'. That's almost right! But it should be 'He goes to school'. কারণ He হলো Third Person Singular, তাই verb-এর সাথে s/es যোগ হয়।"
4. If they speak in Bengali, translate it to English and teach them.
5. Keep the conversation encouraging. Don't be too formal.`

const outboundSendTimeout = 600 * time.Millisecond

// Orchestrator drives one realtime tutoring session per websocket connection.
type Orchestrator struct {
	sessions      *session.Manager
	provider      genai.LiveProvider
	chat          genai.Client
	metrics       *observability.Metrics
	liveModel     string
	chatModel     string
	recordingsDir string
	firstAudioSLO time.Duration
}

func NewOrchestrator(
	sessions *session.Manager,
	provider genai.LiveProvider,
	chat genai.Client,
	metrics *observability.Metrics,
	liveModel string,
	chatModel string,
	recordingsDir string,
	firstAudioSLO time.Duration,
) *Orchestrator {
	return &Orchestrator{
		sessions:      sessions,
		provider:      provider,
		chat:          chat,
		metrics:       metrics,
		liveModel:     liveModel,
		chatModel:     chatModel,
		recordingsDir: recordingsDir,
		firstAudioSLO: firstAudioSLO,
	}
}

// RunConnection drives a session lifecycle for one websocket connection. It
// returns when the client disconnects, the student stops the session, or the
// upstream fails fatally.
func (o *Orchestrator) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	machine := NewMachine()
	transcript := NewTranscript()
	sched := playback.NewScheduler()

	_ = machine.Transition(StateConnecting)
	o.sendStatus(outbound, s.ID, machine.Current())

	connectStart := time.Now()
	liveSess, liveEvents, err := o.provider.StartSession(ctx, o.liveModel, TutorInstruction)
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("live", "connect_failed").Inc()
		o.send(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: s.ID,
			Code:      "upstream_unreachable",
			Source:    "live",
			Retryable: true,
			Detail:    err.Error(),
		})
		_ = machine.Transition(StateError)
		o.sendStatus(outbound, s.ID, machine.Current())
		return err
	}
	defer liveSess.Close()

	var (
		turnID        string
		turnStartedAt time.Time
		turnAudioSeen bool
		turnSources   []int
		outSeq        int
		textInFlight  atomic.Bool
		recording     []byte
	)
	defer func() {
		o.saveRecording(s.ID, recording)
	}()

	startTurnIfNeeded := func() {
		if turnID != "" {
			return
		}
		turnID = uuid.NewString()
		turnStartedAt = time.Now()
		turnAudioSeen = false
		_ = o.sessions.StartTurn(s.ID, turnID)
	}

	finishTurn := func() {
		user, assistant, ok := transcript.CommitTurn(time.Now())
		if ok {
			o.send(outbound, protocol.TurnCommitted{
				Type:          protocol.TypeTurnCommitted,
				SessionID:     s.ID,
				TurnID:        turnID,
				UserText:      user.Text,
				AssistantText: assistant.Text,
				TSMs:          time.Now().UnixMilli(),
			})
		}
		if !turnStartedAt.IsZero() {
			o.metrics.ObserveStage(observability.StageTurnTotal, time.Since(turnStartedAt))
		}
		for _, id := range turnSources {
			sched.Release(id)
		}
		turnSources = turnSources[:0]
		turnID = ""
		turnStartedAt = time.Time{}
		o.metrics.SessionEvents.WithLabelValues("turn_complete").Inc()
		_ = machine.Transition(StateListening)
		o.sendStatus(outbound, s.ID, machine.Current())
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case protocol.ClientAudioChunk:
				_ = o.sessions.Touch(s.ID)
				if textInFlight.Load() {
					// Voice and typed turns are mutually exclusive.
					continue
				}
				if err := liveSess.SendAudioChunk(ctx, m.PCM16Base64, m.SampleRate); err != nil {
					o.metrics.ProviderErrors.WithLabelValues("live", "send_audio_failed").Inc()
					o.send(outbound, protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: s.ID,
						Code:      "upstream_error",
						Source:    "live",
						Retryable: true,
						Detail:    err.Error(),
					})
				}

			case protocol.ClientText:
				_ = o.sessions.Touch(s.ID)
				if !textInFlight.CompareAndSwap(false, true) {
					continue
				}
				go func(text string) {
					defer textInFlight.Store(false)
					o.runTextTurn(ctx, s.ID, text, transcript, outbound)
				}(m.Text)

			case protocol.ClientControl:
				_ = o.sessions.Touch(s.ID)
				switch m.Action {
				case protocol.ActionStopVoice:
					o.metrics.SessionEvents.WithLabelValues("voice_stopped").Inc()
					_ = machine.Transition(StateIdle)
					o.sendStatus(outbound, s.ID, machine.Current())
					return nil
				case protocol.ActionStartVoice:
					o.sendStatus(outbound, s.ID, machine.Current())
				case protocol.ActionMicDenied:
					o.metrics.SessionEvents.WithLabelValues("mic_denied").Inc()
					o.send(outbound, protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: s.ID,
						Code:      "permission_denied",
						Source:    "client",
						Retryable: false,
						Detail:    "microphone permission refused",
					})
					_ = machine.Transition(StateIdle)
					o.sendStatus(outbound, s.ID, machine.Current())
					return nil
				}
			}

		case evt, ok := <-liveEvents:
			if !ok {
				o.metrics.ProviderErrors.WithLabelValues("live", "closed").Inc()
				o.send(outbound, protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: s.ID,
					Code:      "upstream_error",
					Source:    "live",
					Retryable: true,
					Detail:    "upstream session closed",
				})
				_ = machine.Transition(StateError)
				o.sendStatus(outbound, s.ID, machine.Current())
				return errors.New("upstream live session closed")
			}

			switch evt.Type {
			case genai.LiveEventReady:
				// Listening starts at the session-open acknowledgment, not
				// at dial time.
				o.metrics.ObserveStage(observability.StageVoiceConnect, time.Since(connectStart))
				if machine.Transition(StateListening) == nil {
					o.sendStatus(outbound, s.ID, machine.Current())
				}

			case genai.LiveEventInputTranscript:
				startTurnIfNeeded()
				transcript.AppendUserDelta(evt.Text)
				o.send(outbound, protocol.TranscriptDelta{
					Type:      protocol.TypeTranscriptDelta,
					SessionID: s.ID,
					TurnID:    turnID,
					Role:      "user",
					TextDelta: evt.Text,
				})

			case genai.LiveEventOutputTranscript:
				startTurnIfNeeded()
				transcript.AppendAssistantDelta(evt.Text)
				o.send(outbound, protocol.TranscriptDelta{
					Type:      protocol.TypeTranscriptDelta,
					SessionID: s.ID,
					TurnID:    turnID,
					Role:      "assistant",
					TextDelta: evt.Text,
				})

			case genai.LiveEventAudio:
				startTurnIfNeeded()
				pcm, err := audio.DecodeBase64(evt.AudioBase64)
				if err != nil {
					o.metrics.ProviderErrors.WithLabelValues("live", "bad_audio").Inc()
					continue
				}
				rate := evt.SampleRate
				if rate <= 0 {
					rate = audio.PlaybackRate
				}
				if !turnAudioSeen {
					turnAudioSeen = true
					if !turnStartedAt.IsZero() {
						firstAudio := time.Since(turnStartedAt)
						o.metrics.ObserveFirstAudioLatency(firstAudio)
						if o.firstAudioSLO > 0 && firstAudio > o.firstAudioSLO {
							o.metrics.SessionEvents.WithLabelValues("first_audio_slo_miss").Inc()
						}
					}
				}
				if o.recordingsDir != "" {
					recording = append(recording, pcm...)
				}
				offset, srcID := sched.Schedule(audio.Duration(len(pcm), rate))
				turnSources = append(turnSources, srcID)
				outSeq++
				if err := machine.Transition(StateSpeaking); err == nil {
					o.sendStatus(outbound, s.ID, machine.Current())
				}
				o.send(outbound, protocol.AssistantAudioChunk{
					Type:         protocol.TypeAssistantAudio,
					SessionID:    s.ID,
					TurnID:       turnID,
					Seq:          outSeq,
					PCM16Base64:  evt.AudioBase64,
					SampleRate:   rate,
					PlayAtOffset: offset.Milliseconds(),
				})

			case genai.LiveEventTurnComplete:
				finishTurn()

			case genai.LiveEventInterrupted:
				sched.Stop()
				_ = o.sessions.Interrupt(s.ID)
				o.metrics.SessionEvents.WithLabelValues("barge_in").Inc()
				o.send(outbound, protocol.PlaybackClear{
					Type:      protocol.TypePlaybackClear,
					SessionID: s.ID,
					Reason:    "barge_in",
				})
				turnSources = turnSources[:0]
				_ = machine.Transition(StateListening)
				o.sendStatus(outbound, s.ID, machine.Current())

			case genai.LiveEventError:
				o.metrics.ProviderErrors.WithLabelValues("live", evt.Code).Inc()
				o.send(outbound, protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: s.ID,
					Code:      evt.Code,
					Source:    "live",
					Retryable: evt.Retryable,
					Detail:    evt.Detail,
				})
				if !evt.Retryable {
					_ = machine.Transition(StateError)
					o.sendStatus(outbound, s.ID, machine.Current())
					return errors.New("fatal upstream error: " + evt.Code)
				}
			}
		}
	}
}

// runTextTurn handles the typed fallback: the student's text goes through the
// conversational model and the reply streams back as assistant deltas.
func (o *Orchestrator) runTextTurn(ctx context.Context, sessionID, text string, transcript *Transcript, outbound chan<- any) {
	turnID := uuid.NewString()
	o.send(outbound, protocol.TranscriptDelta{
		Type:      protocol.TypeTranscriptDelta,
		SessionID: sessionID,
		TurnID:    turnID,
		Role:      "user",
		TextDelta: text,
	})

	history := make([]genai.ChatTurn, 0)
	for _, turn := range transcript.Turns() {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		history = append(history, genai.ChatTurn{Role: role, Text: turn.Text})
	}

	reply, err := o.chat.StreamMessage(ctx, genai.ChatRequest{
		Model:             o.chatModel,
		SystemInstruction: TutorInstruction,
		History:           history,
		Message:           text,
	}, func(delta string) error {
		o.send(outbound, protocol.TranscriptDelta{
			Type:      protocol.TypeTranscriptDelta,
			SessionID: sessionID,
			TurnID:    turnID,
			Role:      "assistant",
			TextDelta: delta,
		})
		return nil
	})
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("chat", "stream_failed").Inc()
		o.send(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "chat_stream_failed",
			Source:    "chat",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}

	now := time.Now()
	transcript.AppendTurns(
		Turn{Role: "user", Text: text, At: now},
		Turn{Role: "assistant", Text: reply, At: now},
	)
	o.send(outbound, protocol.TurnCommitted{
		Type:          protocol.TypeTurnCommitted,
		SessionID:     sessionID,
		TurnID:        turnID,
		UserText:      text,
		AssistantText: reply,
		TSMs:          now.UnixMilli(),
	})
	o.metrics.SessionEvents.WithLabelValues("text_turn_complete").Inc()
}

// saveRecording writes the session's tutor audio to disk as a WAV file.
func (o *Orchestrator) saveRecording(sessionID string, pcm []byte) {
	if o.recordingsDir == "" || len(pcm) == 0 {
		return
	}
	if err := os.MkdirAll(o.recordingsDir, 0o755); err != nil {
		return
	}
	path := filepath.Join(o.recordingsDir, sessionID+".wav")
	_ = audio.WriteWAVFile(path, pcm, audio.PlaybackRate)
}

func (o *Orchestrator) sendStatus(outbound chan<- any, sessionID string, state State) {
	o.send(outbound, protocol.StatusUpdate{
		Type:      protocol.TypeStatusUpdate,
		SessionID: sessionID,
		State:     string(state),
		Label:     Label(state),
	})
}

// send delivers critical control events with a bounded wait and drops burst
// traffic (transcript and audio chunks) when the client cannot keep up.
func (o *Orchestrator) send(outbound chan<- any, msg any) {
	msgType, critical := outboundMessageMeta(msg)

	if critical {
		timer := time.NewTimer(outboundSendTimeout)
		defer timer.Stop()
		select {
		case outbound <- msg:
			o.metrics.WSMessages.WithLabelValues("out", msgType).Inc()
		case <-timer.C:
			o.metrics.SessionEvents.WithLabelValues("outbound_drop").Inc()
		}
		return
	}

	select {
	case outbound <- msg:
		o.metrics.WSMessages.WithLabelValues("out", msgType).Inc()
	default:
		o.metrics.SessionEvents.WithLabelValues("outbound_drop").Inc()
	}
}

func outboundMessageMeta(msg any) (string, bool) {
	switch msg.(type) {
	case protocol.TranscriptDelta:
		return string(protocol.TypeTranscriptDelta), false
	case protocol.AssistantAudioChunk:
		return string(protocol.TypeAssistantAudio), false
	case protocol.TurnCommitted:
		return string(protocol.TypeTurnCommitted), true
	case protocol.PlaybackClear:
		return string(protocol.TypePlaybackClear), true
	case protocol.StatusUpdate:
		return string(protocol.TypeStatusUpdate), true
	case protocol.ErrorEvent:
		return string(protocol.TypeErrorEvent), true
	default:
		return "unknown", false
	}
}
