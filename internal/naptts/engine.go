// Package naptts speaks utterances through a remote nupi text-to-speech
// adapter over gRPC (NAP TextToSpeechService).
package naptts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	napv1 "github.com/nupi-ai/nupi/api/nap/v1"

	"github.com/nupi-ai/fridgechef/internal/audio"
	"github.com/nupi-ai/fridgechef/internal/speech"
)

// LanguageMetadataKey carries the ISO 639-1 language code to the adapter.
const LanguageMetadataKey = "nupi.lang.iso1"

var (
	// ErrInterrupted is returned when the adapter reports an interrupted synthesis.
	ErrInterrupted = errors.New("naptts: synthesis interrupted")
	// ErrIncomplete is returned when the stream ends without a FINISHED status.
	ErrIncomplete = errors.New("naptts: stream ended before synthesis finished")
)

// Engine implements speech.Engine on top of a TextToSpeechService client.
type Engine struct {
	client    napv1.TextToSpeechServiceClient
	sink      audio.Sink
	sessionID string
	language  string
	log       *slog.Logger
}

var _ speech.Engine = (*Engine)(nil)

// New wraps an existing client. locale is reduced to its language code.
func New(client napv1.TextToSpeechServiceClient, sink audio.Sink, locale string, logger *slog.Logger) *Engine {
	if client == nil {
		panic("naptts: client must not be nil")
	}
	if sink == nil {
		sink = audio.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := uuid.NewString()
	return &Engine{
		client:    client,
		sink:      sink,
		sessionID: sessionID,
		language:  isoLanguage(locale),
		log:       logger.With("component", "naptts", "session_id", sessionID),
	}
}

// Dial connects to the adapter at addr and verifies it reports SERVING.
// The caller owns the returned connection. opts are appended after the
// default insecure transport credentials.
func Dial(ctx context.Context, addr string, sink audio.Sink, locale string, logger *slog.Logger, opts ...grpc.DialOption) (*Engine, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("naptts: dial %s: %w", addr, err)
	}
	if err := CheckHealth(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return New(napv1.NewTextToSpeechServiceClient(conn), sink, locale, logger), conn, nil
}

// CheckHealth asks the adapter's health service about the TTS service.
func CheckHealth(ctx context.Context, conn grpc.ClientConnInterface) error {
	resp, err := healthgrpc.NewHealthClient(conn).Check(ctx, &healthgrpc.HealthCheckRequest{
		Service: napv1.TextToSpeechService_ServiceDesc.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("naptts: health check: %w", err)
	}
	if resp.GetStatus() != healthgrpc.HealthCheckResponse_SERVING {
		return fmt.Errorf("naptts: adapter not serving (status %s)", resp.GetStatus())
	}
	return nil
}

// Speak streams the synthesis of u into the sink. It returns once the adapter
// reported FINISHED and the sink has played everything.
func (e *Engine) Speak(ctx context.Context, u speech.Utterance) error {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return nil
	}
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamID := uuid.NewString()
	log := e.log.With("stream_id", streamID, "step", u.Index)

	req := &napv1.StreamSynthesisRequest{
		SessionId: e.sessionID,
		StreamId:  streamID,
		Text:      text,
	}
	if e.language != "" {
		req.Metadata = map[string]string{LanguageMetadataKey: e.language}
	}

	stream, err := e.client.StreamSynthesis(streamCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("naptts: start synthesis: %w", err)
	}

	pr, pw := io.Pipe()
	recvErr := make(chan error, 1)
	go func() {
		err := receive(stream, pw)
		pw.CloseWithError(err)
		recvErr <- err
	}()

	err = e.sink.Play(streamCtx, pr, audio.PCM16Mono16k)
	if err == nil {
		// The sink may stop reading early; the utterance still ends only
		// when the adapter reports a terminal status.
		_, err = io.Copy(io.Discard, pr)
	}
	cancel()
	pr.Close()
	if recv := <-recvErr; err == nil {
		err = recv
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.Warn("synthesis failed", "error", err)
		return err
	}
	log.Debug("utterance played")
	return nil
}

// receive copies audio chunks to w until the adapter reports a terminal status.
func receive(stream napv1.TextToSpeechService_StreamSynthesisClient, w io.Writer) error {
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return ErrIncomplete
		}
		if err != nil {
			return fmt.Errorf("naptts: receive: %w", err)
		}
		if chunk := resp.GetChunk(); chunk != nil && len(chunk.GetData()) > 0 {
			if _, err := w.Write(chunk.GetData()); err != nil {
				return err
			}
		}
		switch resp.GetStatus() {
		case napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED:
			return nil
		case napv1.SynthesisStatus_SYNTHESIS_STATUS_ERROR:
			return fmt.Errorf("naptts: adapter error: %s", resp.GetErrorMessage())
		case napv1.SynthesisStatus_SYNTHESIS_STATUS_INTERRUPTED:
			return ErrInterrupted
		}
	}
}

// isoLanguage reduces a locale such as "zh-TW" to "zh". "auto" and empty
// leave language detection to the adapter.
func isoLanguage(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" || locale == "auto" {
		return ""
	}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}
	return locale
}
