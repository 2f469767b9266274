package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/fridgechef/internal/audio"
	"github.com/nupi-ai/fridgechef/internal/cache"
	"github.com/nupi-ai/fridgechef/internal/config"
	"github.com/nupi-ai/fridgechef/internal/elevenlabs"
	"github.com/nupi-ai/fridgechef/internal/naptts"
	"github.com/nupi-ai/fridgechef/internal/speech"
	"github.com/nupi-ai/fridgechef/internal/tts"
)

const napDialTimeout = 10 * time.Second

// voiceSynthesizer is what both ElevenLabs backends provide.
type voiceSynthesizer interface {
	elevenlabs.Synthesizer
	speech.VoiceLister
}

// newPlayer wires the configured engine, sink and voice catalog. It returns a
// nil player when speech is disabled. release frees engine resources.
func (a *app) newPlayer(ctx context.Context) (player *speech.Player, release func(), err error) {
	release = func() {}
	if a.cfg.SpeechEngine == config.EngineNone {
		a.logger.Info("speech disabled")
		return nil, release, nil
	}

	sink, err := a.newSink()
	if err != nil {
		return nil, release, err
	}

	var (
		engine speech.Engine
		voices speech.VoiceLister
	)
	switch a.cfg.SpeechEngine {
	case config.EngineNAP:
		dialCtx, cancel := context.WithTimeout(ctx, napDialTimeout)
		defer cancel()
		eng, conn, err := naptts.Dial(dialCtx, a.cfg.NAPAddr, sink, a.cfg.Locale, a.logger)
		if err != nil {
			return nil, release, err
		}
		release = func() { conn.Close() }
		engine = eng
		a.logger.Info("speaking through NAP adapter", "addr", a.cfg.NAPAddr)
	default:
		synth, voiceID := a.newSynthesizer()
		engine = tts.New(synth, sink, a.newCache(), tts.Settings{
			DefaultVoiceID:  voiceID,
			Model:           a.cfg.Model,
			Language:        language(a.cfg.Locale),
			Stability:       a.cfg.Stability,
			SimilarityBoost: a.cfg.SimilarityBoost,
		}, a.logger)
		voices = synth
	}

	catalog, err := speech.LoadCatalog(ctx, voices, language(a.cfg.Locale))
	if err != nil {
		a.logger.Warn("voice list unavailable, using engine default voice", "error", err)
		catalog = nil
	}

	player = speech.NewPlayer(engine, catalog, speech.Options{
		PreferredVoice: a.cfg.PreferredVoice,
		Locale:         a.cfg.Locale,
		Observer:       a.recorder,
	}, a.logger)
	if v, ok := player.Voice(); ok {
		a.logger.Info("voice selected", "voice", v.Name, "lang", v.Lang)
	}
	return player, release, nil
}

func (a *app) newSynthesizer() (voiceSynthesizer, string) {
	if a.cfg.SpeechEngine == config.EngineElevenLabs {
		a.logger.Info("ElevenLabs client initialized",
			"voice_id", a.cfg.VoiceID,
			"model", a.cfg.Model,
			"stability", logFloatPtrField(a.cfg.Stability),
			"similarity_boost", logFloatPtrField(a.cfg.SimilarityBoost),
		)
		return elevenlabs.NewClient(a.cfg.APIKey, a.cfg.RequestsPerSecond), a.cfg.VoiceID
	}
	a.logger.Info("using STUB synthesizer, audio is deterministic silence")
	return elevenlabs.NewStubSynthesizer(a.logger), elevenlabs.StubVoiceID
}

// newCache returns nil when caching is disabled or unavailable.
func (a *app) newCache() *cache.Cache {
	if a.cfg.CacheMaxSizeMB <= 0 || a.cfg.CacheDir == "" {
		return nil
	}
	c, err := cache.New(a.cfg.CacheDir, int64(a.cfg.CacheMaxSizeMB)*1024*1024, a.logger)
	if err != nil {
		a.logger.Warn("failed to initialize cache, continuing without", "error", err)
		return nil
	}
	a.logger.Info("audio cache initialized", "dir", a.cfg.CacheDir, "max_size_mb", a.cfg.CacheMaxSizeMB)
	return c
}

func (a *app) newSink() (audio.Sink, error) {
	switch {
	case a.cfg.PlayerCommand != "":
		return audio.NewCommand(a.cfg.PlayerCommand, a.logger)
	case a.cfg.WAVDir != "":
		return audio.NewWAVDir(a.cfg.WAVDir, a.logger)
	default:
		a.logger.Warn("no audio output configured, speech is discarded")
		return audio.Discard{}, nil
	}
}

// language maps a locale such as zh-TW to its ISO 639-1 code.
func language(locale string) string {
	lang, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(locale)), "-")
	if lang == "auto" {
		return ""
	}
	return lang
}

func newSpeakCmd(a *app) *cobra.Command {
	var entryID int64
	cmd := &cobra.Command{
		Use:   "speak [step...]",
		Short: "Read steps aloud one after another",
		Long: "Read the given steps aloud in order, each one starting after the previous finished.\n" +
			"With --history the steps of a saved recipe are read instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := args
			if entryID > 0 {
				store, err := a.openHistory()
				if err != nil {
					return err
				}
				if store == nil {
					return fmt.Errorf("history is disabled (set history_path)")
				}
				defer store.Close()
				e, err := store.Get(cmd.Context(), entryID)
				if err != nil {
					return err
				}
				steps = e.Recipe.Steps
			}
			if len(steps) == 0 {
				return fmt.Errorf("nothing to speak")
			}
			return a.speakAll(cmd.Context(), steps)
		},
	}
	cmd.Flags().Int64Var(&entryID, "history", 0, "id of a saved recipe to read")
	return cmd
}

func (a *app) speakAll(ctx context.Context, steps []string) error {
	player, closeEngine, err := a.newPlayer(ctx)
	if err != nil {
		return err
	}
	defer closeEngine()
	if player == nil {
		return fmt.Errorf("speech is disabled (speech_engine=%s)", config.EngineNone)
	}
	pb := player.PlayAll(ctx, steps)
	err = pb.Wait()
	a.logger.Info("playback finished", "spoken", pb.Spoken(), "of", len(steps))
	return err
}

func newVoicesCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices the speech engine offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.SpeechEngine == config.EngineNone || a.cfg.SpeechEngine == config.EngineNAP {
				return fmt.Errorf("speech engine %q cannot list voices", a.cfg.SpeechEngine)
			}
			synth, _ := a.newSynthesizer()
			prefix := language(a.cfg.Locale)
			if all {
				prefix = ""
			}
			catalog, err := speech.LoadCatalog(cmd.Context(), synth, prefix)
			if err != nil {
				return err
			}
			preferred, _ := speech.NewPlayer(noopEngine{}, catalog, speech.Options{
				PreferredVoice: a.cfg.PreferredVoice,
				Locale:         a.cfg.Locale,
			}, a.logger).Voice()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLANG\tSELECTED")
			for _, v := range catalog.Voices() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Lang, strconv.FormatBool(v.ID == preferred.ID))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include voices of every language")
	return cmd
}

// noopEngine lets the voices command reuse the player's voice selection.
type noopEngine struct{}

func (noopEngine) Speak(context.Context, speech.Utterance) error { return nil }
