package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/renameio/v2"
)

// WAVDir writes every utterance to its own numbered WAV file in a directory.
// Files appear atomically, so a watcher never sees a truncated one.
type WAVDir struct {
	dir  string
	seq  atomic.Uint64
	log  *slog.Logger
	last atomic.Pointer[string]
}

// NewWAVDir creates dir if needed.
func NewWAVDir(dir string, logger *slog.Logger) (*WAVDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create wav dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WAVDir{dir: dir, log: logger.With("component", "audio", "dir", dir)}, nil
}

// Play writes pcm as utterance-NNNN.wav.
func (w *WAVDir) Play(ctx context.Context, pcm io.Reader, format Format) error {
	data, err := io.ReadAll(pcm)
	if err != nil {
		return fmt.Errorf("audio: read pcm: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n := w.seq.Add(1)
	path := filepath.Join(w.dir, fmt.Sprintf("utterance-%04d.wav", n))

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("audio: create pending wav: %w", err)
	}
	defer pending.Cleanup()

	if err := WriteWAV(pending, data, format); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("audio: replace wav: %w", err)
	}
	w.last.Store(&path)
	w.log.Debug("wrote utterance", "path", path, "bytes", len(data))
	return nil
}

// Last returns the path of the most recent file, or "".
func (w *WAVDir) Last() string {
	if p := w.last.Load(); p != nil {
		return *p
	}
	return ""
}

// WriteWAV writes a canonical 44-byte RIFF header followed by pcm.
func WriteWAV(out io.Writer, pcm []byte, format Format) error {
	blockAlign := format.Channels * format.BitDepth / 8
	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.BytesPerSecond()),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(format.BitDepth),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("audio: write wav header: %w", err)
	}
	if _, err := out.Write(pcm); err != nil {
		return fmt.Errorf("audio: write wav data: %w", err)
	}
	return nil
}
