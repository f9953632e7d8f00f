package voice

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
)

// Synthesis service output format: 16kHz mono s16le PCM.
const playbackSampleRate = 16000

// PulsePlayer renders synthesized PCM through the local audio server.
type PulsePlayer struct{}

// Play streams one PCM payload to completion. The stream is drained before
// returning so completion maps to audible playback end, not dispatch.
func (PulsePlayer) Play(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	samples := pcmSamples(audio)
	if len(samples) == 0 {
		return fmt.Errorf("audio payload too short to play")
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("drillcoach"),
		pulse.ClientApplicationIconName("camera-video"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(playbackSampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackMediaName("drillcoach report"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play report stream: %w", err)
	}

	return nil
}

// pcmSamples converts little-endian s16 bytes to samples; an odd trailing
// byte is dropped.
func pcmSamples(audio []byte) []int16 {
	samples := make([]int16, 0, len(audio)/2)
	for i := 0; i+1 < len(audio); i += 2 {
		samples = append(samples, int16(uint16(audio[i])|uint16(audio[i+1])<<8))
	}
	return samples
}
