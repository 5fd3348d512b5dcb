package voice

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/mii443/ncb-tts-r2/audio"
	"github.com/mii443/ncb-tts-r2/log"
)

// queueDepth bounds how many utterances can wait for playback. A busy
// chat producing audio faster than it plays drops the newest entries.
const queueDepth = 64

// Player streams queued audio to one guild's voice connection, strictly
// one utterance at a time.
type Player struct {
	guildID string
	logger  *log.Logger

	vc   *discordgo.VoiceConnection
	vcMu sync.RWMutex

	encoder *gopus.Encoder

	queue chan *audio.Handle
	skip  chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

func newPlayer(guildID string, vc *discordgo.VoiceConnection, logger *log.Logger) (*Player, error) {
	encoder, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Voip)
	if err != nil {
		return nil, err
	}

	p := &Player{
		guildID: guildID,
		logger:  logger,
		vc:      vc,
		encoder: encoder,
		queue:   make(chan *audio.Handle, queueDepth),
		skip:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// setConnection swaps the underlying voice connection after a reconnect.
func (p *Player) setConnection(vc *discordgo.VoiceConnection) {
	p.vcMu.Lock()
	p.vc = vc
	p.vcMu.Unlock()
}

func (p *Player) connection() *discordgo.VoiceConnection {
	p.vcMu.RLock()
	defer p.vcMu.RUnlock()
	return p.vc
}

// Enqueue appends an utterance to the playback queue. Full queue drops
// the utterance rather than blocking the caller.
func (p *Player) Enqueue(h *audio.Handle) {
	select {
	case p.queue <- h:
	default:
		p.logger.Warn("playback queue full for guild " + p.guildID + ", dropping utterance")
	}
}

// Skip aborts the currently playing utterance. No-op when idle.
func (p *Player) Skip() {
	select {
	case p.skip <- struct{}{}:
	default:
	}
}

// Stop shuts the playback loop down and discards the queue.
func (p *Player) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}

func (p *Player) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case h := <-p.queue:
			p.play(h)
		}
	}
}

func (p *Player) play(h *audio.Handle) {
	vc := p.connection()
	if vc == nil {
		return
	}

	// Drain a stale skip left over from a previous utterance.
	select {
	case <-p.skip:
	default:
	}

	if err := vc.Speaking(true); err != nil {
		p.logger.Error("could not set speaking state for guild "+p.guildID, err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			p.logger.Error("could not clear speaking state for guild "+p.guildID, err)
		}
	}()

	for {
		frame, ok := h.NextFrame()
		if !ok {
			return
		}

		packet, err := p.encoder.Encode(frame, audio.FrameSize, audio.FrameBytes)
		if err != nil {
			p.logger.Error("opus encode failed for guild "+p.guildID, err)
			return
		}

		select {
		case <-p.stop:
			return
		case <-p.skip:
			return
		case vc.OpusSend <- packet:
		}
	}
}
