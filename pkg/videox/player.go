package videox

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
)

var ErrNoVideoFile = errors.New("Please select a valid video file")
var ErrVideoEnded = errors.New("Video has ended")

// Player plays a video in real time.
// A new Player is paused. While playing, the current frame advances at the video's frame rate,
// regardless of whether anybody is looking at it. Consumers always see the most recent frame.
type Player struct {
	Log           logs.Log
	Filename      string
	Width         int // Size of decoded frames, if known
	Height        int
	frameInterval time.Duration

	decodeLock sync.Mutex // Guards reader and nextIndex
	reader     FrameReader
	nextIndex  int

	currentLock sync.Mutex
	current     *Frame

	paused    atomic.Bool
	ended     atomic.Bool
	closeOnce sync.Once
	closing   chan bool
	closed    chan bool
}

// OpenPlayer probes the video file, and prepares it for playback.
// The returned Player is paused.
func OpenPlayer(logger logs.Log, filename string, maxHeight int) (*Player, error) {
	if filename == "" {
		return nil, ErrNoVideoFile
	}
	if st, err := os.Stat(filename); err != nil || st.IsDir() {
		return nil, ErrNoVideoFile
	}
	info, err := ProbeVideo(filename)
	if err != nil {
		return nil, err
	}
	reader, err := NewFFmpegReader(filename, info, maxHeight)
	if err != nil {
		return nil, err
	}
	logger.Infof("Opened %v (%v x %v, %.2f fps, %v), decoding at %v x %v", filename, info.Width, info.Height, info.FPS, info.Duration, reader.Width, reader.Height)
	p := NewPlayer(logger, reader, info.FPS)
	p.Filename = filename
	p.Width = reader.Width
	p.Height = reader.Height
	return p, nil
}

// NewPlayer creates a paused player that reads frames from reader, at the given rate
func NewPlayer(logger logs.Log, reader FrameReader, fps float64) *Player {
	if fps <= 0 {
		fps = DefaultFPS
	}
	p := &Player{
		Log:           logger,
		reader:        reader,
		frameInterval: time.Duration(float64(time.Second) / fps),
		closing:       make(chan bool),
		closed:        make(chan bool),
	}
	p.paused.Store(true)
	go p.run()
	return p
}

// Play starts or resumes playback.
// The first frame is decoded before Play returns, so CurrentFrame is never nil while playing.
func (p *Player) Play() error {
	if p.ended.Load() {
		return ErrVideoEnded
	}
	if p.CurrentFrame() == nil {
		p.advance()
		if p.ended.Load() {
			return ErrVideoEnded
		}
	}
	p.paused.Store(false)
	return nil
}

// Size returns the size of decoded frames
func (p *Player) Size() (width, height int) {
	return p.Width, p.Height
}

func (p *Player) Pause() {
	p.paused.Store(true)
}

func (p *Player) Paused() bool {
	return p.paused.Load()
}

func (p *Player) Ended() bool {
	return p.ended.Load()
}

// CurrentFrame returns the most recently decoded frame, or nil if playback has not started.
// Frames are never modified after they are published, so the caller may hold onto it.
func (p *Player) CurrentFrame() *Frame {
	p.currentLock.Lock()
	defer p.currentLock.Unlock()
	return p.current
}

// Close stops playback and releases the decoder
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)
		<-p.closed
		p.decodeLock.Lock()
		p.reader.Close()
		p.decodeLock.Unlock()
	})
}

func (p *Player) run() {
	ticker := time.NewTicker(p.frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closing:
			close(p.closed)
			return
		case <-ticker.C:
			if !p.paused.Load() && !p.ended.Load() {
				p.advance()
			}
		}
	}
}

// Decode the next frame and make it current
func (p *Player) advance() {
	p.decodeLock.Lock()
	defer p.decodeLock.Unlock()
	if p.ended.Load() {
		return
	}

	img, err := p.reader.NextFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			p.Log.Infof("Video ended after %v frames", p.nextIndex)
		} else {
			p.Log.Errorf("Error decoding frame %v: %v", p.nextIndex, err)
		}
		p.ended.Store(true)
		return
	}

	frame := &Frame{
		Index: p.nextIndex,
		PTS:   time.Duration(p.nextIndex) * p.frameInterval,
		Image: img,
	}
	p.nextIndex++

	p.currentLock.Lock()
	p.current = frame
	p.currentLock.Unlock()
}
