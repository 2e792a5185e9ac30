package speech

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

var (
	errUnknownFormat = errors.New("unrecognized audio format")
	errBadWAV        = errors.New("malformed WAV")
)

// pcmFormat describes signed 16-bit little-endian PCM.
type pcmFormat struct {
	rate     int
	channels int
}

// decodeAudio sniffs WAV or MP3 and returns a reader of 16-bit stereo PCM
// at the device sample rate. The source is consumed lazily, so it works on
// network streams.
func decodeAudio(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 32*1024)
	head, err := br.Peek(12)
	if len(head) < 4 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading audio header: %w", err)
	}

	switch {
	case isWAV(head):
		format, data, err := readWAV(br)
		if err != nil {
			return nil, err
		}
		return newConverter(data, format), nil
	case isMP3(head):
		dec, err := mp3.NewDecoder(br)
		if err != nil {
			return nil, fmt.Errorf("decoding mp3: %w", err)
		}
		// go-mp3 always emits 16-bit stereo.
		return newConverter(dec, pcmFormat{rate: dec.SampleRate(), channels: 2}), nil
	default:
		return nil, errUnknownFormat
	}
}

func isWAV(head []byte) bool {
	return len(head) >= 12 && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WAVE"
}

// isMP3 accepts an ID3 tag or a bare MPEG frame sync.
func isMP3(head []byte) bool {
	if len(head) >= 3 && string(head[0:3]) == "ID3" {
		return true
	}
	return len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0
}

// readWAV walks the RIFF chunks up to "data" and returns the PCM format and
// a reader positioned on the samples. Only 16-bit integer PCM is supported.
func readWAV(r io.Reader) (pcmFormat, io.Reader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return pcmFormat{}, nil, fmt.Errorf("%w: %v", errBadWAV, err)
	}

	var format pcmFormat
	var haveFormat bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return pcmFormat{}, nil, fmt.Errorf("%w: no data chunk", errBadWAV)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return pcmFormat{}, nil, fmt.Errorf("%w: short fmt chunk", errBadWAV)
			}
			buf := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, buf); err != nil {
				return pcmFormat{}, nil, fmt.Errorf("%w: %v", errBadWAV, err)
			}
			audioFormat := binary.LittleEndian.Uint16(buf[0:2])
			format.channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			format.rate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bits := binary.LittleEndian.Uint16(buf[14:16])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE; we trust the bit depth.
			if (audioFormat != 1 && audioFormat != 0xFFFE) || bits != BitDepth {
				return pcmFormat{}, nil, fmt.Errorf("%w: format %d with %d bits", errBadWAV, audioFormat, bits)
			}
			if format.channels < 1 || format.rate <= 0 {
				return pcmFormat{}, nil, fmt.Errorf("%w: %d channels at %d Hz", errBadWAV, format.channels, format.rate)
			}
			haveFormat = true

		case "data":
			if !haveFormat {
				return pcmFormat{}, nil, fmt.Errorf("%w: data before fmt", errBadWAV)
			}
			// Streaming encoders write 0 or 0xFFFFFFFF when the length
			// is unknown.
			if size == 0 || size == 0xFFFFFFFF {
				return format, r, nil
			}
			return format, io.LimitReader(r, size), nil

		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return pcmFormat{}, nil, fmt.Errorf("%w: %v", errBadWAV, err)
			}
		}
	}
}

// converter turns 16-bit PCM of any rate and channel count into stereo at
// SampleRate, resampling by linear interpolation.
type converter struct {
	src      *bufio.Reader
	channels int
	step     float64 // input frames per output frame

	a, b    [2]int16 // frames around the current position
	t       float64  // position between a and b, in [0, 1)
	started bool
	eof     bool // source exhausted, b is the last frame
	done    bool
	frame   []byte
	pending []byte
}

func newConverter(src io.Reader, in pcmFormat) io.Reader {
	if in.rate == SampleRate && in.channels == ChannelCount {
		return src
	}
	return &converter{
		src:      bufio.NewReaderSize(src, 16*1024),
		channels: in.channels,
		step:     float64(in.rate) / float64(SampleRate),
		frame:    make([]byte, 2*in.channels),
	}
}

func (c *converter) Read(p []byte) (int, error) {
	for len(c.pending) < len(p) && !c.done {
		l, r, ok := c.next()
		if !ok {
			c.done = true
			break
		}
		c.pending = append(c.pending, byte(l), byte(uint16(l)>>8), byte(r), byte(uint16(r)>>8))
	}
	if len(c.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// next produces one output frame.
func (c *converter) next() (int16, int16, bool) {
	if !c.started {
		c.started = true
		var ok bool
		if c.a, ok = c.readFrame(); !ok {
			return 0, 0, false
		}
		if c.b, ok = c.readFrame(); !ok {
			c.b, c.eof = c.a, true
		}
	}
	if c.done {
		return 0, 0, false
	}

	l := lerp(c.a[0], c.b[0], c.t)
	r := lerp(c.a[1], c.b[1], c.t)

	c.t += c.step
	for c.t >= 1 {
		c.t--
		if c.eof {
			c.done = true
			break
		}
		c.a = c.b
		f, ok := c.readFrame()
		if !ok {
			// Hold the last frame until the position moves past it.
			c.eof = true
			continue
		}
		c.b = f
	}
	return l, r, true
}

func (c *converter) readFrame() ([2]int16, bool) {
	if _, err := io.ReadFull(c.src, c.frame); err != nil {
		return [2]int16{}, false
	}
	left := int16(binary.LittleEndian.Uint16(c.frame[0:2]))
	right := left
	if c.channels > 1 {
		right = int16(binary.LittleEndian.Uint16(c.frame[2:4]))
	}
	return [2]int16{left, right}, true
}

func lerp(a, b int16, t float64) int16 {
	return int16(float64(a) + (float64(b)-float64(a))*t)
}
