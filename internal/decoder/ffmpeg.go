package decoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"descale-qc/internal/logging"
)

// Info describes the first video stream of a file or an image sequence.
type Info struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Frames   int     `json:"frames"`
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration"`
	Codec    string  `json:"codec"`
}

// Decoder runs ffprobe and ffmpeg and tracks the ffmpeg processes it has
// started so they can be killed on shutdown.
type Decoder struct {
	processes map[*exec.Cmd]string
	processMu sync.Mutex
}

// New creates a Decoder.
func New() *Decoder {
	return &Decoder{processes: make(map[*exec.Cmd]string)}
}

// CheckFFmpeg reports whether ffmpeg and ffprobe are on the PATH.
func CheckFFmpeg() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecName     string `json:"codec_name"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		NbReadPackets string `json:"nb_read_packets"`
		NbFrames      string `json:"nb_frames"`
		Duration      string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe counts the frames of the first video stream. Packets are counted
// rather than read from the container header, which is often missing or
// wrong for matroska.
func (d *Decoder) Probe(ctx context.Context, path string) (*Info, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,nb_read_packets,nb_frames,duration:format=duration",
		"-print_format", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, errors.New("no video stream")
	}
	s := out.Streams[0]
	info := &Info{Width: s.Width, Height: s.Height, Codec: s.CodecName}

	if num, den, ok := strings.Cut(s.RFrameRate, "/"); ok {
		n, _ := strconv.ParseFloat(num, 64)
		d, _ := strconv.ParseFloat(den, 64)
		if d > 0 {
			info.FPS = n / d
		}
	}
	info.Frames, _ = strconv.Atoi(s.NbReadPackets)
	if info.Frames == 0 {
		info.Frames, _ = strconv.Atoi(s.NbFrames)
	}
	info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
	if info.Duration == 0 {
		info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}
	if info.Frames == 0 && info.FPS > 0 {
		info.Frames = int(info.Duration*info.FPS + 0.5)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", info.Width, info.Height)
	}
	return info, nil
}

// videoReader streams 16-bit gray frames out of ffmpeg.
type videoReader struct {
	d      *Decoder
	path   string
	info   Info
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer
	buf    []byte
	next   int
}

// openVideo starts ffmpeg. A non-zero width and height make ffmpeg scale
// the frames, which is how thumbnails for offset search are produced.
func (d *Decoder) openVideo(ctx context.Context, path string, info *Info, width, height int) (*videoReader, error) {
	r := &videoReader{d: d, path: path, info: *info}
	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:v:0",
	}
	if width > 0 && height > 0 && (width != info.Width || height != info.Height) {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d:flags=area", width, height))
		r.info.Width, r.info.Height = width, height
	}
	args = append(args, "-f", "rawvideo", "-pix_fmt", "gray16le", "-")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	d.processMu.Lock()
	d.processes[cmd] = path
	d.processMu.Unlock()

	r.cmd = cmd
	r.stdout = stdout
	r.reader = bufio.NewReaderSize(stdout, 1<<20)
	r.buf = make([]byte, r.info.Width*r.info.Height*2)
	logging.Debug("Started ffmpeg for %s (%dx%d, %d frames)", path, r.info.Width, r.info.Height, r.info.Frames)
	return r, nil
}

func (r *videoReader) Info() Info { return r.info }

func (r *videoReader) Next(ctx context.Context) (*Plane, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r.reader, r.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if r.next < r.info.Frames {
				return nil, fmt.Errorf("%s: ffmpeg ended after %d of %d frames: %s",
					r.path, r.next, r.info.Frames, strings.TrimSpace(r.stderr.String()))
			}
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%s: read frame %d: %w", r.path, r.next, err)
	}
	r.next++
	return PlaneFromGray16LE(r.buf, r.info.Width, r.info.Height), nil
}

func (r *videoReader) Close() error {
	r.d.processMu.Lock()
	delete(r.d.processes, r.cmd)
	r.d.processMu.Unlock()

	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	// Killed on purpose: the exit status carries no information.
	_ = r.cmd.Wait()
	return nil
}

// Cleanup kills every ffmpeg process still running.
func (d *Decoder) Cleanup() {
	d.processMu.Lock()
	defer d.processMu.Unlock()

	for cmd, path := range d.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process for: %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process for %s: %v", path, err)
			}
		}
	}
}
