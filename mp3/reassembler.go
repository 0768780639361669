// Package mp3 reassembles an arbitrarily-chunked MPEG audio byte stream
// into complete, independently decodable frames. Chunk boundaries coming
// off an HTTP or websocket stream carry no relation to frame boundaries,
// so playback and per-frame delivery need this splitter in front.
package mp3

const headerSize = 4

// MPEG version field values (header bits 19-20).
const (
	versionMPEG25   = 0
	versionReserved = 1
	versionMPEG2    = 2
	versionMPEG1    = 3
)

// Layer field values (header bits 17-18).
const (
	layerReserved = 0
	layerIII      = 1
	layerII       = 2
	layerI        = 3
)

// Bitrates in kbit/s, indexed by [row][bitrate index]. Rows: V1 L1, V1 L2,
// V1 L3, V2/V2.5 L1, V2/V2.5 L2+L3. Index 0 ("free") and 15 are treated as
// invalid headers.
var bitrates = [5][16]int{
	{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
	{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0},
	{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0},
}

// Sample rates in Hz, indexed by [version][sample rate index]. Index 3 is
// reserved.
var sampleRates = map[byte][3]int{
	versionMPEG1:  {44100, 48000, 32000},
	versionMPEG2:  {22050, 24000, 16000},
	versionMPEG25: {11025, 12000, 8000},
}

// Reassembler accumulates raw byte chunks and carves complete frames out of
// them. Malformed input never fails: bytes that do not parse as a frame
// header are skipped one at a time until the next sync marker, which also
// steps over ID3 tags and other non-frame data.
type Reassembler struct {
	buf []byte
}

// Write absorbs one input chunk and returns every frame completed by it, in
// stream order. Each returned frame is an independent copy. Consumed bytes
// are discarded so the internal buffer only ever holds one partial frame.
func (r *Reassembler) Write(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	var frames [][]byte
	off := 0
	for off+headerSize <= len(r.buf) {
		n := frameLength(r.buf[off:])
		if n == 0 {
			// Not a valid header here; resynchronize on the next byte.
			off++
			continue
		}
		if off+n > len(r.buf) {
			break // frame started but not fully buffered yet
		}
		frame := make([]byte, n)
		copy(frame, r.buf[off:off+n])
		frames = append(frames, frame)
		off += n
	}

	r.buf = append(r.buf[:0], r.buf[off:]...)
	return frames
}

// Flush returns whatever bytes remain buffered at end of stream, which may
// be a truncated final frame, and resets the reassembler. Callers must
// tolerate this trailing partial unit.
func (r *Reassembler) Flush() []byte {
	tail := r.buf
	r.buf = nil
	return tail
}

// Frames pumps raw chunks from in through a Reassembler and yields complete
// frames. The returned channel closes after the input closes and any tail
// bytes have been flushed.
func Frames(in <-chan []byte) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		var r Reassembler
		for chunk := range in {
			for _, frame := range r.Write(chunk) {
				out <- frame
			}
		}
		if tail := r.Flush(); len(tail) > 0 {
			out <- tail
		}
	}()
	return out
}

// frameLength validates the 4-byte header at the start of b and returns the
// exact frame length in bytes, or 0 if b does not start with a decodable
// header. The length formula is the standard one: Layer I frames are
// (12*bitrate/samplerate + padding)*4 bytes, Layer II/III frames are
// 144*bitrate/samplerate + padding, halved for Layer III under MPEG2/2.5.
func frameLength(b []byte) int {
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return 0
	}
	version := (b[1] >> 3) & 0x03
	layer := (b[1] >> 1) & 0x03
	if version == versionReserved || layer == layerReserved {
		return 0
	}

	bitrateIdx := (b[2] >> 4) & 0x0F
	sampleIdx := (b[2] >> 2) & 0x03
	padding := int((b[2] >> 1) & 0x01)
	if bitrateIdx == 0 || bitrateIdx == 15 || sampleIdx == 3 {
		return 0
	}

	row := bitrateRow(version, layer)
	bitrate := bitrates[row][bitrateIdx] * 1000
	sampleRate := sampleRates[version][sampleIdx]

	switch layer {
	case layerI:
		return (12*bitrate/sampleRate + padding) * 4
	case layerII:
		return 144*bitrate/sampleRate + padding
	default: // layerIII
		if version == versionMPEG1 {
			return 144*bitrate/sampleRate + padding
		}
		return 72*bitrate/sampleRate + padding
	}
}

func bitrateRow(version, layer byte) int {
	if version == versionMPEG1 {
		switch layer {
		case layerI:
			return 0
		case layerII:
			return 1
		default:
			return 2
		}
	}
	if layer == layerI {
		return 3
	}
	return 4
}
