package weights

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
)

// Magic is the expected first four bytes of a weight container, read as a
// little-endian u32 ("WTNT").
const Magic uint32 = 0x57544E54

const headerSize = 36 // 9 x u32 fields, no padding

// ErrBadContainer indicates a malformed container: bad magic or a size
// computation that would overflow.
var ErrBadContainer = errors.New("weights: bad container")

// ErrTruncated indicates the container ended before all declared data was
// read.
var ErrTruncated = errors.New("weights: truncated container")

// reader is a bounds-checked cursor over an in-memory container buffer.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return ErrTruncated
	}
	return nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) i8() (int8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *reader) f32() (float32, error) {
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// safeMul multiplies two uint64 values, returning ErrBadContainer on
// overflow rather than silently wrapping.
func safeMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/a != b {
		return 0, ErrBadContainer
	}
	return p, nil
}

func (r *reader) parseInt4Block(expectedWeights uint64) (Int4Block, error) {
	scale, err := r.f32()
	if err != nil {
		return Int4Block{}, err
	}
	zp, err := r.i8()
	if err != nil {
		return Int4Block{}, err
	}
	byteLen, err := r.u32()
	if err != nil {
		return Int4Block{}, err
	}
	packed, err := r.bytes(int(byteLen))
	if err != nil {
		return Int4Block{}, err
	}

	buf := make([]byte, len(packed))
	copy(buf, packed)

	return Int4Block{
		Scale:      scale,
		ZeroPoint:  zp,
		NumWeights: expectedWeights,
		Packed:     buf,
	}, nil
}

func (r *reader) parseF16Vec(n uint64) ([]float32, error) {
	nb, err := safeMul(n, 2)
	if err != nil {
		return nil, err
	}
	b, err := r.bytes(int(nb))
	if err != nil {
		return nil, err
	}
	return DecodeFloat16Slice(b), nil
}

// Parse parses a complete weight container from an in-memory buffer.
func Parse(data []byte) (*ModelWeights, []Checksum, error) {
	r := &reader{data: data}

	// The magic is checked before the rest of the header is required, so
	// a wrong-format file reports ErrBadContainer even when it is
	// shorter than a full header.
	if err := r.need(4); err != nil {
		return nil, nil, ErrTruncated
	}
	magic, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	if magic != Magic {
		return nil, nil, ErrBadContainer
	}

	if err := r.need(headerSize - 4); err != nil {
		return nil, nil, ErrTruncated
	}

	if _, err := r.u32(); err != nil { // version, unused
		return nil, nil, err
	}

	numLayers, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	hiddenSize, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	numHeads, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	vocabSize, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	maxSeqLen, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	intermediateSize, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	checksumTrailerOffset, err := r.u32()
	if err != nil {
		return nil, nil, err
	}

	cfg := Config{
		NumLayers:        numLayers,
		HiddenSize:       hiddenSize,
		NumHeads:         numHeads,
		VocabSize:        vocabSize,
		MaxSeqLen:        maxSeqLen,
		IntermediateSize: intermediateSize,
	}

	embedCount, err := safeMul(uint64(vocabSize), uint64(hiddenSize))
	if err != nil {
		return nil, nil, err
	}
	tokenEmbeddings, err := r.parseF16Vec(embedCount)
	if err != nil {
		return nil, nil, err
	}

	posCount, err := safeMul(uint64(maxSeqLen), uint64(hiddenSize))
	if err != nil {
		return nil, nil, err
	}
	positionEmbeddings, err := r.parseF16Vec(posCount)
	if err != nil {
		return nil, nil, err
	}

	hiddenSq, err := safeMul(uint64(hiddenSize), uint64(hiddenSize))
	if err != nil {
		return nil, nil, err
	}
	upCount, err := safeMul(uint64(hiddenSize), uint64(intermediateSize))
	if err != nil {
		return nil, nil, err
	}
	downCount, err := safeMul(uint64(intermediateSize), uint64(hiddenSize))
	if err != nil {
		return nil, nil, err
	}

	layers := make([]LayerWeights, numLayers)
	for i := range layers {
		q, err := r.parseInt4Block(hiddenSq)
		if err != nil {
			return nil, nil, err
		}
		k, err := r.parseInt4Block(hiddenSq)
		if err != nil {
			return nil, nil, err
		}
		v, err := r.parseInt4Block(hiddenSq)
		if err != nil {
			return nil, nil, err
		}
		o, err := r.parseInt4Block(hiddenSq)
		if err != nil {
			return nil, nil, err
		}
		ffnUp, err := r.parseInt4Block(upCount)
		if err != nil {
			return nil, nil, err
		}
		ffnDown, err := r.parseInt4Block(downCount)
		if err != nil {
			return nil, nil, err
		}

		ln1w, err := r.parseF16Vec(uint64(hiddenSize))
		if err != nil {
			return nil, nil, err
		}
		ln1b, err := r.parseF16Vec(uint64(hiddenSize))
		if err != nil {
			return nil, nil, err
		}
		ln2w, err := r.parseF16Vec(uint64(hiddenSize))
		if err != nil {
			return nil, nil, err
		}
		ln2b, err := r.parseF16Vec(uint64(hiddenSize))
		if err != nil {
			return nil, nil, err
		}

		layers[i] = LayerWeights{
			LayerIdx:         uint32(i),
			HiddenSize:       hiddenSize,
			IntermediateSize: intermediateSize,
			Q:                q,
			K:                k,
			V:                v,
			O:                o,
			FFNUp:            ffnUp,
			FFNDown:          ffnDown,
			LN1W:             ln1w,
			LN1B:             ln1b,
			LN2W:             ln2w,
			LN2B:             ln2b,
		}
	}

	lmHead, err := r.parseF16Vec(embedCount)
	if err != nil {
		return nil, nil, err
	}

	mw := &ModelWeights{
		Config:             cfg,
		TokenEmbeddings:    tokenEmbeddings,
		PositionEmbeddings: positionEmbeddings,
		Layers:             layers,
		LMHead:             lmHead,
	}

	var checksums []Checksum
	if checksumTrailerOffset != 0 {
		checksums, err = parseChecksums(data, int(checksumTrailerOffset))
		if err != nil {
			return nil, nil, err
		}
	}

	return mw, checksums, nil
}

func parseChecksums(data []byte, offset int) ([]Checksum, error) {
	if offset < 0 || offset > len(data) {
		return nil, ErrTruncated
	}
	r := &reader{data: data, off: offset}

	n, err := r.u32()
	if err != nil {
		return nil, err
	}

	out := make([]Checksum, 0, n)
	for i := uint32(0); i < n; i++ {
		nameLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		nameBytes, err := r.bytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		digest, err := r.bytes(32)
		if err != nil {
			return nil, err
		}

		var c Checksum
		c.Name = string(nameBytes)
		copy(c.SHA256[:], digest)
		out = append(out, c)
	}
	return out, nil
}

// VerifyChecksums recomputes the SHA-256 of each named container section
// and reports the names whose recorded digest does not match. It is not
// called anywhere by default: container checksums are surfaced via logging
// at load time but not enforced. Kept as the extension point a stricter
// policy would hook into.
func VerifyChecksums(sections map[string][]byte, checksums []Checksum) []string {
	var mismatches []string
	for _, c := range checksums {
		section, ok := sections[c.Name]
		if !ok {
			mismatches = append(mismatches, c.Name)
			continue
		}
		if sha256.Sum256(section) != c.SHA256 {
			mismatches = append(mismatches, c.Name)
		}
	}
	return mismatches
}
