package weights

import "errors"

// ErrInsufficientDDR is returned by Stage when the model's serialized size
// exceeds the target region's capacity.
var ErrInsufficientDDR = errors.New("weights: insufficient DDR for model")

// Region is the subset of a Memory Manager reservation the stager needs: a
// byte-addressable view backed by the DDR region, plus its base physical
// address (used to compute per-layer absolute addresses).
type Region interface {
	// Bytes returns the writable backing slice for the whole region.
	Bytes() []byte
	// PhysAddr returns the physical base address of the region.
	PhysAddr() uint64
}

// layerSerializedSize returns the number of bytes layer l occupies when
// staged, in the canonical write order.
func layerSerializedSize(l LayerWeights) uint64 {
	size := uint64(len(l.Q.Packed)) + uint64(len(l.K.Packed)) + uint64(len(l.V.Packed)) + uint64(len(l.O.Packed))
	size += uint64(len(l.FFNUp.Packed)) + uint64(len(l.FFNDown.Packed))
	size += uint64(len(l.LN1W)) * 2
	size += uint64(len(l.LN1B)) * 2
	size += uint64(len(l.LN2W)) * 2
	size += uint64(len(l.LN2B)) * 2
	return size
}

// RequiredDDR computes the total number of bytes needed to stage m,
// following the canonical write order: token embeddings,
// position embeddings, each layer in order, then lm_head.
func RequiredDDR(m *ModelWeights) uint64 {
	var total uint64
	total += uint64(len(m.TokenEmbeddings)) * 2
	total += uint64(len(m.PositionEmbeddings)) * 2
	for _, l := range m.Layers {
		total += layerSerializedSize(l)
	}
	total += uint64(len(m.LMHead)) * 2
	return total
}

// LayerOffsets holds the region's physical base address and, for each
// layer, the byte offset relative to that base at which the layer's data
// begins. No end offset past the last layer is kept.
type LayerOffsets struct {
	base    uint64
	offsets []uint64
}

// LayerAddress returns the physical base address of layer i.
func (lo LayerOffsets) LayerAddress(i int) uint64 {
	return lo.base + lo.offsets[i]
}

// Stage writes m into region in the deterministic canonical order:
// token_embeddings, position_embeddings, each layer's six quantized
// blocks followed by its four layer-norm vectors, then lm_head. It returns
// ErrInsufficientDDR without writing anything if the model does not fit.
func Stage(m *ModelWeights, region Region) (LayerOffsets, error) {
	required := RequiredDDR(m)
	buf := region.Bytes()
	if required > uint64(len(buf)) {
		return LayerOffsets{}, ErrInsufficientDDR
	}

	var cursor uint64

	writeF16 := func(vals []float32) {
		enc := EncodeFloat16Slice(vals)
		copy(buf[cursor:], enc)
		cursor += uint64(len(enc))
	}
	writeBlock := func(b Int4Block) {
		copy(buf[cursor:], b.Packed)
		cursor += uint64(len(b.Packed))
	}

	writeF16(m.TokenEmbeddings)
	writeF16(m.PositionEmbeddings)

	offsets := make([]uint64, len(m.Layers))
	for i, l := range m.Layers {
		offsets[i] = cursor
		writeBlock(l.Q)
		writeBlock(l.K)
		writeBlock(l.V)
		writeBlock(l.O)
		writeBlock(l.FFNUp)
		writeBlock(l.FFNDown)
		writeF16(l.LN1W)
		writeF16(l.LN1B)
		writeF16(l.LN2W)
		writeF16(l.LN2B)
	}

	writeF16(m.LMHead)

	return LayerOffsets{base: region.PhysAddr(), offsets: offsets}, nil
}
