package weights

// Config carries the model geometry parsed from the container header.
type Config struct {
	NumLayers         uint32
	HiddenSize        uint32
	NumHeads          uint32
	VocabSize         uint32
	MaxSeqLen         uint32
	IntermediateSize  uint32
}

// LayerWeights holds one transformer layer's quantized attention/FFN
// projections and its layer-norm vectors.
type LayerWeights struct {
	LayerIdx         uint32
	HiddenSize       uint32
	IntermediateSize uint32

	Q, K, V, O     Int4Block
	FFNUp, FFNDown Int4Block

	LN1W, LN1B []float32
	LN2W, LN2B []float32
}

// ModelWeights is the fully parsed in-memory model.
type ModelWeights struct {
	Config Config

	TokenEmbeddings    []float32 // length VocabSize*HiddenSize
	PositionEmbeddings []float32 // length MaxSeqLen*HiddenSize
	Layers             []LayerWeights
	LMHead             []float32 // length VocabSize*HiddenSize
}

// Checksum is one record from the container's optional checksum trailer.
type Checksum struct {
	Name   string
	SHA256 [32]byte
}
