package models

import (
	"fmt"
	"math"
)

// DatasetType identifies the imaging modality a benchmark models
type DatasetType string

const (
	DatasetCryoET     DatasetType = "cryoet"      // Cryo-electron tomography
	DatasetLightSheet DatasetType = "light_sheet" // Light sheet microscopy
	DatasetConfocal   DatasetType = "confocal"    // Confocal microscopy
	DatasetTwoPhoton  DatasetType = "two_photon"  // Two-photon microscopy
	DatasetWidefield  DatasetType = "widefield"   // Widefield microscopy
	DatasetSEM        DatasetType = "sem"         // Scanning electron microscopy
	DatasetSTED       DatasetType = "sted"        // STED super-resolution
	DatasetPALMSTORM  DatasetType = "palm_storm"  // PALM/STORM localization
	DatasetSynthetic  DatasetType = "synthetic"   // Synthetic test data
	DatasetCustom     DatasetType = "custom"      // User-defined custom data
)

// CompressionProfile selects a codec/chunking trade-off
type CompressionProfile string

const (
	ProfileArchival CompressionProfile = "archival" // Maximum compression, slower
	ProfileBalanced CompressionProfile = "balanced" // Good compression, reasonable speed
	ProfileFast     CompressionProfile = "fast"     // Light compression, maximum speed
	ProfileLossless CompressionProfile = "lossless" // Guaranteed lossless
	ProfileAnalysis CompressionProfile = "analysis" // Optimized for analysis workflows
)

var validDatasetTypes = map[DatasetType]bool{
	DatasetCryoET:     true,
	DatasetLightSheet: true,
	DatasetConfocal:   true,
	DatasetTwoPhoton:  true,
	DatasetWidefield:  true,
	DatasetSEM:        true,
	DatasetSTED:       true,
	DatasetPALMSTORM:  true,
	DatasetSynthetic:  true,
	DatasetCustom:     true,
}

// profileChunkMultiplier scales the target chunk size per profile
var profileChunkMultiplier = map[CompressionProfile]float64{
	ProfileArchival: 2.0, // Larger chunks for better compression
	ProfileBalanced: 1.0,
	ProfileFast:     0.5, // Smaller chunks for faster access
	ProfileLossless: 1.5,
	ProfileAnalysis: 1.0,
}

// dtypeSizes maps element type names to their size in bytes
var dtypeSizes = map[string]int{
	"float32": 4,
	"uint16":  2,
	"uint8":   1,
}

const (
	defaultNumRuns = 2
	maxNumRuns     = 10
	// maxShapeBytes bounds a single synthetic volume to keep one execution
	// within the per-job timeout on typical hardware.
	maxShapeBytes = 4 << 30
)

// BenchmarkSpec is the immutable input describing what to evaluate. It is
// validated once at the API boundary and never re-checked downstream.
type BenchmarkSpec struct {
	Name               string             `json:"name,omitempty" yaml:"name,omitempty"`
	DatasetType        DatasetType        `json:"dataset_type" yaml:"dataset_type"`
	Shape              []int              `json:"shape" yaml:"shape"`
	Dtype              string             `json:"dtype,omitempty" yaml:"dtype,omitempty"`
	VoxelSize          []float64          `json:"voxel_size,omitempty" yaml:"voxel_size,omitempty"`
	CompressionProfile CompressionProfile `json:"compression_profile,omitempty" yaml:"compression_profile,omitempty"`
	CustomCodecs       []string           `json:"custom_codecs,omitempty" yaml:"custom_codecs,omitempty"`
	ChunkSizes         [][]int            `json:"chunk_sizes,omitempty" yaml:"chunk_sizes,omitempty"`
	NumRuns            int                `json:"num_runs,omitempty" yaml:"num_runs,omitempty"`
	CallbackURL        string             `json:"callback_url,omitempty" yaml:"callback_url,omitempty"`
}

// ApplyDefaults fills unset optional fields. Call before Validate.
func (s *BenchmarkSpec) ApplyDefaults() {
	if s.CompressionProfile == "" {
		s.CompressionProfile = ProfileBalanced
	}
	if s.Dtype == "" {
		s.Dtype = "float32"
	}
	if s.NumRuns == 0 {
		s.NumRuns = defaultNumRuns
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("%s_%dd", s.DatasetType, len(s.Shape))
	}
}

// Validate checks the spec constraints. A non-nil return is always a
// *JobError with kind invalid_spec, surfaced synchronously to the submitter.
// Codec names in CustomCodecs are deliberately not checked here: codec
// support belongs to the executor and an unsupported codec fails the job
// with an execution error rather than being rejected at submission.
func (s BenchmarkSpec) Validate() error {
	if !validDatasetTypes[s.DatasetType] {
		return NewJobError(ErrKindInvalidSpec, fmt.Sprintf("unknown dataset_type %q", s.DatasetType))
	}
	if len(s.Shape) == 0 {
		return NewJobError(ErrKindInvalidSpec, "shape must not be empty")
	}
	for i, dim := range s.Shape {
		if dim <= 0 {
			return NewJobError(ErrKindInvalidSpec, fmt.Sprintf("shape[%d] must be positive, got %d", i, dim))
		}
	}
	elemSize, ok := dtypeSizes[s.Dtype]
	if !ok && s.Dtype != "" {
		return NewJobError(ErrKindInvalidSpec, fmt.Sprintf("unsupported dtype %q", s.Dtype))
	}
	if elemSize == 0 {
		elemSize = 4
	}
	total := int64(elemSize)
	for _, dim := range s.Shape {
		total *= int64(dim)
		if total > maxShapeBytes {
			return NewJobError(ErrKindInvalidSpec, "shape exceeds maximum dataset size")
		}
	}
	if s.CompressionProfile != "" {
		if _, ok := profileChunkMultiplier[s.CompressionProfile]; !ok {
			return NewJobError(ErrKindInvalidSpec, fmt.Sprintf("unknown compression_profile %q", s.CompressionProfile))
		}
	}
	for i, v := range s.VoxelSize {
		if v <= 0 {
			return NewJobError(ErrKindInvalidSpec, fmt.Sprintf("voxel_size[%d] must be positive", i))
		}
	}
	for i, chunks := range s.ChunkSizes {
		if len(chunks) != len(s.Shape) {
			return NewJobError(ErrKindInvalidSpec,
				fmt.Sprintf("chunk_sizes[%d] has %d dimensions, shape has %d", i, len(chunks), len(s.Shape)))
		}
		for j, c := range chunks {
			if c <= 0 {
				return NewJobError(ErrKindInvalidSpec, fmt.Sprintf("chunk_sizes[%d][%d] must be positive", i, j))
			}
		}
	}
	if s.NumRuns < 0 || s.NumRuns > maxNumRuns {
		return NewJobError(ErrKindInvalidSpec, fmt.Sprintf("num_runs must be between 1 and %d", maxNumRuns))
	}
	return nil
}

// ElementSize returns the size in bytes of one array element
func (s BenchmarkSpec) ElementSize() int {
	if size, ok := dtypeSizes[s.Dtype]; ok {
		return size
	}
	return 4
}

// TotalBytes returns the uncompressed dataset size
func (s BenchmarkSpec) TotalBytes() int64 {
	total := int64(s.ElementSize())
	for _, dim := range s.Shape {
		total *= int64(dim)
	}
	return total
}

// SuggestChunks proposes a chunk shape targeting roughly 64 MB per chunk,
// scaled by the compression profile, with each dimension rounded down to a
// power of two and clamped to [16, 512] and to the dimension size.
func (s BenchmarkSpec) SuggestChunks() []int {
	targetMB := 64.0
	if mult, ok := profileChunkMultiplier[s.CompressionProfile]; ok {
		targetMB *= mult
	}
	targetElements := targetMB * 1024 * 1024 / float64(s.ElementSize())

	ndims := len(s.Shape)
	perDim := int(math.Pow(targetElements, 1.0/float64(ndims)))

	chunks := make([]int, ndims)
	for i, dim := range s.Shape {
		c := perDim
		if c > dim {
			c = dim
		}
		c = floorPow2(c)
		if c < 16 {
			c = 16
		}
		if c > 512 {
			c = 512
		}
		if c > dim {
			c = dim
		}
		chunks[i] = c
	}
	return chunks
}

// RecommendedCodec returns the default codec for the dataset modality
func (s BenchmarkSpec) RecommendedCodec() string {
	switch s.DatasetType {
	case DatasetConfocal, DatasetTwoPhoton, DatasetWidefield, DatasetSynthetic:
		// Interactive workloads favor decode speed over ratio
		return "s2"
	default:
		return "zstd"
	}
}

// CandidateCodecs returns the codecs to measure: explicit overrides when
// provided, otherwise the profile's default candidate set.
func (s BenchmarkSpec) CandidateCodecs() []string {
	if len(s.CustomCodecs) > 0 {
		return s.CustomCodecs
	}
	switch s.CompressionProfile {
	case ProfileArchival:
		return []string{"zstd", "gzip"}
	case ProfileFast:
		return []string{"s2", "none"}
	case ProfileLossless:
		return []string{"zstd", "gzip", "zlib"}
	case ProfileAnalysis:
		return []string{"zstd", "s2"}
	default:
		// Balanced: the modality's preferred codec is measured first.
		if s.RecommendedCodec() == "s2" {
			return []string{"s2", "zstd"}
		}
		return []string{"zstd", "s2"}
	}
}

// CandidateChunks returns the chunk shapes to measure: explicit overrides
// when provided, otherwise half / recommended / double around the suggestion.
func (s BenchmarkSpec) CandidateChunks() [][]int {
	if len(s.ChunkSizes) > 0 {
		return s.ChunkSizes
	}
	base := s.SuggestChunks()
	smaller := make([]int, len(base))
	larger := make([]int, len(base))
	for i, c := range base {
		smaller[i] = max(c/2, 1)
		larger[i] = min(c*2, s.Shape[i])
	}
	return [][]int{smaller, base, larger}
}

// Clone returns a deep copy of the spec
func (s BenchmarkSpec) Clone() BenchmarkSpec {
	c := s
	c.Shape = append([]int(nil), s.Shape...)
	if s.VoxelSize != nil {
		c.VoxelSize = append([]float64(nil), s.VoxelSize...)
	}
	if s.CustomCodecs != nil {
		c.CustomCodecs = append([]string(nil), s.CustomCodecs...)
	}
	if s.ChunkSizes != nil {
		c.ChunkSizes = make([][]int, len(s.ChunkSizes))
		for i, cs := range s.ChunkSizes {
			c.ChunkSizes[i] = append([]int(nil), cs...)
		}
	}
	return c
}

func floorPow2(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
