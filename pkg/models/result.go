package models

// Measurement is one codec × chunk-shape data point, averaged over the
// configured number of runs.
type Measurement struct {
	Codec         string  `json:"codec"`
	Chunks        []int   `json:"chunks"`
	WriteSeconds  float64 `json:"write_time_avg"`
	ReadSeconds   float64 `json:"read_time_avg"`
	WriteMBPerSec float64 `json:"throughput_write_mbs"`
	ReadMBPerSec  float64 `json:"throughput_read_mbs"`
	Ratio         float64 `json:"compression_ratio"`
	StoredMB      float64 `json:"size_mb"`
	ChecksumMatch bool    `json:"checksum_match"`
	ChunksWritten int     `json:"chunks_written"`
}

// CodecHighlight names the winning codec for one criterion
type CodecHighlight struct {
	Codec    string  `json:"codec"`
	Seconds  float64 `json:"time_s,omitempty"`
	MBPerSec float64 `json:"throughput_mbs,omitempty"`
	Ratio    float64 `json:"ratio,omitempty"`
	StoredMB float64 `json:"size_mb,omitempty"`
}

// RecommendedConfig is the executor's suggested storage configuration
type RecommendedConfig struct {
	Codec  string `json:"codec"`
	Chunks []int  `json:"chunks"`
}

// HostInfo captures the environment a benchmark ran on
type HostInfo struct {
	Hostname   string  `json:"hostname,omitempty"`
	OS         string  `json:"os"`
	Arch       string  `json:"arch"`
	CPUModel   string  `json:"cpu_model,omitempty"`
	CPUThreads int     `json:"cpu_threads"`
	RAMTotalMB float64 `json:"ram_total_mb,omitempty"`
}

// Result is the metrics payload produced by a completed benchmark
type Result struct {
	Dataset         string            `json:"dataset"`
	DatasetType     DatasetType       `json:"dataset_type"`
	SizeMB          float64           `json:"size_mb"`
	NumRuns         int               `json:"num_runs"`
	Measurements    []Measurement     `json:"measurements"`
	BestWrite       CodecHighlight    `json:"best_write"`
	BestRead        CodecHighlight    `json:"best_read"`
	BestCompression CodecHighlight    `json:"best_compression"`
	Recommended     RecommendedConfig `json:"recommended"`
	Host            HostInfo          `json:"host"`
}

// Clone returns a deep copy of the result
func (r *Result) Clone() *Result {
	c := *r
	c.Measurements = make([]Measurement, len(r.Measurements))
	for i, m := range r.Measurements {
		c.Measurements[i] = m
		c.Measurements[i].Chunks = append([]int(nil), m.Chunks...)
	}
	c.Recommended.Chunks = append([]int(nil), r.Recommended.Chunks...)
	return &c
}
