package executor

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/models"
)

// Executor runs one benchmark evaluation synchronously: it generates a
// synthetic volume for the dataset description, measures every requested
// codec × chunk-shape combination, and summarizes the winners. It is a pure
// function of the spec apart from wall-clock timings.
type Executor struct {
	log *logging.Logger
}

// New creates a benchmark executor
func New(log *logging.Logger) *Executor {
	return &Executor{log: log}
}

// Run executes the benchmark described by spec. The context is checked
// between chunks, so cancellation is best-effort with chunk granularity.
func (e *Executor) Run(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
	data := GenerateVolume(spec)
	sizeMB := float64(len(data)) / (1024 * 1024)

	e.log.Info("Benchmark started", map[string]interface{}{
		"dataset": spec.Name,
		"type":    string(spec.DatasetType),
		"size_mb": fmt.Sprintf("%.2f", sizeMB),
	})

	codecNames := spec.CandidateCodecs()
	chunkCandidates := spec.CandidateChunks()

	var measurements []models.Measurement
	for _, name := range codecNames {
		codec, err := LookupCodec(name)
		if err != nil {
			return nil, err
		}
		for _, chunks := range chunkCandidates {
			m, err := e.measure(ctx, codec, data, spec, chunks)
			if err != nil {
				return nil, err
			}
			measurements = append(measurements, m)
		}
	}

	result := &models.Result{
		Dataset:      spec.Name,
		DatasetType:  spec.DatasetType,
		SizeMB:       sizeMB,
		NumRuns:      spec.NumRuns,
		Measurements: measurements,
		Host:         CollectHostInfo(),
	}
	summarize(result, spec.CompressionProfile)

	e.log.Info("Benchmark completed", map[string]interface{}{
		"dataset":     spec.Name,
		"recommended": result.Recommended.Codec,
		"best_ratio":  fmt.Sprintf("%.2f", result.BestCompression.Ratio),
	})
	return result, nil
}

// measure times write (compress) and read (decompress + checksum verify) of
// the whole volume through one codec at one chunk shape, averaged over the
// spec's number of runs.
func (e *Executor) measure(ctx context.Context, codec Codec, data []byte, spec models.BenchmarkSpec, chunks []int) (models.Measurement, error) {
	chunkBytes := spec.ElementSize()
	for _, c := range chunks {
		chunkBytes *= c
	}
	if chunkBytes <= 0 || chunkBytes > len(data) {
		chunkBytes = len(data)
	}

	var writeTotal, readTotal time.Duration
	var storedBytes int64
	numChunks := 0

	for run := 0; run < spec.NumRuns; run++ {
		compressed := make([][]byte, 0, len(data)/chunkBytes+1)

		writeStart := time.Now()
		for off := 0; off < len(data); off += chunkBytes {
			if err := ctx.Err(); err != nil {
				return models.Measurement{}, err
			}
			end := off + chunkBytes
			if end > len(data) {
				end = len(data)
			}
			block, err := codec.Compress(data[off:end])
			if err != nil {
				return models.Measurement{}, fmt.Errorf("codec %s: compress: %w", codec.Name(), err)
			}
			compressed = append(compressed, block)
		}
		writeTotal += time.Since(writeStart)

		if run == 0 {
			numChunks = len(compressed)
			for _, block := range compressed {
				storedBytes += int64(len(block))
			}
		}

		readStart := time.Now()
		for i, block := range compressed {
			if err := ctx.Err(); err != nil {
				return models.Measurement{}, err
			}
			plain, err := codec.Decompress(block)
			if err != nil {
				return models.Measurement{}, fmt.Errorf("codec %s: decompress: %w", codec.Name(), err)
			}
			off := i * chunkBytes
			end := off + len(plain)
			if end > len(data) || crc32.ChecksumIEEE(plain) != crc32.ChecksumIEEE(data[off:end]) {
				return models.Measurement{}, fmt.Errorf("codec %s: chunk %d round-trip mismatch", codec.Name(), i)
			}
		}
		readTotal += time.Since(readStart)
	}

	runs := float64(spec.NumRuns)
	sizeMB := float64(len(data)) / (1024 * 1024)
	writeAvg := writeTotal.Seconds() / runs
	readAvg := readTotal.Seconds() / runs

	m := models.Measurement{
		Codec:         codec.Name(),
		Chunks:        append([]int(nil), chunks...),
		WriteSeconds:  writeAvg,
		ReadSeconds:   readAvg,
		StoredMB:      float64(storedBytes) / (1024 * 1024),
		ChecksumMatch: true,
		ChunksWritten: numChunks,
	}
	if writeAvg > 0 {
		m.WriteMBPerSec = sizeMB / writeAvg
	}
	if readAvg > 0 {
		m.ReadMBPerSec = sizeMB / readAvg
	}
	if storedBytes > 0 {
		m.Ratio = float64(len(data)) / float64(storedBytes)
	}
	return m, nil
}

// summarize fills the best-of highlights and the recommended configuration.
// The recommendation criterion follows the profile: archival and lossless
// favor ratio, fast favors write speed, analysis favors read speed, balanced
// favors ratio per unit of round-trip time.
func summarize(r *models.Result, profile models.CompressionProfile) {
	if len(r.Measurements) == 0 {
		return
	}

	bestWrite, bestRead, bestRatio, bestOverall := 0, 0, 0, 0
	for i, m := range r.Measurements {
		if m.WriteSeconds < r.Measurements[bestWrite].WriteSeconds {
			bestWrite = i
		}
		if m.ReadSeconds < r.Measurements[bestRead].ReadSeconds {
			bestRead = i
		}
		if m.Ratio > r.Measurements[bestRatio].Ratio {
			bestRatio = i
		}
		if profileScore(m, profile) > profileScore(r.Measurements[bestOverall], profile) {
			bestOverall = i
		}
	}

	w := r.Measurements[bestWrite]
	r.BestWrite = models.CodecHighlight{Codec: w.Codec, Seconds: w.WriteSeconds, MBPerSec: w.WriteMBPerSec}
	rd := r.Measurements[bestRead]
	r.BestRead = models.CodecHighlight{Codec: rd.Codec, Seconds: rd.ReadSeconds, MBPerSec: rd.ReadMBPerSec}
	cp := r.Measurements[bestRatio]
	r.BestCompression = models.CodecHighlight{Codec: cp.Codec, Ratio: cp.Ratio, StoredMB: cp.StoredMB}

	rec := r.Measurements[bestOverall]
	r.Recommended = models.RecommendedConfig{
		Codec:  rec.Codec,
		Chunks: append([]int(nil), rec.Chunks...),
	}
}

func profileScore(m models.Measurement, profile models.CompressionProfile) float64 {
	switch profile {
	case models.ProfileArchival, models.ProfileLossless:
		return m.Ratio
	case models.ProfileFast:
		return m.WriteMBPerSec
	case models.ProfileAnalysis:
		return m.ReadMBPerSec
	default:
		roundTrip := m.WriteSeconds + m.ReadSeconds
		if roundTrip <= 0 {
			return m.Ratio
		}
		return m.Ratio / roundTrip
	}
}
