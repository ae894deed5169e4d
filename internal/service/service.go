// Package service orchestrates decoding, hashing and comparison on behalf of
// the HTTP layer. Every request is validated here before any hashing or
// comparison work happens; all failures resolve to structured results or
// typed errors, never panics.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snapmatch/snapmatch-go/internal/cache"
	"github.com/snapmatch/snapmatch-go/internal/compare"
	"github.com/snapmatch/snapmatch-go/internal/phash"
)

// DefaultThreshold is the maximum Hamming distance treated as similar when a
// request does not supply its own.
const DefaultThreshold = 10

// ValidationError rejects a malformed request before any work happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalidf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Limits bounds per-request resource usage.
type Limits struct {
	MaxBatchFiles int
	MaxCandidates int
	Workers       int
}

// Service exposes the hashing and comparison operations consumed by handlers.
type Service struct {
	logger *zap.Logger
	hasher *phash.Engine
	cache  *cache.FingerprintCache
	limits Limits
}

// New builds a Service. fpCache may be nil when no cache is configured.
func New(logger *zap.Logger, hasher *phash.Engine, fpCache *cache.FingerprintCache, limits Limits) (*Service, error) {
	if logger == nil {
		return nil, errors.New("service: logger is required")
	}
	if hasher == nil {
		return nil, errors.New("service: hasher is required")
	}
	if limits.MaxBatchFiles <= 0 {
		limits.MaxBatchFiles = 16
	}
	if limits.MaxCandidates <= 0 {
		limits.MaxCandidates = 512
	}
	if limits.Workers <= 0 {
		limits.Workers = runtime.NumCPU()
	}
	return &Service{
		logger: logger,
		hasher: hasher,
		cache:  fpCache,
		limits: limits,
	}, nil
}

// HashOutput is the outcome of hashing a single image payload. The checksum
// identifies the exact input bytes and keys the optional fingerprint cache.
type HashOutput struct {
	Hash     string `json:"hash"`
	Checksum string `json:"checksum"`
}

// ComputeHash decodes and hashes one image payload.
func (s *Service) ComputeHash(ctx context.Context, data []byte) (HashOutput, error) {
	if len(data) == 0 {
		return HashOutput{}, invalidf("image payload is empty")
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if s.cache != nil {
		fp, err := s.cache.Get(ctx, checksum)
		switch {
		case err == nil:
			return HashOutput{Hash: fp, Checksum: checksum}, nil
		case !errors.Is(err, cache.ErrNotFound):
			s.logger.Warn("fingerprint cache read failed", zap.Error(err))
		}
	}

	fp, err := s.hasher.FromBytes(data)
	if err != nil {
		return HashOutput{}, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, checksum, fp); err != nil {
			s.logger.Warn("fingerprint cache write failed", zap.Error(err))
		}
	}
	return HashOutput{Hash: fp, Checksum: checksum}, nil
}

// NamedImage is one uploaded file in a batch hash request. Err carries an
// upload-stage failure (for example an oversized file) that must surface as
// that item's individual result instead of failing the whole batch.
type NamedImage struct {
	Filename string
	Data     []byte
	Err      error
}

// BatchHashItem reports the outcome for one file in a batch.
type BatchHashItem struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Hash     string `json:"hash,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchHashResult aggregates per-file outcomes with summary counts.
type BatchHashResult struct {
	Results         []BatchHashItem `json:"results"`
	TotalFiles      int             `json:"total_files"`
	SuccessfulFiles int             `json:"successful_files"`
	FailedFiles     int             `json:"failed_files"`
}

// ComputeBatchHash hashes every uploaded file independently; one bad file
// never aborts the batch. Items are processed in parallel under the worker
// limit, with results collected by input index so output order always matches
// upload order.
func (s *Service) ComputeBatchHash(ctx context.Context, files []NamedImage) (BatchHashResult, error) {
	if len(files) == 0 {
		return BatchHashResult{}, invalidf("at least one image is required")
	}
	if len(files) > s.limits.MaxBatchFiles {
		return BatchHashResult{}, invalidf("batch exceeds the maximum of %d files", s.limits.MaxBatchFiles)
	}

	results := make([]BatchHashItem, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limits.Workers)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			item := BatchHashItem{Filename: file.Filename}
			if file.Err != nil {
				item.Error = file.Err.Error()
			} else if out, err := s.ComputeHash(gctx, file.Data); err != nil {
				item.Error = err.Error()
			} else {
				item.Success = true
				item.Hash = out.Hash
				item.Checksum = out.Checksum
			}
			results[i] = item
			return nil
		})
	}
	// Per-item failures live in results; workers never return errors.
	_ = g.Wait()

	out := BatchHashResult{Results: results, TotalFiles: len(files)}
	for _, item := range results {
		if item.Success {
			out.SuccessfulFiles++
		} else {
			out.FailedFiles++
		}
	}
	return out, nil
}

// CompareRequest is a validated pairwise comparison request. A nil Threshold
// selects DefaultThreshold.
type CompareRequest struct {
	Hash1     string   `json:"hash1"`
	Hash2     string   `json:"hash2"`
	Threshold *float64 `json:"threshold"`
}

// Compare validates the request and delegates to the comparator. Malformed
// fingerprints come back as a ValidationError, not a raw comparator error.
func (s *Service) Compare(req CompareRequest) (compare.Result, error) {
	threshold, err := resolveThreshold(req.Threshold)
	if err != nil {
		return compare.Result{}, err
	}
	if req.Hash1 == "" || req.Hash2 == "" {
		return compare.Result{}, invalidf("hash1 and hash2 are required")
	}
	res, err := compare.Compare(req.Hash1, req.Hash2, threshold)
	if err != nil {
		return compare.Result{}, &ValidationError{Reason: err.Error()}
	}
	return res, nil
}

// CompareBatchRequest ranks many candidates against one target fingerprint.
type CompareBatchRequest struct {
	TargetHash      string   `json:"target_hash"`
	CandidateHashes []string `json:"candidate_hashes"`
	Threshold       *float64 `json:"threshold"`
}

// CompareBatchResult reports per-candidate comparisons plus how many of the
// submitted candidates were well-formed enough to compare.
type CompareBatchResult struct {
	Results         []compare.BatchEntry `json:"results"`
	TotalCandidates int                  `json:"total_candidates"`
	ValidCandidates int                  `json:"valid_candidates"`
}

// CompareBatch validates the request shape, then delegates to the comparator.
// A malformed target yields an empty result set with zero valid candidates;
// malformed candidates are silently dropped from the output.
func (s *Service) CompareBatch(req CompareBatchRequest) (CompareBatchResult, error) {
	threshold, err := resolveThreshold(req.Threshold)
	if err != nil {
		return CompareBatchResult{}, err
	}
	if req.TargetHash == "" {
		return CompareBatchResult{}, invalidf("target_hash is required")
	}
	if len(req.CandidateHashes) == 0 {
		return CompareBatchResult{}, invalidf("candidate_hashes must not be empty")
	}
	if len(req.CandidateHashes) > s.limits.MaxCandidates {
		return CompareBatchResult{}, invalidf("candidate_hashes exceeds the maximum of %d entries", s.limits.MaxCandidates)
	}

	entries := compare.CompareBatch(req.TargetHash, req.CandidateHashes, threshold)
	return CompareBatchResult{
		Results:         entries,
		TotalCandidates: len(req.CandidateHashes),
		ValidCandidates: len(entries),
	}, nil
}

func resolveThreshold(t *float64) (float64, error) {
	if t == nil {
		return DefaultThreshold, nil
	}
	if math.IsNaN(*t) || *t < 0 {
		return 0, invalidf("threshold must be a non-negative number")
	}
	return *t, nil
}
