package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"time"

	"github.com/IvanBrykalov/computecore/coordinator"
	"github.com/IvanBrykalov/computecore/modules"
)

const (
	maxRounds   = 1_000_000
	maxBodySize = 1 << 20
)

// Hasher is the module instance behind one digest algorithm.
type Hasher struct {
	Name string
	New  func() hash.Hash
}

var hashers = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// DigestModule returns the module key serving algorithm.
func DigestModule(algorithm string) string { return "digest/" + algorithm }

// RegisterModules registers one module per digest algorithm.
func RegisterModules(m *modules.Manager) error {
	var errs []error
	for name, fn := range hashers {
		errs = append(errs, m.Register(DigestModule(name), func(context.Context) (any, error) {
			return &Hasher{Name: name, New: fn}, nil
		}))
	}
	return errors.Join(errs...)
}

// RelatedModules declares that using one digest algorithm predicts the other.
func RelatedModules() map[string][]string {
	return map[string][]string{
		DigestModule("sha256"): {DigestModule("sha512")},
		DigestModule("sha512"): {DigestModule("sha256")},
	}
}

type digestRequest struct {
	Data      string `json:"data"`
	Algorithm string `json:"algorithm"`
	Rounds    int    `json:"rounds"`
	Priority  int    `json:"priority"`
	// TTL overrides the cache default, e.g. "90s".
	TTL string `json:"ttl"`
}

type digestResponse struct {
	Key       string `json:"key"`
	Algorithm string `json:"algorithm"`
	Rounds    int    `json:"rounds"`
	Digest    string `json:"digest"`
}

type digestInput struct {
	data   []byte
	rounds int
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Algorithm == "" {
		req.Algorithm = "sha256"
	}
	if req.Rounds == 0 {
		req.Rounds = 1
	}
	if _, ok := hashers[req.Algorithm]; !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown algorithm %q", req.Algorithm))
		return
	}
	if req.Rounds < 0 || req.Rounds > maxRounds {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("rounds must be in [1, %d]", maxRounds))
		return
	}

	opts := []coordinator.RunOption{
		coordinator.WithKind("digest"),
		coordinator.WithModule(DigestModule(req.Algorithm)),
		coordinator.WithPriority(req.Priority),
	}
	if req.TTL != "" {
		ttl, err := time.ParseDuration(req.TTL)
		if err != nil || ttl <= 0 {
			s.writeError(w, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		opts = append(opts, coordinator.WithTTL(ttl))
	}

	key := digestKey(req.Algorithm, req.Rounds, req.Data)
	sum, err := coordinator.Run(r.Context(), s.coord, key, digestInput{data: []byte(req.Data), rounds: req.Rounds}, iterate, opts...)
	if err != nil {
		s.writeComputeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, digestResponse{
		Key:       key,
		Algorithm: req.Algorithm,
		Rounds:    req.Rounds,
		Digest:    sum,
	})
}

// digestKey fingerprints the request so identical inputs share a result.
func digestKey(algorithm string, rounds int, data string) string {
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("digest:%s:%d:%s", algorithm, rounds, hex.EncodeToString(sum[:]))
}

// iterate hashes the input rounds times with the hasher loaded for the task.
func iterate(ctx context.Context, in digestInput) (string, error) {
	m, ok := coordinator.Module(ctx)
	if !ok {
		return "", errors.New("digest: hasher module not loaded")
	}
	h := m.(*Hasher).New()
	sum := in.data
	for i := 0; i < in.rounds; i++ {
		if i%4096 == 0 && ctx.Err() != nil {
			return "", ctx.Err()
		}
		h.Reset()
		h.Write(sum)
		sum = h.Sum(sum[:0:0])
	}
	return hex.EncodeToString(sum), nil
}
