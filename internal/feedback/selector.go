package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/config"
	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

// DefaultVariantType is stored for variants that carry no style.
const DefaultVariantType = "title_hook_thumbnail"

// Exploit strategies.
const (
	// ExploitFirst always takes the first generated variant when exploiting.
	ExploitFirst = "first"
	// ExploitRanked takes the generated variant whose style ranks best.
	ExploitRanked = "ranked"
)

// VariantStore is the persistence the selector needs.
type VariantStore interface {
	CountScoredVariants(ctx context.Context) (int, error)
	VariantTypeRanking(ctx context.Context) ([]db.VariantTypeScore, error)
	InsertABVariant(ctx context.Context, v *db.ABVariant) (int64, error)
	RecordABVariantResult(ctx context.Context, id int64, ctr float64, isWinner bool) error
}

// Selector is an epsilon-greedy bandit over variant styles.
type Selector struct {
	store VariantStore
	cfg   config.ABTestingConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector creates a selector.
func NewSelector(store VariantStore, cfg config.ABTestingConfig) *Selector {
	if cfg.ExploitStrategy == "" {
		cfg.ExploitStrategy = ExploitFirst
	}
	return &Selector{store: store, cfg: cfg, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// SetRand replaces the selector's source.
func (s *Selector) SetRand(r *rand.Rand) {
	s.mu.Lock()
	s.rnd = r
	s.mu.Unlock()
}

// PickVariant chooses one of variants and stores it before returning it
// with VariantID set. Until MinDataPoints variants have a recorded CTR the
// choice is uniform. After that it explores uniformly at ExplorationRate and
// otherwise exploits. An empty list yields nil.
func (s *Selector) PickVariant(ctx context.Context, variants []types.Variant, videoDBID int64) (*types.Variant, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	idx, err := s.choose(ctx, variants)
	if err != nil {
		return nil, err
	}
	chosen := variants[idx]

	data, err := json.Marshal(chosen)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variant: %w", err)
	}
	id, err := s.store.InsertABVariant(ctx, &db.ABVariant{
		VideoDBID:   videoDBID,
		VariantType: variantType(chosen),
		VariantData: string(data),
	})
	if err != nil {
		return nil, err
	}
	chosen.VariantID = id
	logf("Picked %s variant %d: %s", variantType(chosen), id, chosen.Title)
	return &chosen, nil
}

func (s *Selector) choose(ctx context.Context, variants []types.Variant) (int, error) {
	scored, err := s.store.CountScoredVariants(ctx)
	if err != nil {
		return 0, err
	}
	if scored < s.cfg.MinDataPoints {
		return s.intn(len(variants)), nil
	}

	ranking, err := s.store.VariantTypeRanking(ctx)
	if err != nil {
		return 0, err
	}
	if len(ranking) == 0 || s.float() < s.cfg.ExplorationRate {
		return s.intn(len(variants)), nil
	}

	if s.cfg.ExploitStrategy == ExploitRanked {
		for _, r := range ranking {
			for i, v := range variants {
				if variantType(v) == r.VariantType {
					return i, nil
				}
			}
		}
	}
	// The ranking only says exploitation is warranted; the first generated
	// variant is taken whatever its style.
	return 0, nil
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

func (s *Selector) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// RecordResult stores the measured CTR of a variant. Results are write-once.
func (s *Selector) RecordResult(ctx context.Context, variantID int64, ctr float64, isWinner bool) error {
	return s.store.RecordABVariantResult(ctx, variantID, ctr, isWinner)
}

// ApplyVariant returns a copy of md with the variant's title and thumbnail
// text. A nil variant returns md unchanged.
func ApplyVariant(md *types.Metadata, v *types.Variant) *types.Metadata {
	if v == nil || md == nil {
		return md
	}
	out := *md
	out.Tags = append([]string(nil), md.Tags...)
	if v.Title != "" {
		out.Title = v.Title
	}
	if v.ThumbnailText != "" {
		out.ThumbnailText = v.ThumbnailText
	}
	return &out
}

func variantType(v types.Variant) string {
	if v.Style == "" {
		return DefaultVariantType
	}
	return v.Style
}
