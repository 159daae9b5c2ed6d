// Package dedupe implements the entity-resolution engine: it collapses
// near-duplicate business listings into one canonical record per real-world
// company.
//
// The pipeline is normalize -> block -> score -> cluster -> merge. Blocking
// keeps comparison sub-quadratic at the cost of missing duplicates that
// share no blocking key. Clustering is transitive through a union-find
// structure: if A matches B and B matches C, all three merge even when A
// and C never scored above the threshold. That chain behaviour is
// deliberate; no cluster-diameter cap is enforced.
package dedupe

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/domain/record"
)

// Config is the engine's tuning surface, passed in at construction. There
// is no global state.
type Config struct {
	// Signal weights. A signal missing on either side of a pair gives up
	// its share of the denominator instead of dragging the score down.
	NameWeight     float64 `yaml:"name_weight"`
	PhoneWeight    float64 `yaml:"phone_weight"`
	WebsiteWeight  float64 `yaml:"website_weight"`
	DistanceWeight float64 `yaml:"distance_weight"`

	// Threshold is the duplicate decision boundary on the 0-100 score.
	Threshold float64 `yaml:"decision_threshold"`

	// BlockPrefixLen is the normalized-name prefix length of the
	// city+name blocking key.
	BlockPrefixLen int `yaml:"block_prefix_len"`

	// GeoRadiusMeters bounds the distance signal; beyond it proximity
	// contributes nothing.
	GeoRadiusMeters float64 `yaml:"geo_radius_meters"`

	// Workers parallelizes pair scoring. Clustering stays sequential
	// over deterministically sorted pairs, so any worker count produces
	// the same output as the single-threaded reference.
	Workers int `yaml:"workers"`
}

// DefaultConfig emphasizes name and phone: address and website are the
// fields most often missing from harvested listings.
func DefaultConfig() Config {
	return Config{
		NameWeight:      0.45,
		PhoneWeight:     0.35,
		WebsiteWeight:   0.10,
		DistanceWeight:  0.10,
		Threshold:       85,
		BlockPrefixLen:  5,
		GeoRadiusMeters: 2000,
		Workers:         1,
	}
}

// Validate rejects configurations that cannot produce meaningful decisions.
// This is the engine's one fatal condition; everything at resolution time
// degrades per-field instead of failing.
func (c Config) Validate() error {
	if c.NameWeight < 0 || c.PhoneWeight < 0 || c.WebsiteWeight < 0 || c.DistanceWeight < 0 {
		return fmt.Errorf("%w: similarity weights must be non-negative", domain.ErrInvalidConfig)
	}
	if c.NameWeight+c.PhoneWeight+c.WebsiteWeight+c.DistanceWeight <= 0 {
		return fmt.Errorf("%w: at least one similarity weight must be positive", domain.ErrInvalidConfig)
	}
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("%w: decision_threshold must be within [0,100], got %v", domain.ErrInvalidConfig, c.Threshold)
	}
	if c.BlockPrefixLen < 1 {
		return fmt.Errorf("%w: block_prefix_len must be at least 1, got %d", domain.ErrInvalidConfig, c.BlockPrefixLen)
	}
	if c.GeoRadiusMeters <= 0 {
		return fmt.Errorf("%w: geo_radius_meters must be positive, got %v", domain.ErrInvalidConfig, c.GeoRadiusMeters)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", domain.ErrInvalidConfig, c.Workers)
	}
	return nil
}

// Engine resolves duplicate listings. Safe for reuse across batches.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New validates the configuration and creates an engine.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Result is one resolution pass over a batch of records.
type Result struct {
	// Canonical holds one merged record per cluster, ordered by the rank
	// of each cluster's first member.
	Canonical []record.Canonical
	// Skipped holds records excluded from resolution: nothing usable to
	// block or compare on. Never silently dropped.
	Skipped []record.Record
	// Audit maps every subsumed input ref to its canonical ref.
	Audit map[string]string
	// PairsCompared counts scored candidate pairs.
	PairsCompared int
	// Merged counts input records folded into another record.
	Merged int
}

// Resolve runs one batch pass. The input slice is never mutated, and the
// outcome does not depend on input order: records are ranked by their own
// fields before any pairwise work.
func (e *Engine) Resolve(records []record.Record) Result {
	keys := make([]record.Key, len(records))
	for i := range records {
		keys[i] = record.Normalize(records[i])
	}

	usable := make([]int, 0, len(records))
	var skipped []record.Record
	for i := range records {
		if keys[i].Name == "" && keys[i].Phone == "" && records[i].PlaceID == "" {
			e.logger.Warn("record has no usable name, phone or id; excluded from resolution",
				zap.String("ref", records[i].Ref()),
				zap.String("city", records[i].City),
			)
			skipped = append(skipped, records[i])
			continue
		}
		usable = append(usable, i)
	}

	rank := e.rankRecords(records, keys, usable)

	blocks := buildBlocks(records, keys, usable, e.cfg.BlockPrefixLen)
	pairs := e.scoreBlocks(records, keys, blocks, rank)

	// Deterministic clustering order: pairs sorted by rank, lowest first.
	sort.Slice(pairs, func(i, j int) bool {
		if rank[pairs[i].A] != rank[pairs[j].A] {
			return rank[pairs[i].A] < rank[pairs[j].A]
		}
		return rank[pairs[i].B] < rank[pairs[j].B]
	})

	uf := newUnionFind(len(records))
	for _, p := range pairs {
		if p.Duplicate {
			uf.union(p.A, p.B)
		}
	}

	clusters := collectClusters(uf, usable, rank)

	res := Result{
		Audit:         make(map[string]string, len(usable)),
		Skipped:       skipped,
		PairsCompared: len(pairs),
		Merged:        len(usable) - len(clusters),
	}
	for _, members := range clusters {
		c := merge(records, keys, members)
		canonRef := c.Ref()
		for _, ref := range c.SubsumedRefs {
			res.Audit[ref] = canonRef
		}
		res.Canonical = append(res.Canonical, c)
	}

	e.logger.Info("entity resolution complete",
		zap.Int("input", len(records)),
		zap.Int("canonical", len(res.Canonical)),
		zap.Int("merged", res.Merged),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("pairs_compared", res.PairsCompared),
	)
	return res
}

// rankRecords assigns each usable record a position in a content-derived
// total order. Every downstream tie-break uses this rank, which is what
// makes the whole pass independent of input arrival order.
func (e *Engine) rankRecords(records []record.Record, keys []record.Key, usable []int) map[int]int {
	order := make([]int, len(usable))
	copy(order, usable)
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if records[i].PlaceID != records[j].PlaceID {
			return records[i].PlaceID < records[j].PlaceID
		}
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		if keys[i].Phone != keys[j].Phone {
			return keys[i].Phone < keys[j].Phone
		}
		if keys[i].City != keys[j].City {
			return keys[i].City < keys[j].City
		}
		return keys[i].Address < keys[j].Address
	})

	rank := make(map[int]int, len(order))
	for pos, idx := range order {
		rank[idx] = pos
	}
	return rank
}

// scoreBlocks enumerates the unique candidate pairs across all blocks and
// scores them, fanning out across workers when configured. Scoring is pure,
// so parallelism cannot change any individual result.
func (e *Engine) scoreBlocks(records []record.Record, keys []record.Key, blocks map[string][]int, rank map[int]int) []Pair {
	type candidate struct{ a, b int }
	seen := make(map[candidate]bool)
	var cands []candidate
	for _, members := range blocks {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				a, b := members[x], members[y]
				if rank[a] > rank[b] {
					a, b = b, a
				}
				c := candidate{a, b}
				if seen[c] {
					continue
				}
				seen[c] = true
				cands = append(cands, c)
			}
		}
	}

	pairs := make([]Pair, len(cands))
	workers := e.cfg.Workers
	if workers > len(cands) {
		workers = len(cands)
	}
	if workers <= 1 {
		for i, c := range cands {
			pairs[i] = e.scorePair(records, keys, c.a, c.b)
		}
		return pairs
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				pairs[i] = e.scorePair(records, keys, cands[i].a, cands[i].b)
			}
		}()
	}
	for i := range cands {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return pairs
}

func (e *Engine) scorePair(records []record.Record, keys []record.Key, a, b int) Pair {
	p := e.score(&records[a], &records[b], &keys[a], &keys[b])
	p.A, p.B = a, b
	return p
}

// collectClusters extracts the connected components, each with members in
// rank order, and orders the clusters by their first member's rank.
func collectClusters(uf *unionFind, usable []int, rank map[int]int) [][]int {
	byRoot := make(map[int][]int)
	for _, idx := range usable {
		root := uf.find(idx)
		byRoot[root] = append(byRoot[root], idx)
	}

	clusters := make([][]int, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Slice(members, func(a, b int) bool { return rank[members[a]] < rank[members[b]] })
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(a, b int) bool { return rank[clusters[a][0]] < rank[clusters[b][0]] })
	return clusters
}
