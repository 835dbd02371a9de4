// Package reconcile implements stage 2, the cross-source reconciler: every
// pool is classified as matched, ECB-only or ESMA-only, merged under a
// unified schema, deduplicated where the sources temporally overlap, and
// persisted atomically into one CSV per pool.
package reconcile

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/loantape/internal/config"
	"github.com/sells-group/loantape/internal/mapping"
	"github.com/sells-group/loantape/internal/resilience"
)

// Output buckets, one subdirectory per reconciliation class.
const (
	BucketMatched  = "matched"
	BucketECBOnly  = "ecb_only"
	BucketESMAOnly = "esma_only"
)

// Columns added or consumed by the reconciler.
const (
	colSource   = "source"
	colDateYM   = "date_ym"
	colLoanID   = "RREL3"
	colDate     = "RREL6"
	colECBDate  = "AR1"
	colECBPool  = "ecb_pool_id"
	colESMAPool = "esma_pool_id"
)

// Source marker values. ESMA is the preferred source: its rows are never
// dropped and are always written after ECB rows.
const (
	sourceECB  = "ECB"
	sourceESMA = "ESMA"
)

// Session holds everything a reconciliation run needs: the column rename
// tables, the per-pool file indices and the class assignment. It is built
// once per run from the immutable configuration.
type Session struct {
	cfg       config.ReconcileConfig
	ecbDir    string
	esmaDir   string
	outputDir string

	template *mapping.Template
	overlap  map[string]bool
	retry    resilience.RetryConfig

	ecbFiles  map[string][]string // ECB pool id → sorted filenames
	esmaFiles map[string][]string // ESMA pool id → sorted filenames

	matched  map[string]string // ECB pool id → ESMA pool id
	ecbOnly  []string
	esmaOnly []string
}

// NewSession loads the static tables and indexes both source trees. A
// missing template or pool mapping is fatal since every unit of work
// depends on them.
func NewSession(cfg *config.Config) (*Session, error) {
	template, err := mapping.LoadTemplate(cfg.Paths.TemplatePath)
	if err != nil {
		return nil, err
	}
	poolMap, err := mapping.LoadPoolMapping(cfg.Paths.PoolMappingPath)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:       cfg.Reconcile,
		ecbDir:    cfg.Paths.ECBDir,
		esmaDir:   cfg.Paths.ESMAMergedDir,
		outputDir: cfg.Paths.MergedDir,
		template:  template,
		overlap:   cfg.Reconcile.OverlapSet(),
		retry:     resilience.FileRetryConfig(),
		matched:   make(map[string]string),
	}
	if cfg.Reconcile.LoadRetries > 0 {
		s.retry.MaxAttempts = cfg.Reconcile.LoadRetries
	}

	s.ecbFiles, err = indexFiles(s.ecbDir, ".gz", ecbPoolID)
	if err != nil {
		return nil, err
	}
	s.esmaFiles, err = indexFiles(s.esmaDir, ".csv", esmaPoolID)
	if err != nil {
		return nil, err
	}

	matchedESMA := make(map[string]bool)
	for ecbID, entry := range poolMap.Pools {
		s.matched[ecbID] = entry.ESMAPool
		matchedESMA[entry.ESMAPool] = true
	}
	for pool := range s.ecbFiles {
		if _, ok := s.matched[pool]; !ok {
			s.ecbOnly = append(s.ecbOnly, pool)
		}
	}
	for pool := range s.esmaFiles {
		if !matchedESMA[pool] {
			s.esmaOnly = append(s.esmaOnly, pool)
		}
	}
	sort.Strings(s.ecbOnly)
	sort.Strings(s.esmaOnly)

	return s, nil
}

// indexFiles groups the files of a source directory by pool identifier.
// File lists are sorted so rows append in a stable file order.
func indexFiles(dir, ext string, poolOf func(string) string) (map[string][]string, error) {
	index := make(map[string][]string)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return index, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: read source dir %s", dir)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		pool := poolOf(name)
		if pool == "" {
			continue
		}
		index[pool] = append(index[pool], name)
	}
	for pool := range index {
		sort.Strings(index[pool])
	}
	return index, nil
}

// ecbPoolID extracts the pool id from an ECB export filename: the segment
// before the first underscore.
func ecbPoolID(filename string) string {
	if i := strings.IndexByte(filename, '_'); i > 0 {
		return filename[:i]
	}
	return ""
}

// esmaPoolID extracts the pool id from a stage-1 output filename: the
// third-from-last underscore-separated segment.
func esmaPoolID(filename string) string {
	parts := strings.Split(strings.TrimSuffix(filename, ".csv"), "_")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-3]
}

// poolSize returns the total on-disk (compressed) size of a pool's files.
func (s *Session) poolSize(pool string, files map[string][]string, dir string) int64 {
	var total int64
	for _, name := range files[pool] {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			total += info.Size()
		}
	}
	return total
}

// ECBSize returns the compressed size of a pool's ECB side.
func (s *Session) ECBSize(pool string) int64 {
	return s.poolSize(pool, s.ecbFiles, s.ecbDir)
}

// ESMASize returns the on-disk size of a pool's ESMA side.
func (s *Session) ESMASize(pool string) int64 {
	return s.poolSize(pool, s.esmaFiles, s.esmaDir)
}

// isLarge reports whether a pool side exceeds the chunked-mode threshold.
func (s *Session) isLargeECB(pool string) bool {
	return s.ECBSize(pool) > s.cfg.LargePoolBytes
}

func (s *Session) isLargeESMA(pool string) bool {
	return s.ESMASize(pool) > s.cfg.LargePoolBytes
}
