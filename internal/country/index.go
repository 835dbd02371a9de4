package country

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/loantape/internal/frame"
	"github.com/sells-group/loantape/internal/reconcile"
)

var bucketDirs = []string{
	reconcile.BucketMatched,
	reconcile.BucketECBOnly,
	reconcile.BucketESMAOnly,
}

// PoolFile is one reconciled pool file assigned to a country.
type PoolFile struct {
	Path    string
	Pool    string
	Bucket  string
	Country string
}

// Index maps each detected country to its contributing pool files, in
// bucket order then filename order, so country outputs are reproducible.
type Index struct {
	Countries map[string][]PoolFile
}

// CountryNames returns the indexed countries sorted alphabetically.
func (x *Index) CountryNames() []string {
	names := make([]string, 0, len(x.Countries))
	for c := range x.Countries {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

// BuildIndex samples every reconciled pool file under the three bucket
// subdirectories and assigns each to a country. Detection never fails a
// file: an undetectable country lands in the Unknown group.
func BuildIndex(ctx context.Context, mergedDir string, sampleRows int) (*Index, error) {
	index := &Index{Countries: make(map[string][]PoolFile)}

	for _, bucket := range bucketDirs {
		dir := filepath.Join(mergedDir, bucket)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "country: read bucket dir %s", dir)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".csv") {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			path := filepath.Join(dir, name)
			pool := strings.TrimSuffix(name, ".csv")
			sample, err := frame.ReadSample(path, sampleRows)
			if err != nil {
				zap.L().Warn("country: cannot sample pool file, assigning unknown",
					zap.String("file", name),
					zap.Error(err),
				)
				sample = frame.New()
			}
			code := Detect(sample, pool)
			index.Countries[code] = append(index.Countries[code], PoolFile{
				Path:    path,
				Pool:    pool,
				Bucket:  bucket,
				Country: code,
			})
		}
	}

	for code := range index.Countries {
		files := index.Countries[code]
		sort.Slice(files, func(i, j int) bool {
			if files[i].Bucket != files[j].Bucket {
				return bucketRank(files[i].Bucket) < bucketRank(files[j].Bucket)
			}
			return files[i].Pool < files[j].Pool
		})
	}

	zap.L().Info("country: index built",
		zap.Int("countries", len(index.Countries)),
	)
	return index, nil
}

func bucketRank(bucket string) int {
	for i, b := range bucketDirs {
		if b == bucket {
			return i
		}
	}
	return len(bucketDirs)
}
