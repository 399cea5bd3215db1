// Package seed loads a directory dataset described in YAML into the store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/NiKuma0/secunda-tz/internal/directory/db"
	dbmodels "github.com/NiKuma0/secunda-tz/internal/directory/db/models"
	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/NiKuma0/secunda-tz/internal/directory/integrity"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed dataset.yaml
var defaultDataset []byte

type Building struct {
	ID      int64      `yaml:"id"`
	Address string     `yaml:"address"`
	Point   [2]float64 `yaml:"point"`
}

type Specialization struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Parent *int64 `yaml:"parent"`
}

type Organization struct {
	ID              int64   `yaml:"id"`
	Name            string  `yaml:"name"`
	Phone           string  `yaml:"phone"`
	Building        int64   `yaml:"building"`
	Specializations []int64 `yaml:"specializations"`
}

// Dataset is a self-contained directory: every reference points inside it.
type Dataset struct {
	Buildings       []Building       `yaml:"buildings"`
	Specializations []Specialization `yaml:"specializations"`
	Organizations   []Organization   `yaml:"organizations"`
}

// Default returns the embedded demo dataset.
func Default() (*Dataset, error) {
	return Parse(defaultDataset)
}

// ReadFile parses the dataset stored at path.
func ReadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a YAML dataset.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: dataset: %v", e.ErrInvalidInput, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks ids are unique and positive, references resolve,
// coordinates are in range and the specialization tree respects the depth
// limit.
func (ds *Dataset) Validate() error {
	buildings := make(map[int64]bool, len(ds.Buildings))
	for _, b := range ds.Buildings {
		if b.ID <= 0 || buildings[b.ID] {
			return e.InvalidInput("building id %d is not positive or repeated", b.ID)
		}
		if b.Address == "" {
			return e.InvalidInput("building %d has no address", b.ID)
		}
		lon, lat := b.Point[0], b.Point[1]
		if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return e.InvalidInput("building %d has coordinates out of range", b.ID)
		}
		buildings[b.ID] = true
	}

	parents := make(map[int64]*int64, len(ds.Specializations))
	for _, s := range ds.Specializations {
		if _, dup := parents[s.ID]; s.ID <= 0 || dup {
			return e.InvalidInput("specialization id %d is not positive or repeated", s.ID)
		}
		parents[s.ID] = s.Parent
	}
	lookup := func(_ context.Context, id int64) (*int64, error) {
		p, ok := parents[id]
		if !ok {
			return nil, &e.NotFoundError{Resource: "specialization", ID: id}
		}
		return p, nil
	}
	for _, s := range ds.Specializations {
		if _, err := integrity.CheckDepth(context.Background(), s.ID, s.Parent, lookup); err != nil {
			return fmt.Errorf("specialization %d: %w", s.ID, err)
		}
	}

	orgs := make(map[int64]bool, len(ds.Organizations))
	for _, o := range ds.Organizations {
		if o.ID <= 0 || orgs[o.ID] {
			return e.InvalidInput("organization id %d is not positive or repeated", o.ID)
		}
		if !buildings[o.Building] {
			return e.InvalidInput("organization %d references unknown building %d", o.ID, o.Building)
		}
		for _, sid := range o.Specializations {
			if _, ok := parents[sid]; !ok {
				return e.InvalidInput("organization %d references unknown specialization %d", o.ID, sid)
			}
		}
		orgs[o.ID] = true
	}
	return nil
}

// specializationOrder returns the specializations with every parent ahead
// of its children. Validate guarantees the tree is acyclic.
func (ds *Dataset) specializationOrder() []Specialization {
	depth := make(map[int64]int, len(ds.Specializations))
	byID := make(map[int64]Specialization, len(ds.Specializations))
	for _, s := range ds.Specializations {
		byID[s.ID] = s
	}
	var level func(id int64) int
	level = func(id int64) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 1
		if p := byID[id].Parent; p != nil {
			d = level(*p) + 1
		}
		depth[id] = d
		return d
	}

	ordered := append([]Specialization(nil), ds.Specializations...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return level(ordered[i].ID) < level(ordered[j].ID)
	})
	return ordered
}

// Store is the write side the seeder needs.
type Store interface {
	WithWriteTransaction(ctx context.Context, fn func(w *db.Writer) error) error
}

type Options struct {
	// Reset empties the directory before loading.
	Reset bool
}

type Seeder struct {
	store  Store
	logger *zap.Logger
}

func NewSeeder(store Store, logger *zap.Logger) *Seeder {
	return &Seeder{store: store, logger: logger.Named("seed")}
}

// Load writes ds in a single transaction, so a failure leaves the store as
// it was.
func (s *Seeder) Load(ctx context.Context, ds *Dataset, opts Options) error {
	if err := ds.Validate(); err != nil {
		return err
	}

	err := s.store.WithWriteTransaction(ctx, func(w *db.Writer) error {
		if opts.Reset {
			s.logger.Info("resetting directory")
			if err := w.Reset(); err != nil {
				return err
			}
		}

		for _, b := range ds.Buildings {
			err := w.CreateBuilding(&dbmodels.Building{
				ID:      b.ID,
				Address: b.Address,
				Point:   dbmodels.Point{Longitude: b.Point[0], Latitude: b.Point[1]},
			})
			if err != nil {
				return err
			}
		}

		for _, sp := range ds.specializationOrder() {
			err := w.CreateSpecialization(&dbmodels.Specialization{ID: sp.ID, Name: sp.Name, ParentID: sp.Parent})
			if err != nil {
				return fmt.Errorf("specialization %d: %w", sp.ID, err)
			}
		}

		for _, o := range ds.Organizations {
			if err := w.CreateOrganization(&dbmodels.Organization{ID: o.ID, Name: o.Name, Phone: o.Phone}); err != nil {
				return err
			}
			if err := w.AssignBuilding(o.ID, o.Building); err != nil {
				return fmt.Errorf("organization %d: %w", o.ID, err)
			}
			for _, sid := range o.Specializations {
				if err := w.AssignSpecialization(o.ID, sid); err != nil {
					return fmt.Errorf("organization %d: %w", o.ID, err)
				}
			}
		}

		return w.ResyncSequences()
	})
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	s.logger.Info("dataset loaded",
		zap.Int("buildings", len(ds.Buildings)),
		zap.Int("specializations", len(ds.Specializations)),
		zap.Int("organizations", len(ds.Organizations)),
	)
	return nil
}
