package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"idx-flow/reference"
)

// Catalog is the instrument list and reference tables of one run.
type Catalog struct {
	Codes []string
	Ref   *reference.Lookup
}

// InstrumentSource loads the Catalog at the start of a run.
type InstrumentSource interface {
	Load(ctx context.Context) (*Catalog, error)
}

// FileSource takes instruments from the reference YAML file.
type FileSource struct {
	Path string
}

// Load implements InstrumentSource.
func (s FileSource) Load(context.Context) (*Catalog, error) {
	ref, err := reference.Load(s.Path)
	if err != nil {
		return nil, err
	}
	codes := ref.Instruments()
	if len(codes) == 0 {
		return nil, fmt.Errorf("no instruments in %s", s.Path)
	}
	return &Catalog{Codes: codes, Ref: ref}, nil
}

// InstrumentLister is satisfied by database.DB.
type InstrumentLister interface {
	ActiveInstruments(ctx context.Context) ([]string, error)
}

// DBSource takes instruments from the instruments table. The reference file is
// optional here and only supplies sectors and broker origins.
type DBSource struct {
	DB            InstrumentLister
	ReferencePath string
}

// Load implements InstrumentSource.
func (s DBSource) Load(ctx context.Context) (*Catalog, error) {
	codes, err := s.DB.ActiveInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("instrument list: %w", err)
	}
	ref := reference.Empty()
	if s.ReferencePath != "" {
		if loaded, err := reference.Load(s.ReferencePath); err != nil {
			log.Warn().Err(err).Msg("⚠️  Reference file unavailable, sectors and broker origins unknown")
		} else {
			ref = loaded
		}
	}
	return &Catalog{Codes: codes, Ref: ref}, nil
}
