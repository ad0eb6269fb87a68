package records

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"fieldsync/internal/entity"
)

// Bundle is a YAML fixture of local records, e.g. exported from a capture
// device or hand-written for field tests.
type Bundle struct {
	Sessions     []entity.Session     `yaml:"sessions"`
	SetupConfigs []entity.SetupConfig `yaml:"setup_configs"`
	Phases       []entity.Phase       `yaml:"phases"`
	Frames       []entity.Frame       `yaml:"frames"`
}

// ImportSummary counts what an import wrote.
type ImportSummary struct {
	Sessions     int `json:"sessions"`
	SetupConfigs int `json:"setup_configs"`
	Phases       int `json:"phases"`
	Frames       int `json:"frames"`
}

// ImportFile reads a bundle from path and imports it.
func (s *Store) ImportFile(ctx context.Context, path string) (ImportSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()
	return s.ImportYAML(ctx, file)
}

// ImportYAML saves every record in the bundle through the regular write
// paths, parents first, so each one is enqueued like a local edit. Session
// edit times from the bundle are kept.
func (s *Store) ImportYAML(ctx context.Context, r io.Reader) (ImportSummary, error) {
	var bundle Bundle
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&bundle); err != nil {
		if err == io.EOF {
			return ImportSummary{}, nil
		}
		return ImportSummary{}, invalid("import", "parse bundle: "+err.Error())
	}

	var summary ImportSummary
	for _, session := range bundle.Sessions {
		if _, err := s.saveSession(ctx, session, true); err != nil {
			return summary, fmt.Errorf("import session %s: %w", session.ID, err)
		}
		summary.Sessions++
	}
	for _, setup := range bundle.SetupConfigs {
		if _, err := s.SaveSetupConfig(ctx, setup); err != nil {
			return summary, fmt.Errorf("import setup config %s: %w", setup.ID, err)
		}
		summary.SetupConfigs++
	}
	for _, phase := range bundle.Phases {
		if _, err := s.SavePhase(ctx, phase); err != nil {
			return summary, fmt.Errorf("import phase %s: %w", phase.ID, err)
		}
		summary.Phases++
	}

	bySession := make(map[string][]entity.Frame)
	var order []string
	for _, frame := range bundle.Frames {
		if _, seen := bySession[frame.SessionID]; !seen {
			order = append(order, frame.SessionID)
		}
		bySession[frame.SessionID] = append(bySession[frame.SessionID], frame)
	}
	for _, sessionID := range order {
		frames := bySession[sessionID]
		if err := s.SaveFrames(ctx, sessionID, frames); err != nil {
			return summary, fmt.Errorf("import frames for %s: %w", sessionID, err)
		}
		summary.Frames += len(frames)
	}
	return summary, nil
}
