package profiles

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML layout for importing and exporting profiles.
type File struct {
	Profiles []Profile `yaml:"profiles"`
}

// ImportYAML adds every profile in r, updating in place any existing
// profile with the same name. Nothing is written unless every entry is
// valid. It returns how many profiles were added and updated.
func ImportYAML(ctx context.Context, s Store, r io.Reader) (added, updated int, err error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return 0, 0, fmt.Errorf("decode profiles: %w", err)
	}

	for i := range f.Profiles {
		f.Profiles[i] = f.Profiles[i].withDefaults()
		if err := f.Profiles[i].Validate(); err != nil {
			return 0, 0, fmt.Errorf("profile %d (%q): %w", i+1, f.Profiles[i].Name, err)
		}
	}

	existing, err := s.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	byName := make(map[string]Profile, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	for _, p := range f.Profiles {
		if old, ok := byName[p.Name]; ok {
			p.ID = old.ID
			if err := s.Update(ctx, p); err != nil {
				return added, updated, fmt.Errorf("update %q: %w", p.Name, err)
			}
			updated++
			continue
		}
		p.ID = ""
		if err := s.Add(ctx, &p); err != nil {
			return added, updated, fmt.Errorf("add %q: %w", p.Name, err)
		}
		byName[p.Name] = p
		added++
	}
	return added, updated, nil
}

// ExportYAML writes every profile to w. Secrets are left out unless
// withSecrets is set.
func ExportYAML(ctx context.Context, s Store, w io.Writer, withSecrets bool) error {
	all, err := s.List(ctx)
	if err != nil {
		return err
	}
	if !withSecrets {
		for i := range all {
			all[i].Password = ""
			all[i].PrivateKey = ""
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Profiles: all}); err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	return enc.Close()
}
