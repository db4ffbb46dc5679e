// Package cfg holds process-wide tunables for the resolution core,
// composed the way the teacher's cmn.Config composes typed sub-configs.
package cfg

import "fmt"

// Validator is satisfied by every sub-config so Config.Validate can walk
// them uniformly, mirroring the teacher's cmn.Config validation style.
type Validator interface {
	Validate() error
}

// ObjHash tunes the content-addressed de-duplication table.
type ObjHash struct {
	Rows  uint32 `json:"rows"`  // must be a power of two
	Locks uint32 `json:"locks"` // must be zero or a power of two
}

func (c ObjHash) Validate() error {
	if c.Rows == 0 || c.Rows&(c.Rows-1) != 0 {
		return fmt.Errorf("objhash: rows (%d) must be a power of two", c.Rows)
	}
	if c.Locks != 0 && c.Locks&(c.Locks-1) != 0 {
		return fmt.Errorf("objhash: locks (%d) must be zero or a power of two", c.Locks)
	}
	return nil
}

// Segment tunes segmented-confset array growth.
type Segment struct {
	GrowthQuantum int `json:"growth_quantum"` // slots added per realloc
}

func (c Segment) Validate() error {
	if c.GrowthQuantum <= 0 {
		return fmt.Errorf("segment: growth quantum must be positive, got %d", c.GrowthQuantum)
	}
	return nil
}

// Lookup tunes strict vs. lenient behavior for out-of-range references.
type Lookup struct {
	Strict bool `json:"strict"` // ORs fileprefs.BuilderFlagStrict into policy parses: attachments to discarded lists and forbidden external references become errors instead of being dropped; identity bundle references are checked the same way with or without it
}

func (Lookup) Validate() error { return nil }

// Compression tunes transparent decompression of primitive-list files.
type Compression struct {
	GzipTransparent bool `json:"gzip_transparent"`
}

func (Compression) Validate() error { return nil }

// Config is the process-wide tunable set, assembled once at process start
// and never mutated afterward - the same "small typed sub-configs composed
// by embedding" style as the teacher's cmn.Config.
type Config struct {
	ObjHash     ObjHash     `json:"objhash"`
	Segment     Segment     `json:"segment"`
	Lookup      Lookup      `json:"lookup"`
	Compression Compression `json:"compression"`
}

// Default returns the tunables used throughout this module's own tests.
func Default() Config {
	return Config{
		ObjHash:     ObjHash{Rows: 1024, Locks: 64},
		Segment:     Segment{GrowthQuantum: 10},
		Lookup:      Lookup{Strict: false},
		Compression: Compression{GzipTransparent: true},
	}
}

func (c Config) Validate() error {
	for _, v := range []Validator{c.ObjHash, c.Segment, c.Lookup, c.Compression} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
