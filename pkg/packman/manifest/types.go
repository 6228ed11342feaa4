// Package manifest is packman's durable ledger of installed packages: what
// each package owns, the checksum of every owned file, the backups of
// files that existed before packman touched them and the files left
// behind as orphans.
package manifest

// FormatVersion is written into every manifest file.
const FormatVersion = 1

// Package is one installed package.
type Package struct {
	// Version is empty for packages from unversioned sources.
	Version   string            `json:"version"`
	Options   []string          `json:"options,omitempty"`
	Files     []string          `json:"files"`
	Checksums map[string]string `json:"checksums"`
}

// Option returns the option the package was installed with, if any.
func (p *Package) Option() string {
	if len(p.Options) == 0 {
		return ""
	}
	return p.Options[0]
}

func (p *Package) clone() *Package {
	out := &Package{
		Version:   p.Version,
		Options:   append([]string(nil), p.Options...),
		Files:     append([]string(nil), p.Files...),
		Checksums: make(map[string]string, len(p.Checksums)),
	}
	for k, v := range p.Checksums {
		out.Checksums[k] = v
	}
	return out
}

// document is the on-disk form of a Manifest.
type document struct {
	Version         int                 `json:"version"`
	Packages        map[string]*Package `json:"packages"`
	FileMap         map[string][]string `json:"file_map"`
	OriginalFiles   map[string]string   `json:"original_files"`
	OrphanedFiles   []string            `json:"orphaned_files"`
	ChecksumHistory map[string][]string `json:"checksum_history"`
}
