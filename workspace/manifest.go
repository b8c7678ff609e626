package workspace

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/apiprobe/apiprobe/errors"
)

// Manifest optionally maps entities to the feature files and tags that
// exercise them. Lives at <projectDir>/manifest.yaml; projects without one
// fall back to the features/<entity>.feature convention.
type Manifest struct {
	Project  string                  `yaml:"project"`
	Entities map[string]EntityTarget `yaml:"entities"`
}

// EntityTarget names the feature files and tags for one entity
type EntityTarget struct {
	Features []string `yaml:"features"`
	Tags     []string `yaml:"tags"`
}

// Target is the resolved run scope for one execution: feature paths relative
// to the project dir, plus any tags the manifest pins to the entity
type Target struct {
	FeaturePaths []string
	Tags         []string
}

// LoadManifest reads a project's manifest.yaml.
// Returns (nil, nil) when the project has no manifest.
func LoadManifest(projectDir string) (*Manifest, error) {
	manifestPath := filepath.Join(projectDir, ManifestFileName)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read manifest %s", manifestPath)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", manifestPath)
	}
	return &manifest, nil
}

// ResolveTarget resolves the feature paths and tags for an entity.
//
// Resolution order:
//  1. entity listed in manifest.yaml -> its features and tags
//  2. no entity given -> the whole features/ directory
//  3. fallback -> features/<entity>.feature by convention
//
// A broken manifest is an error; a missing one is not.
func (m *Manager) ResolveTarget(projectID, entity string) (Target, error) {
	projectDir := m.ProjectDir(projectID)

	manifest, err := LoadManifest(projectDir)
	if err != nil {
		return Target{}, err
	}

	if manifest != nil && entity != "" {
		if target, ok := manifest.Entities[entity]; ok && len(target.Features) > 0 {
			return Target{
				FeaturePaths: target.Features,
				Tags:         target.Tags,
			}, nil
		}
	}

	if entity == "" {
		return Target{FeaturePaths: []string{FeaturesDirName}}, nil
	}

	conventional := filepath.Join(FeaturesDirName, entity+".feature")
	if _, err := os.Stat(filepath.Join(projectDir, conventional)); err != nil {
		m.logger.Debugw("Conventional feature file not found, passing through to runner",
			"project_id", projectID,
			"entity", entity,
			"path", conventional)
	}
	return Target{FeaturePaths: []string{conventional}}, nil
}
