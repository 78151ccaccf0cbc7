package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/google/go-containerregistry/pkg/name"
)

var invalidRepoChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// ImageParams identifies the images produced for one classifier release.
type ImageParams struct {
	// Repository is the image repository name, usually the project directory name.
	Repository string
	Classifier string
	Version    *domain.Version
	// Tag is the hierarchical tag of the release, when the build is tagged.
	Tag       *domain.HierarchicalTag
	Registry  string
	TagPrefix string
}

// RepositoryName derives an image repository name from a project path.
func RepositoryName(projectPath string) string {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	base := strings.ToLower(filepath.Base(abs))
	base = strings.Trim(invalidRepoChars.ReplaceAllString(base, "-"), "-._")
	if base == "" {
		return "mlserver"
	}
	return base
}

// imageTags lists the tags every release image carries: the plain version,
// the hierarchical tag when known, and latest.
func imageTags(p ImageParams) []string {
	tags := []string{p.Version.Plain()}
	if p.Tag != nil {
		tags = append(tags, p.Tag.String())
	}
	tags = append(tags, LatestImageTag)
	if p.TagPrefix == "" {
		return tags
	}
	for i, t := range tags {
		tags[i] = p.TagPrefix + "-" + t
	}
	return tags
}

// LocalImages returns the image references created by a build.
func LocalImages(p ImageParams) ([]name.Tag, error) {
	return references(p, "")
}

// RemoteImages returns the image references pushed to the registry.
func RemoteImages(p ImageParams) ([]name.Tag, error) {
	if p.Registry == "" {
		return nil, fmt.Errorf("registry is required")
	}
	return references(p, strings.TrimSuffix(p.Registry, "/"))
}

func references(p ImageParams, registry string) ([]name.Tag, error) {
	if p.Version == nil {
		return nil, fmt.Errorf("version is required")
	}
	// Image repositories are lowercase; the tag keeps the classifier's case.
	repo := p.Repository + "/" + strings.ToLower(p.Classifier)
	if registry != "" {
		repo = registry + "/" + repo
	}
	var refs []name.Tag
	for _, t := range imageTags(p) {
		ref, err := name.NewTag(repo+":"+t, name.WithDefaultRegistry(""))
		if err != nil {
			return nil, fmt.Errorf("invalid image reference %s:%s: %w", repo, t, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ValidateRegistry checks that a registry host and optional namespace form a
// valid image repository prefix.
func ValidateRegistry(registry string) error {
	if registry == "" {
		return fmt.Errorf("registry is required")
	}
	if _, err := name.NewRepository(strings.TrimSuffix(registry, "/")+"/image", name.WithDefaultRegistry("")); err != nil {
		return fmt.Errorf("invalid registry %q: %w", registry, err)
	}
	return nil
}

// RefNames converts references to their string form.
func RefNames(refs []name.Tag) []string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name()
	}
	return names
}
