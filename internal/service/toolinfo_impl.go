package service

import (
	"context"
	"runtime/debug"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/compozy/mlserver/pkg/version"
)

// Install types reported by ToolInfo.
const (
	InstallRelease = "release build"
	InstallGoBuild = "go build"
	InstallSource  = "source checkout"
	InstallUnknown = "unknown"
)

type toolInfoService struct {
	buildVersion  string
	buildCommit   string
	buildDate     string
	sourceDir     string
	readBuildInfo func() (*debug.BuildInfo, bool)
}

// NewToolInfoService resolves the tool commit from the linker-set build
// metadata, then the Go build info, then the git checkout at sourceDir.
func NewToolInfoService(sourceDir string) ToolInfoService {
	return &toolInfoService{
		buildVersion:  version.Version,
		buildCommit:   version.CommitHash,
		buildDate:     version.BuildDate,
		sourceDir:     sourceDir,
		readBuildInfo: debug.ReadBuildInfo,
	}
}

// Info reports the tool version and where its commit came from.
func (s *toolInfoService) Info(ctx context.Context) ToolInfo {
	info := ToolInfo{Version: s.buildVersion, BuildDate: s.buildDate, InstallType: InstallUnknown}
	if bi, ok := s.readBuildInfo(); ok && bi != nil {
		info.GoVersion = bi.GoVersion
	}
	commit, source := s.resolve(ctx)
	info.Commit = commit
	switch source {
	case "ldflags":
		info.InstallType = InstallRelease
		info.CommitSource = "build metadata"
	case "buildinfo":
		info.InstallType = InstallGoBuild
		info.CommitSource = "go build info"
	case "source":
		info.InstallType = InstallSource
		info.CommitSource = s.sourceDir
	}
	return info
}

// Commit returns the full or short tool commit.
func (s *toolInfoService) Commit(ctx context.Context) (string, error) {
	commit, _ := s.resolve(ctx)
	if commit == "" {
		return "", domain.ErrToolCommitUnknown
	}
	return commit, nil
}

func (s *toolInfoService) resolve(ctx context.Context) (string, string) {
	if isCommit(s.buildCommit) {
		return s.buildCommit, "ldflags"
	}
	if bi, ok := s.readBuildInfo(); ok && bi != nil {
		for _, setting := range bi.Settings {
			if setting.Key == "vcs.revision" && isCommit(setting.Value) {
				return setting.Value, "buildinfo"
			}
		}
	}
	if s.sourceDir != "" {
		repo, err := repository.NewGitRepository(s.sourceDir, "")
		if err == nil {
			if commit, err := repo.CurrentCommit(ctx); err == nil {
				return commit, "source"
			}
		}
	}
	return "", ""
}

func isCommit(s string) bool {
	if len(s) < domain.ShortCommitLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
