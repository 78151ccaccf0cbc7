package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

type commandRunner func(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error)

type dockerService struct {
	binary       string
	buildTimeout time.Duration
	run          commandRunner
	logger       *zap.Logger
}

// NewDockerService drives the docker CLI found as binary.
func NewDockerService(binary string, buildTimeout time.Duration, logger *zap.Logger) ContainerService {
	if binary == "" {
		binary = "docker"
	}
	if buildTimeout <= 0 {
		buildTimeout = DefaultBuildTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dockerService{binary: binary, buildTimeout: buildTimeout, run: executeCommand, logger: logger}
}

// executeCommand runs a command with timeout and proper resource cleanup.
func executeCommand(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s timed out after %v", name, args[0], timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s failed: %w (stderr: %s)", name, args[0], err, msg)
		}
		return nil, fmt.Errorf("%s %s failed: %w", name, args[0], err)
	}
	return stdout.Bytes(), nil
}

// Available checks that the docker daemon answers.
func (s *dockerService) Available(ctx context.Context) error {
	if _, err := s.run(ctx, DefaultCommandTimeout, s.binary, "info", "--format", "{{.ServerVersion}}"); err != nil {
		return fmt.Errorf("docker is not available: %w", err)
	}
	return nil
}

// Build builds the classifier image once and tags it with every local reference.
func (s *dockerService) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	refs, err := LocalImages(req.Images)
	if err != nil {
		return BuildResult{}, err
	}
	images := RefNames(refs)
	args := []string{"build"}
	if req.Dockerfile != "" {
		dockerfile := req.Dockerfile
		if !filepath.IsAbs(dockerfile) {
			dockerfile = filepath.Join(req.ProjectPath, dockerfile)
		}
		args = append(args, "--file", dockerfile)
	}
	for _, img := range images {
		args = append(args, "--tag", img)
	}
	if req.NoCache {
		args = append(args, "--no-cache")
	}
	buildArgs := map[string]string{"MLSERVER_CLASSIFIER": req.Images.Classifier}
	for k, v := range req.BuildArgs {
		buildArgs[k] = v
	}
	for _, k := range sortedKeys(buildArgs) {
		args = append(args, "--build-arg", k+"="+buildArgs[k])
	}
	labels := map[string]string{
		LabelClassifier: req.Images.Classifier,
		LabelVersion:    req.Images.Version.Plain(),
	}
	if req.ToolCommit != "" {
		labels[LabelToolCommit] = req.ToolCommit
	}
	if req.ClassifierCommit != "" {
		labels[LabelRevision] = req.ClassifierCommit
	}
	if req.Images.Tag != nil {
		labels[LabelHierarchicalTag] = req.Images.Tag.String()
	}
	for _, k := range sortedKeys(labels) {
		args = append(args, "--label", k+"="+labels[k])
	}
	args = append(args, req.ProjectPath)
	s.logger.Info("building image",
		zap.String("classifier", req.Images.Classifier),
		zap.Strings("images", images))
	if _, err := s.run(ctx, s.buildTimeout, s.binary, args...); err != nil {
		return BuildResult{}, fmt.Errorf("failed to build %s: %w", req.Images.Classifier, err)
	}
	return BuildResult{Images: images}, nil
}

// Push tags local as remote and pushes remote.
func (s *dockerService) Push(ctx context.Context, local, remote string) error {
	if _, err := s.run(ctx, DefaultCommandTimeout, s.binary, "tag", local, remote); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", local, remote, err)
	}
	if _, err := s.run(ctx, DefaultPushTimeout, s.binary, "push", remote); err != nil {
		return fmt.Errorf("failed to push %s: %w", remote, err)
	}
	return nil
}

// RemoveImages force-removes local images.
func (s *dockerService) RemoveImages(ctx context.Context, images []string) error {
	if len(images) == 0 {
		return nil
	}
	args := append([]string{"rmi", "--force"}, images...)
	if _, err := s.run(ctx, DefaultCommandTimeout, s.binary, args...); err != nil {
		return fmt.Errorf("failed to remove images: %w", err)
	}
	return nil
}

const listImagesFormat = "{{.Repository}}:{{.Tag}}\t{{.ID}}\t{{.CreatedSince}}\t{{.Size}}"

// ListImages lists the tagged images of every classifier of the repository.
func (s *dockerService) ListImages(ctx context.Context, repository string) ([]ImageInfo, error) {
	out, err := s.run(ctx, DefaultCommandTimeout, s.binary,
		"images", "--filter", "reference="+repository+"/*", "--format", listImagesFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	var images []ImageInfo
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 || strings.HasSuffix(fields[0], ":<none>") {
			continue
		}
		images = append(images, ImageInfo{Reference: fields[0], ID: fields[1], Created: fields[2], Size: fields[3]})
	}
	return images, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
