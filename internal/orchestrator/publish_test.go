package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/compozy/mlserver/internal/domain"
	"github.com/compozy/mlserver/internal/project"
	"github.com/compozy/mlserver/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testProjectPath = "/work/reviews"
	testToolCommit  = "b5dff2a9f00c1d2e3f4a5b6c7d8e9f0a1b2c3d4e"
)

func testProject() *project.Config {
	return &project.Config{
		Path:        "mlserver.yaml",
		Multi:       true,
		Classifiers: []string{"sentiment", "fraud"},
		Default:     "sentiment",
		Versions:    map[string]string{"sentiment": "1.5.0"},
	}
}

func newPublish(t *testing.T, git repository.GitInspector, container *mockContainerService) *PublishOrchestrator {
	if container == nil {
		container = new(mockContainerService)
	}
	return NewPublishOrchestrator(git, testProject(), container, toolCommit(testToolCommit, nil),
		testProjectPath, zaptest.NewLogger(t))
}

// taggedRepo returns a repository whose HEAD carries sentiment-v1.2.0.
func taggedRepo(t *testing.T) *repository.MemoryRepository {
	t.Helper()
	git := repository.NewMemoryRepository()
	head, err := git.CurrentCommit(context.Background())
	require.NoError(t, err)
	git.Tag("sentiment-v1.2.0-mlserver-b5dff2a", head)
	return git
}

func TestPublishOrchestrator_ValidateAndResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Should allow a clean tagged commit using the tag version", func(t *testing.T) {
		o := newPublish(t, taggedRepo(t), nil)
		decision, err := o.ValidateAndResolve(ctx, "sentiment", domain.VersionSourceAuto, false)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.True(t, decision.OnTaggedCommit)
		assert.Equal(t, domain.VersionSourceGitTag, decision.VersionSource)
		assert.Equal(t, "1.2.0", decision.VersionUsed.Plain())
		assert.Equal(t, "sentiment-v1.2.0-mlserver-b5dff2a", decision.Tag)
		assert.Empty(t, decision.ValidationErrors)
		assert.Contains(t, decision.ValidationWarnings[0], "differs from tag version")
	})

	t.Run("Should refuse a dirty tree unless forced", func(t *testing.T) {
		git := taggedRepo(t)
		git.SetDirty(&domain.DirtyError{Untracked: []string{"model.pkl"}})
		o := newPublish(t, git, nil)

		decision, err := o.ValidateAndResolve(ctx, "sentiment", domain.VersionSourceAuto, false)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.ValidationErrors[0], "not clean")

		forced, err := o.ValidateAndResolve(ctx, "sentiment", domain.VersionSourceAuto, true)
		require.NoError(t, err)
		assert.True(t, forced.Allowed)
		assert.NotEmpty(t, forced.ValidationErrors)
	})

	t.Run("Should fall back to the configured version off the tagged commit", func(t *testing.T) {
		git := taggedRepo(t)
		git.Commit()
		o := newPublish(t, git, nil)
		decision, err := o.ValidateAndResolve(ctx, "sentiment", "", false)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.False(t, decision.OnTaggedCommit)
		assert.Equal(t, domain.VersionSourceConfig, decision.VersionSource)
		assert.Equal(t, "1.5.0", decision.VersionUsed.Plain())
		assert.Empty(t, decision.Tag)
		assert.Contains(t, decision.ValidationErrors[0], "not on a tagged commit")
	})

	t.Run("Should use the tag version when git-tag is requested off the tagged commit", func(t *testing.T) {
		git := taggedRepo(t)
		git.Commit()
		o := newPublish(t, git, nil)
		decision, err := o.ValidateAndResolve(ctx, "sentiment", domain.VersionSourceGitTag, false)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, "1.2.0", decision.VersionUsed.Plain())
	})

	t.Run("Should fail without any version source", func(t *testing.T) {
		o := newPublish(t, repository.NewMemoryRepository(), nil)
		_, err := o.ValidateAndResolve(ctx, "fraud", domain.VersionSourceAuto, true)
		assert.ErrorIs(t, err, domain.ErrNoVersionAvailable)
	})

	t.Run("Should not fall back when a source is explicit", func(t *testing.T) {
		o := newPublish(t, taggedRepo(t), nil)
		_, err := o.ValidateAndResolve(ctx, "fraud", domain.VersionSourceConfig, false)
		assert.ErrorIs(t, err, domain.ErrNoVersionAvailable)

		o = newPublish(t, repository.NewMemoryRepository(), nil)
		_, err = o.ValidateAndResolve(ctx, "sentiment", domain.VersionSourceGitTag, false)
		assert.ErrorIs(t, err, domain.ErrNoVersionAvailable)
	})

	t.Run("Should report a malformed latest tag", func(t *testing.T) {
		git := repository.NewMemoryRepository()
		head, _ := git.CurrentCommit(ctx)
		git.Tag("sentiment-v1.2-mlserver-b5dff2a", head)
		o := newPublish(t, git, nil)
		decision, err := o.ValidateAndResolve(ctx, "sentiment", domain.VersionSourceAuto, false)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.ValidationErrors[0], "format invalid")
		assert.Equal(t, domain.VersionSourceConfig, decision.VersionSource)
	})

	t.Run("Should report unknown classifiers", func(t *testing.T) {
		git := repository.NewMemoryRepository()
		head, _ := git.CurrentCommit(ctx)
		git.Tag("churn-v1.0.0-mlserver-b5dff2a", head)
		o := newPublish(t, git, nil)
		decision, err := o.ValidateAndResolve(ctx, "churn", domain.VersionSourceAuto, false)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Contains(t, decision.ValidationErrors[0], "not found")
	})

	t.Run("Should abort on repository errors", func(t *testing.T) {
		git := repository.NewMemoryRepository()
		git.Err = errors.New("not a git repository")
		o := newPublish(t, git, nil)
		_, err := o.ValidateAndResolve(ctx, "sentiment", domain.VersionSourceAuto, true)
		var repoErr *domain.RepositoryError
		assert.True(t, errors.As(err, &repoErr))
	})
}

func TestPublishOrchestrator_CheckProvenance(t *testing.T) {
	ctx := context.Background()

	t.Run("Should match when HEAD and tool are the tagged commits", func(t *testing.T) {
		o := newPublish(t, taggedRepo(t), nil)
		sel, err := domain.ParseSelector("sentiment-v1.2.0-mlserver-b5dff2a")
		require.NoError(t, err)
		check, err := o.CheckProvenance(ctx, sel)
		require.NoError(t, err)
		assert.False(t, check.RequiresConfirmation())
		assert.Equal(t, "b5dff2a", check.CurrentToolCommit)
		assert.Len(t, check.TagClassifierCommit, domain.ShortCommitLength)
	})

	t.Run("Should flag a classifier mismatch after new commits", func(t *testing.T) {
		git := taggedRepo(t)
		git.Commit()
		o := newPublish(t, git, nil)
		sel, _ := domain.ParseSelector("sentiment-v1.2.0-mlserver-b5dff2a")
		check, err := o.CheckProvenance(ctx, sel)
		require.NoError(t, err)
		assert.True(t, check.ClassifierMismatch)
		assert.False(t, check.ToolMismatch)
		assert.True(t, check.RequiresConfirmation())
	})

	t.Run("Should flag a tool mismatch", func(t *testing.T) {
		git := repository.NewMemoryRepository()
		head, _ := git.CurrentCommit(ctx)
		git.Tag("sentiment-v1.2.0-mlserver-1111111", head)
		o := newPublish(t, git, nil)
		sel, _ := domain.ParseSelector("sentiment-v1.2.0-mlserver-1111111")
		check, err := o.CheckProvenance(ctx, sel)
		require.NoError(t, err)
		assert.True(t, check.ToolMismatch)
		assert.False(t, check.ClassifierMismatch)
	})

	t.Run("Should not count unknown sides as mismatches", func(t *testing.T) {
		git := repository.NewMemoryRepository()
		git.Commit()
		o := NewPublishOrchestrator(git, testProject(), new(mockContainerService),
			toolCommit("", domain.ErrToolCommitUnknown), testProjectPath, zaptest.NewLogger(t))
		sel, _ := domain.ParseSelector("sentiment-v9.9.9-mlserver-1111111")
		check, err := o.CheckProvenance(ctx, sel)
		require.NoError(t, err)
		assert.Empty(t, check.TagClassifierCommit)
		assert.Empty(t, check.CurrentToolCommit)
		assert.False(t, check.RequiresConfirmation())
	})

	t.Run("Should reject simple names", func(t *testing.T) {
		o := newPublish(t, taggedRepo(t), nil)
		sel, _ := domain.ParseSelector("sentiment")
		_, err := o.CheckProvenance(ctx, sel)
		assert.Error(t, err)
	})
}

func TestPublishOrchestrator_Push(t *testing.T) {
	t.Run("Should report partial failures", func(t *testing.T) {
		container := new(mockContainerService)
		container.On("Push", mock.Anything, "l1", "r1").Return(nil)
		container.On("Push", mock.Anything, "l2", "r2").Return(errors.New("denied"))
		container.On("Push", mock.Anything, "l3", "r3").Return(nil)
		o := newPublish(t, repository.NewMemoryRepository(), container)

		result := o.Push(context.Background(), []string{"l1", "l2", "l3"}, []string{"r1", "r2", "r3"})

		assert.Equal(t, []string{"r1", "r3"}, result.PushedTags)
		assert.Equal(t, []string{"r2"}, result.FailedTags)
		assert.Equal(t, "denied", result.Errors["r2"])
		assert.False(t, result.Success)
		container.AssertNumberOfCalls(t, "Push", 3)
	})

	t.Run("Should succeed when every image is pushed", func(t *testing.T) {
		container := new(mockContainerService)
		container.On("Push", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		o := newPublish(t, repository.NewMemoryRepository(), container)

		result := o.Push(context.Background(), []string{"l1"}, []string{"r1"})

		assert.True(t, result.Success)
		assert.Empty(t, result.FailedTags)
	})
}

func TestPublishOrchestrator_SafePush(t *testing.T) {
	ctx := context.Background()

	t.Run("Should push version, hierarchical and latest images", func(t *testing.T) {
		container := new(mockContainerService)
		container.On("Available", mock.Anything).Return(nil)
		container.On("Push", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		o := newPublish(t, taggedRepo(t), container)

		result, err := o.SafePush(ctx, PushRequest{Classifier: "sentiment", Registry: "registry.example.com"})

		require.NoError(t, err)
		assert.True(t, result.Push.Success)
		assert.Equal(t, []string{
			"registry.example.com/reviews/sentiment:1.2.0",
			"registry.example.com/reviews/sentiment:sentiment-v1.2.0-mlserver-b5dff2a",
			"registry.example.com/reviews/sentiment:latest",
		}, result.Push.PushedTags)
		container.AssertCalled(t, "Push", mock.Anything, "reviews/sentiment:1.2.0",
			"registry.example.com/reviews/sentiment:1.2.0")
	})

	t.Run("Should not push when the gate refuses", func(t *testing.T) {
		git := taggedRepo(t)
		git.Commit()
		container := new(mockContainerService)
		container.On("Available", mock.Anything).Return(nil)
		o := newPublish(t, git, container)

		result, err := o.SafePush(ctx, PushRequest{Classifier: "sentiment", Registry: "registry.example.com"})

		assert.ErrorIs(t, err, ErrPublishNotAllowed)
		require.NotNil(t, result)
		assert.False(t, result.Decision.Allowed)
		container.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should reject an invalid registry before touching docker", func(t *testing.T) {
		container := new(mockContainerService)
		o := newPublish(t, taggedRepo(t), container)
		_, err := o.SafePush(ctx, PushRequest{Classifier: "sentiment", Registry: "Bad Registry"})
		assert.Error(t, err)
		container.AssertNotCalled(t, "Available", mock.Anything)
	})
}
