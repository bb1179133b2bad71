package gitx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// errNotRepository indicates no git repository encloses a path.
var errNotRepository = errors.New("not in a git repository")

// GitRepo provides an abstraction for git repository operations.
type GitRepo interface {
	// Fingerprint computes a stable fingerprint for a source tree.
	Fingerprint(root string) (string, error)

	// GetFingerprintComponents returns the absolute path and git URL used to compute the fingerprint.
	GetFingerprintComponents(root string) (absPath string, gitURL string, err error)

	// Head returns the commit checked out in the repository enclosing root,
	// or "" when there is none.
	Head(root string) string
}

// RealGitRepo implements GitRepo with go-git.
type RealGitRepo struct{}

// NewRealGitRepo creates a new RealGitRepo.
func NewRealGitRepo() *RealGitRepo {
	return &RealGitRepo{}
}

func open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, errNotRepository
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}

// Fingerprint computes a stable fingerprint for the tree at root.
// It uses the absolute root path and the remote origin URL (if available),
// so trees outside git still get a fingerprint.
func (g *RealGitRepo) Fingerprint(root string) (string, error) {
	absRoot, gitURL, err := g.GetFingerprintComponents(root)
	if err != nil {
		return "", err
	}
	if gitURL == "" {
		gitURL = "unknown"
	}

	hash := sha256.Sum256([]byte(absRoot + "|" + gitURL))
	return hex.EncodeToString(hash[:]), nil
}

// GetFingerprintComponents returns the absolute path and git URL used to compute the fingerprint.
func (g *RealGitRepo) GetFingerprintComponents(root string) (string, string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absRoot, originURL(absRoot), nil
}

func originURL(root string) string {
	repo, err := open(root)
	if err != nil {
		return ""
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return ""
	}
	if urls := remote.Config().URLs; len(urls) > 0 {
		return urls[0]
	}
	return ""
}

// Head returns the hash of the checked-out commit.
func (g *RealGitRepo) Head(root string) string {
	repo, err := open(root)
	if err != nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}
