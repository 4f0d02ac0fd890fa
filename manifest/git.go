package manifest

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// git runs a git subcommand in dir and returns its trimmed stdout.
func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %s: %w", args[0], msg, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func gitClone(ctx context.Context, url, dest string) error {
	if _, err := git(ctx, "", "clone", "--quiet", url, dest); err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	return nil
}

// gitCheckout checks out a tag, branch or commit.
func gitCheckout(ctx context.Context, dir, ref string) error {
	_, err := git(ctx, dir, "checkout", "--quiet", ref)
	return err
}

func gitFetch(ctx context.Context, dir string) error {
	_, err := git(ctx, dir, "fetch", "--quiet", "--all", "--tags")
	return err
}

func gitCurrentCommit(ctx context.Context, dir string) (string, error) {
	return git(ctx, dir, "rev-parse", "HEAD")
}

// gitIsClean reports whether the work tree has no uncommitted changes.
func gitIsClean(ctx context.Context, dir string) (bool, error) {
	out, err := git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}
