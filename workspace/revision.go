package workspace

import (
	git "github.com/go-git/go-git/v5"
)

// Revision returns the short HEAD commit hash when the project directory is a
// git repository. Best-effort: any failure (not a repo, detached state,
// unborn HEAD) yields an empty string; executions record whatever we resolve.
func (m *Manager) Revision(projectID string) string {
	repo, err := git.PlainOpen(m.ProjectDir(projectID))
	if err != nil {
		return ""
	}

	head, err := repo.Head()
	if err != nil {
		return ""
	}

	return head.Hash().String()[:7]
}
