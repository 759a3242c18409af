package service

import (
	"context"
	"fmt"
	"strings"

	"task-manager/internal/model"
	"task-manager/internal/repository"
)

const digestTimeLayout = "2006-01-02 15:04 MST"

// Digest is the per-user summary sent by the report dispatcher.
type Digest struct {
	Subject string
	Body    string
	Counts  map[model.TaskStatus]int
}

// DigestService builds human-readable task summaries.
type DigestService struct {
	taskRepo *repository.TaskRepository
}

func NewDigestService(taskRepo *repository.TaskRepository) *DigestService {
	return &DigestService{taskRepo: taskRepo}
}

// BuildDigest summarizes every non-deleted task of the user.
func (s *DigestService) BuildDigest(ctx context.Context, user model.User) (Digest, error) {
	tasks, err := s.taskRepo.ListForDigest(ctx, user.ID)
	if err != nil {
		return Digest{}, err
	}
	return ComposeDigest(user.Username, tasks), nil
}

// ComposeDigest groups tasks by status in model.Statuses order, keeping the
// given order inside each group.
func ComposeDigest(username string, tasks []model.Task) Digest {
	groups := make(map[model.TaskStatus][]model.Task, len(model.Statuses))
	for _, task := range tasks {
		groups[task.Status] = append(groups[task.Status], task)
	}

	counts := make(map[model.TaskStatus]int, len(model.Statuses))
	var b strings.Builder
	fmt.Fprintf(&b, "Hey there %s\nHere is your daily task summary:\n\n", username)
	for _, status := range model.Statuses {
		group := groups[status]
		counts[status] = len(group)
		fmt.Fprintf(&b, "%d %s Tasks:\n", len(group), status.Label())
		for _, task := range group {
			b.WriteString(formatDigestTask(task))
		}
		b.WriteByte('\n')
	}

	return Digest{
		Subject: fmt.Sprintf("You have %d Pending and %d in progress tasks",
			counts[model.StatusPending], counts[model.StatusInProgress]),
		Body:   b.String(),
		Counts: counts,
	}
}

func formatDigestTask(task model.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, " -> %s (%d):\n", task.Title, task.Priority)
	if desc := strings.TrimSpace(task.Description); desc != "" {
		fmt.Fprintf(&sb, "  | %s\n", desc)
	}
	fmt.Fprintf(&sb, "  | Created on %s\n", task.CreatedAt.UTC().Format(digestTimeLayout))
	return sb.String()
}
