package sources

import (
	"context"
	"errors"
	"fmt"

	"ahjosync/internal/ahjo"
	"ahjosync/internal/repo"
	"ahjosync/internal/worker"
)

// ImportExecutor is the concrete executor behind the queue worker: one
// task means "re-fetch these records and upsert them locally".
type ImportExecutor struct {
	Client *ahjo.Client
	Repo   repo.Repo
	Lang   string
}

// Execute imports the identified records of the given task type. A
// transport-level remote failure suspends the whole run instead of
// failing the task; other errors report a failed outcome so the task
// follows the retry chain.
func (e *ImportExecutor) Execute(ctx context.Context, taskType string, ids []string) (worker.Outcome, error) {
	for _, id := range ids {
		if err := e.importOne(ctx, taskType, id); err != nil {
			var unsup *unsupportedType
			if errors.As(err, &unsup) {
				return worker.Outcome{Code: unsup.Error()}, nil
			}
			if remoteUnreachable(err) {
				return worker.Outcome{}, errors.Join(worker.ErrSuspended, err)
			}
			return worker.Outcome{}, fmt.Errorf("import %s %s: %w", taskType, id, err)
		}
	}
	return worker.Outcome{Completed: true}, nil
}

func (e *ImportExecutor) importOne(ctx context.Context, taskType, id string) error {
	switch taskType {
	case "case":
		c, err := e.Client.GetCase(ctx, id, e.Lang)
		if err != nil {
			return err
		}
		return e.Repo.UpsertCase(ctx, c)
	case "organization":
		org, err := e.Client.GetOrganization(ctx, id, e.Lang)
		if err != nil {
			return err
		}
		return e.Repo.UpsertOrganization(ctx, org)
	case "decisionmaker":
		dm, err := e.Client.GetDecisionmaker(ctx, id, e.Lang)
		if err != nil {
			return err
		}
		return e.Repo.UpsertDecisionmaker(ctx, dm)
	case "trustee":
		t, err := e.Client.GetTrustee(ctx, id, e.Lang)
		if err != nil {
			return err
		}
		return e.Repo.UpsertTrustee(ctx, t)
	default:
		return &unsupportedType{taskType: taskType}
	}
}

type unsupportedType struct {
	taskType string
}

func (e *unsupportedType) Error() string {
	return fmt.Sprintf("unsupported task type %q", e.taskType)
}

// remoteUnreachable reports whether the error means the remote system
// itself is down rather than one record being bad. A 404 or a one-off
// 500 comes from a reachable remote; only unavailable-class failures
// suspend the run.
func remoteUnreachable(err error) bool {
	var ae *ahjo.Error
	return errors.As(err, &ae) && ae.Kind == ahjo.KindUnavailable
}
