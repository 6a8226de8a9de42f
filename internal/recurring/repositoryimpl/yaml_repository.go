package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mdonan90/ClawController/internal/recurring"
	"github.com/mdonan90/ClawController/pkg/cerr"
	"github.com/mdonan90/ClawController/pkg/storage"
)

const (
	recurringPrefix = "recurring"
	runsPrefix      = "recurring_runs"
)

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", recurringPrefix, id)
}

// Runs are stored under a per-recurring-task directory so cascade deletes
// and run listings are single prefix operations. ULID file names keep the
// lexicographic order chronological.
func runPath(recurringID, runID string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", runsPrefix, recurringID, runID)
}

func runPrefix(recurringID string) string {
	return fmt.Sprintf("%s/%s", runsPrefix, recurringID)
}

func (r *YAMLRepository) Create(ctx context.Context, rt *recurring.RecurringTask) error {
	exists, err := r.storage.Exists(ctx, path(rt.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("recurring task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "recurring task already exists", nil)
	}
	return r.write(ctx, rt)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*recurring.RecurringTask, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("recurring task", err)
	}
	var rt recurring.RecurringTask
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal recurring task: %w", err))
	}
	return &rt, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*recurring.RecurringTask, error) {
	paths, err := r.storage.List(ctx, recurringPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("recurring tasks", err)
	}

	sort.Strings(paths)

	var all []*recurring.RecurringTask
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var rt recurring.RecurringTask
		if err := yaml.Unmarshal(data, &rt); err != nil {
			continue
		}
		all = append(all, &rt)
	}
	return all, nil
}

func (r *YAMLRepository) Update(ctx context.Context, rt *recurring.RecurringTask) error {
	exists, err := r.storage.Exists(ctx, path(rt.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("recurring task", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "recurring task not found", nil)
	}
	return r.write(ctx, rt)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("recurring task", err)
	}
	return nil
}

func (r *YAMLRepository) write(ctx context.Context, rt *recurring.RecurringTask) error {
	data, err := yaml.Marshal(rt)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal recurring task: %w", err))
	}
	if err := r.storage.Write(ctx, path(rt.ID), data); err != nil {
		return cerr.WrapStorageWriteError("recurring task", err)
	}
	return nil
}

func (r *YAMLRepository) CreateRun(ctx context.Context, run *recurring.Run) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal run: %w", err))
	}
	if err := r.storage.Write(ctx, runPath(run.RecurringTaskID, run.ID), data); err != nil {
		return cerr.WrapStorageWriteError("recurring run", err)
	}
	return nil
}

func (r *YAMLRepository) ListRuns(ctx context.Context, recurringID string, limit int) ([]*recurring.Run, error) {
	paths, err := r.storage.List(ctx, runPrefix(recurringID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("recurring runs", err)
	}

	// Most recent first.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	var runs []*recurring.Run
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var run recurring.Run
		if err := yaml.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

func (r *YAMLRepository) DeleteRun(ctx context.Context, recurringID, runID string) error {
	if err := r.storage.Delete(ctx, runPath(recurringID, runID)); err != nil {
		return cerr.WrapStorageDeleteError("recurring run", err)
	}
	return nil
}

func (r *YAMLRepository) DeleteRunsByRecurring(ctx context.Context, recurringID string) error {
	paths, err := r.storage.List(ctx, runPrefix(recurringID))
	if err != nil {
		return cerr.WrapStorageReadError("recurring runs", err)
	}
	for _, p := range paths {
		if err := r.storage.Delete(ctx, p); err != nil {
			return cerr.WrapStorageDeleteError("recurring run", err)
		}
	}
	return nil
}
