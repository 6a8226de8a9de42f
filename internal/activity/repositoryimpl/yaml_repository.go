package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mdonan90/ClawController/internal/activity"
	"github.com/mdonan90/ClawController/pkg/cerr"
	"github.com/mdonan90/ClawController/pkg/storage"
)

const activitiesPrefix = "activities"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

// Activities are stored under a per-task directory so cascade deletes and
// per-task listings are single prefix operations. ULID file names keep the
// lexicographic order chronological.
func path(taskID, id string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", activitiesPrefix, taskID, id)
}

func taskPrefix(taskID string) string {
	return fmt.Sprintf("%s/%s", activitiesPrefix, taskID)
}

func (r *YAMLRepository) Create(ctx context.Context, a *activity.Activity) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal activity: %w", err))
	}
	if err := r.storage.Write(ctx, path(a.TaskID, a.ID), data); err != nil {
		return cerr.WrapStorageWriteError("activity", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, taskID string, limit, offset int) ([]*activity.Activity, int, error) {
	all, err := r.readAll(ctx, taskID)
	if err != nil {
		return nil, 0, err
	}

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *YAMLRepository) HasMessageFrom(ctx context.Context, taskID, agentID string) (bool, error) {
	all, err := r.readAll(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if a.Type == activity.TypeMessage && a.AgentID == agentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *YAMLRepository) DeleteByTask(ctx context.Context, taskID string) error {
	paths, err := r.storage.List(ctx, taskPrefix(taskID))
	if err != nil {
		return cerr.WrapStorageReadError("activities", err)
	}
	for _, p := range paths {
		if err := r.storage.Delete(ctx, p); err != nil {
			return cerr.WrapStorageDeleteError("activity", err)
		}
	}
	return nil
}

func (r *YAMLRepository) readAll(ctx context.Context, taskID string) ([]*activity.Activity, error) {
	paths, err := r.storage.List(ctx, taskPrefix(taskID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("activities", err)
	}

	sort.Strings(paths)

	var all []*activity.Activity
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var a activity.Activity
		if err := yaml.Unmarshal(data, &a); err != nil {
			continue
		}
		all = append(all, &a)
	}
	return all, nil
}
