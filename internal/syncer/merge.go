package syncer

import (
	"context"
	"errors"
	"log"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
	"github.com/hray3182/calendard/internal/repository"
)

// replayTasks applies the queued local changes to the snapshot in queue
// order, then empties the queue. Tombstones consumed by a delete task are
// purged locally.
func replayTasks(ctx context.Context, local, snap database.DBTX) error {
	tasks, err := repository.NewUploadTaskRepository(local).List(ctx)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		var err error
		switch task.Target {
		case models.TargetSchedule:
			err = replaySchedule(ctx, task, local, snap)
		case models.TargetScheduleType:
			err = replayScheduleType(ctx, task, local, snap)
		case models.TargetColor:
			err = replayColor(ctx, task, local, snap)
		default:
			log.Printf("[syncer] skipping task %d with unknown target %d", task.TaskID, task.Target)
		}
		if err != nil {
			return err
		}
	}

	return repository.NewUploadTaskRepository(local).Clear(ctx)
}

func replaySchedule(ctx context.Context, task *models.UploadTask, local, snap database.DBTX) error {
	localRepo := repository.NewScheduleRepository(local)
	snapRepo := repository.NewScheduleRepository(snap)

	if task.Kind == models.TaskDelete {
		if err := snapRepo.Delete(ctx, task.TargetID); err != nil {
			return err
		}
		return localRepo.Delete(ctx, task.TargetID)
	}

	s, err := localRepo.GetByID(ctx, task.TargetID)
	if errors.Is(err, repository.ErrNotFound) {
		// Removed again before this run; a later delete task, if any, agrees.
		return snapRepo.Delete(ctx, task.TargetID)
	}
	if err != nil {
		return err
	}
	if s.Deleted {
		return snapRepo.Delete(ctx, task.TargetID)
	}
	return snapRepo.Upsert(ctx, s)
}

func replayScheduleType(ctx context.Context, task *models.UploadTask, local, snap database.DBTX) error {
	snapRepo := repository.NewScheduleTypeRepository(snap)
	if task.Kind == models.TaskDelete {
		return snapRepo.Delete(ctx, task.TargetID)
	}
	t, err := repository.NewScheduleTypeRepository(local).GetByID(ctx, task.TargetID)
	if errors.Is(err, repository.ErrNotFound) {
		return snapRepo.Delete(ctx, task.TargetID)
	}
	if err != nil {
		return err
	}
	return snapRepo.Upsert(ctx, t)
}

func replayColor(ctx context.Context, task *models.UploadTask, local, snap database.DBTX) error {
	snapRepo := repository.NewColorRepository(snap)
	if task.Kind == models.TaskDelete {
		return snapRepo.Delete(ctx, task.TargetID)
	}
	c, err := repository.NewColorRepository(local).GetByID(ctx, task.TargetID)
	if errors.Is(err, repository.ErrNotFound) {
		return snapRepo.Delete(ctx, task.TargetID)
	}
	if err != nil {
		return err
	}
	return snapRepo.Upsert(ctx, c)
}

// overwriteLocal replaces the local schedules, types and colors with the
// snapshot contents.
func overwriteLocal(ctx context.Context, local, snap database.DBTX) error {
	schedules, err := repository.NewScheduleRepository(snap).ListAll(ctx)
	if err != nil {
		return err
	}
	types, err := repository.NewScheduleTypeRepository(snap).List(ctx)
	if err != nil {
		return err
	}
	colors, err := repository.NewColorRepository(snap).List(ctx)
	if err != nil {
		return err
	}

	localSchedules := repository.NewScheduleRepository(local)
	if err := localSchedules.DeleteAll(ctx); err != nil {
		return err
	}
	for _, s := range schedules {
		if err := localSchedules.Upsert(ctx, s); err != nil {
			return err
		}
	}

	localTypes := repository.NewScheduleTypeRepository(local)
	if err := localTypes.DeleteAll(ctx); err != nil {
		return err
	}
	for _, t := range types {
		if err := localTypes.Upsert(ctx, t); err != nil {
			return err
		}
	}

	localColors := repository.NewColorRepository(local)
	if err := localColors.DeleteAll(ctx); err != nil {
		return err
	}
	for _, c := range colors {
		if err := localColors.Upsert(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// mergeSettings keeps, for every key, the value with the newest dt_update.
// Snapshot-side changes are written to snap; the manager-side changes are
// returned for applySettings so no manager transaction is open meanwhile.
func mergeSettings(ctx context.Context, manager, snap database.DBTX) ([]*models.Setting, error) {
	snapRepo := repository.NewSettingRepository(snap)

	mine, err := repository.NewSettingRepository(manager).List(ctx)
	if err != nil {
		return nil, err
	}
	theirs, err := snapRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*models.Setting, len(theirs))
	for _, s := range theirs {
		byKey[s.Key] = s
	}

	var staged []*models.Setting
	for _, m := range mine {
		t, ok := byKey[m.Key]
		delete(byKey, m.Key)
		switch {
		case !ok || m.UpdatedAt.After(t.UpdatedAt):
			if err := snapRepo.Upsert(ctx, m); err != nil {
				return nil, err
			}
		case t.UpdatedAt.After(m.UpdatedAt):
			staged = append(staged, t)
		}
	}
	for _, t := range byKey {
		staged = append(staged, t)
	}
	return staged, nil
}

// applySettings writes staged settings unless the manager row changed to a
// newer value since the merge read it.
func applySettings(ctx context.Context, manager database.DBTX, staged []*models.Setting) error {
	repo := repository.NewSettingRepository(manager)
	for _, t := range staged {
		cur, err := repo.Get(ctx, t.Key)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return err
		case !t.UpdatedAt.After(cur.UpdatedAt):
			continue
		}
		if err := repo.Upsert(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
