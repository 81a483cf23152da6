package repository

import (
	"context"

	"github.com/hray3182/calendard/internal/database"
	"github.com/hray3182/calendard/internal/models"
)

const scheduleColumns = `schedule_id, account_id, type_id, title, description, all_day, dtstart, dtend,
	rrule, exdates, is_lunar, alarm, revision, deleted, created_at, modified_at`

type ScheduleRepository struct {
	db database.DBTX
}

func NewScheduleRepository(db database.DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Upsert inserts the schedule or replaces the row with the same id.
func (r *ScheduleRepository) Upsert(ctx context.Context, s *models.Schedule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (schedule_id) DO UPDATE SET
		   account_id = excluded.account_id, type_id = excluded.type_id, title = excluded.title,
		   description = excluded.description, all_day = excluded.all_day, dtstart = excluded.dtstart,
		   dtend = excluded.dtend, rrule = excluded.rrule, exdates = excluded.exdates,
		   is_lunar = excluded.is_lunar, alarm = excluded.alarm, revision = excluded.revision,
		   deleted = excluded.deleted, created_at = excluded.created_at, modified_at = excluded.modified_at`,
		s.ScheduleID, s.AccountID, s.TypeID, s.Title, s.Description, s.AllDay,
		formatTime(s.Start), formatTime(s.End), s.RecurrenceRule, encodeTimes(s.Exceptions),
		s.IsLunar, int(s.Alarm), s.Revision, s.Deleted, formatTime(s.CreatedAt), formatTime(s.ModifiedAt),
	)
	return err
}

func (r *ScheduleRepository) GetByID(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE schedule_id = ?`, scheduleID)
	s, err := scanSchedule(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// List returns live schedules ordered by start.
func (r *ScheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	return r.query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE deleted = 0 ORDER BY dtstart, schedule_id`)
}

// ListAll includes tombstones.
func (r *ScheduleRepository) ListAll(ctx context.Context) ([]*models.Schedule, error) {
	return r.query(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY schedule_id`)
}

func (r *ScheduleRepository) ListWithAlarm(ctx context.Context) ([]*models.Schedule, error) {
	return r.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE deleted = 0 AND alarm <> ? ORDER BY dtstart, schedule_id`,
		int(models.AlarmNone))
}

func (r *ScheduleRepository) Search(ctx context.Context, keyword string) ([]*models.Schedule, error) {
	return r.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE deleted = 0 AND (title LIKE ? OR description LIKE ?)
		 ORDER BY dtstart, schedule_id`,
		"%"+keyword+"%", "%"+keyword+"%")
}

func (r *ScheduleRepository) Delete(ctx context.Context, scheduleID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE schedule_id = ?`, scheduleID)
	return err
}

func (r *ScheduleRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedules`)
	return err
}

func (r *ScheduleRepository) query(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	s := &models.Schedule{}
	var (
		start, end, exdates, created, modified string
		alarm                                  int
	)
	if err := row.Scan(&s.ScheduleID, &s.AccountID, &s.TypeID, &s.Title, &s.Description, &s.AllDay,
		&start, &end, &s.RecurrenceRule, &exdates, &s.IsLunar, &alarm, &s.Revision, &s.Deleted,
		&created, &modified); err != nil {
		return nil, err
	}
	s.Start = parseTime(start)
	s.End = parseTime(end)
	s.Exceptions = decodeTimes(exdates)
	s.Alarm = models.AlarmType(alarm)
	if !s.Alarm.Valid() {
		s.Alarm = models.AlarmNone
	}
	s.CreatedAt = parseTime(created)
	s.ModifiedAt = parseTime(modified)
	return s, nil
}
