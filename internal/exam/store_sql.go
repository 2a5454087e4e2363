package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore keeps the three collections in sqlite or postgres tables created
// by internal/db.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	loc    *time.Location
}

func NewSQLStore(db *sql.DB, driver string, loc *time.Location) *SQLStore {
	if loc == nil {
		loc = time.Local
	}
	return &SQLStore{db: db, driver: driver, loc: loc}
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,surname,handle,registered_at FROM users WHERE id=$1`, id)
	var u User
	var reg string
	if err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Handle, &reg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return User{}, err
	}
	var err error
	if u.RegisteredAt, err = s.parse(reg); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, u User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (id,name,surname,handle,registered_at)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Name, u.Surname, u.Handle, s.format(u.RegisteredAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s exists: %w", u.ID, ErrConflict)
	}
	return nil
}

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tests (id,answer_key,deadline,check_time,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET answer_key=EXCLUDED.answer_key, deadline=EXCLUDED.deadline,
			check_time=EXCLUDED.check_time, created_at=EXCLUDED.created_at`,
		t.ID, t.AnswerKey, s.format(t.Deadline), s.format(t.CheckTime), s.format(t.CreatedAt))
	return err
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,answer_key,deadline,check_time,created_at FROM tests WHERE id=$1`, id)
	t, err := s.scanTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, fmt.Errorf("test %s: %w", id, ErrNotFound)
	}
	return t, err
}

func (s *SQLStore) ListTests(ctx context.Context) ([]Test, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,answer_key,deadline,check_time,created_at FROM tests ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Test
	for rows.Next() {
		t, err := s.scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const registrationCols = `test_id,user_id,name,surname,registered_at,answers,submitted_at,score,raw_correct,weighted_score,certificate_tier,version`

func (s *SQLStore) GetRegistration(ctx context.Context, testID, userID string) (Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationCols+` FROM registrations WHERE test_id=$1 AND user_id=$2`, testID, userID)
	r, err := s.scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, fmt.Errorf("registration %s/%s: %w", testID, userID, ErrNotFound)
	}
	return r, err
}

func (s *SQLStore) ListRegistrations(ctx context.Context, testID string) ([]Registration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+registrationCols+` FROM registrations WHERE test_id=$1 ORDER BY registered_at, user_id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Registration
	for rows.Next() {
		r, err := s.scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) RegistrationCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT test_id, COUNT(*) FROM registrations GROUP BY test_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveRegistrations(ctx context.Context, regs ...*Registration) error {
	for _, r := range regs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range regs {
		var res sql.Result
		if r.Version == 0 {
			res, err = tx.ExecContext(ctx, `INSERT INTO registrations (`+registrationCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1)
				ON CONFLICT (test_id, user_id) DO NOTHING`,
				r.TestID, r.UserID, r.Name, r.Surname, s.format(r.RegisteredAt),
				nullString(r.Answers), s.nullTime(r.SubmittedAt), nullString(r.Score),
				nullInt(r.RawCorrect), nullFloat(r.WeightedScore), nullString(r.Tier))
		} else {
			res, err = tx.ExecContext(ctx, `UPDATE registrations SET name=$1, surname=$2, registered_at=$3,
				answers=$4, submitted_at=$5, score=$6, raw_correct=$7, weighted_score=$8, certificate_tier=$9,
				version=version+1
				WHERE test_id=$10 AND user_id=$11 AND version=$12`,
				r.Name, r.Surname, s.format(r.RegisteredAt),
				nullString(r.Answers), s.nullTime(r.SubmittedAt), nullString(r.Score),
				nullInt(r.RawCorrect), nullFloat(r.WeightedScore), nullString(r.Tier),
				r.TestID, r.UserID, r.Version)
		}
		if err != nil {
			return fmt.Errorf("save registration %s/%s: %w", r.TestID, r.UserID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("registration %s/%s at version %d: %w", r.TestID, r.UserID, r.Version, ErrConflict)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, r := range regs {
		r.Version++
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanTest(sc scanner) (Test, error) {
	var t Test
	var deadline, check, created string
	if err := sc.Scan(&t.ID, &t.AnswerKey, &deadline, &check, &created); err != nil {
		return Test{}, err
	}
	var err error
	if t.Deadline, err = s.parse(deadline); err != nil {
		return Test{}, err
	}
	if t.CheckTime, err = s.parse(check); err != nil {
		return Test{}, err
	}
	if t.CreatedAt, err = s.parse(created); err != nil {
		return Test{}, err
	}
	return t, nil
}

func (s *SQLStore) scanRegistration(sc scanner) (Registration, error) {
	var r Registration
	var reg string
	var ans, sub, score, tier sql.NullString
	var raw sql.NullInt64
	var weighted sql.NullFloat64
	if err := sc.Scan(&r.TestID, &r.UserID, &r.Name, &r.Surname, &reg, &ans, &sub, &score, &raw, &weighted, &tier, &r.Version); err != nil {
		return Registration{}, err
	}
	var err error
	if r.RegisteredAt, err = s.parse(reg); err != nil {
		return Registration{}, err
	}
	if sub.Valid {
		t, err := s.parse(sub.String)
		if err != nil {
			return Registration{}, err
		}
		r.SubmittedAt = &t
	}
	r.Answers = ans.String
	r.Score = score.String
	r.Tier = tier.String
	if raw.Valid {
		v := int(raw.Int64)
		r.RawCorrect = &v
	}
	if weighted.Valid {
		v := weighted.Float64
		r.WeightedScore = &v
	}
	return r, nil
}

func (s *SQLStore) format(t time.Time) string { return FormatTime(t.In(s.loc)) }

func (s *SQLStore) parse(v string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: stored timestamp %q", ErrInvalid, v)
	}
	return t, nil
}

func (s *SQLStore) nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s.format(*t), Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
