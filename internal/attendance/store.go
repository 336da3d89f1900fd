package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysql "github.com/go-sql-driver/mysql"

	"kintai-backend/internal/civiltime"
	platformdb "kintai-backend/internal/platform/db"
)

// ErrStoreConflict: 楽観ロック失敗（別リクエストが先に更新した）
var ErrStoreConflict = errors.New("attendance store: version conflict")

// RecordStore は (employee, date) 単位の日次レコードを読み書きする。
// 見つからない場合は found=false を返し、エラーにはしない。
type RecordStore interface {
	LoadRecord(ctx context.Context, employeeID, date string) (Record, bool, error)
	SaveRecord(ctx context.Context, rec Record) (Record, error)
	ListRecords(ctx context.Context, employeeID, from, to string) ([]Record, error)
}

// ===== MySQL 実装 =====

type MySQLStore struct {
	conn *sql.DB
	norm *civiltime.Normalizer
}

func NewMySQLStore(conn *sql.DB, norm *civiltime.Normalizer) *MySQLStore {
	return &MySQLStore{conn: conn, norm: norm}
}

// DB行に対応（スキャン用）
type recordRow struct {
	EmployeeID   string
	WorkDate     string
	CheckInAt    sql.NullTime
	CheckOutAt   sql.NullTime
	Status       string
	LateMinutes  int
	NetMinutes   int
	Overtime     int
	BreaksTaken  int
	BreakMinutes int
	Version      int64
}

type breakRow struct {
	BreakID   string
	WorkDate  string
	Kind      string
	StartedAt time.Time
	EndedAt   sql.NullTime
	Duration  int
}

const selectRecordCols = `
	SELECT employee_id, DATE_FORMAT(work_date, '%Y-%m-%d') AS work_date, check_in_at, check_out_at, status,
	       late_minutes, net_minutes, overtime_minutes, breaks_taken, break_minutes, version
	FROM attendance_records`

const selectBreakCols = `
	SELECT break_id, DATE_FORMAT(work_date, '%Y-%m-%d') AS work_date, kind, started_at, ended_at, duration_minutes
	FROM attendance_breaks`

func (s *MySQLStore) LoadRecord(ctx context.Context, employeeID, date string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := platformdb.ReadOnly(ctx, s.conn, func(ctx context.Context, tx platformdb.DBTX) error {
		row := tx.QueryRowContext(ctx, selectRecordCols+`
	WHERE employee_id = ? AND work_date = ?`, employeeID, date)

		var r recordRow
		if err := scanRecord(row, &r); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		rows, err := tx.QueryContext(ctx, selectBreakCols+`
	WHERE employee_id = ? AND work_date = ?
	ORDER BY seq ASC`, employeeID, date)
		if err != nil {
			return err
		}
		defer rows.Close()

		breaks, err := s.scanBreaks(rows)
		if err != nil {
			return err
		}
		rec, err = s.toModel(r, breaks[date])
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

// ListRecords: from <= work_date <= to（どちらも YYYY-MM-DD）
func (s *MySQLStore) ListRecords(ctx context.Context, employeeID, from, to string) ([]Record, error) {
	var out []Record
	err := platformdb.ReadOnly(ctx, s.conn, func(ctx context.Context, tx platformdb.DBTX) error {
		rs, err := listRecordRows(ctx, tx, employeeID, from, to)
		if err != nil {
			return err
		}

		brows, err := tx.QueryContext(ctx, selectBreakCols+`
	WHERE employee_id = ? AND work_date BETWEEN ? AND ?
	ORDER BY work_date ASC, seq ASC`, employeeID, from, to)
		if err != nil {
			return err
		}
		defer brows.Close()
		breaks, err := s.scanBreaks(brows)
		if err != nil {
			return err
		}

		out = make([]Record, 0, len(rs))
		for _, r := range rs {
			rec, err := s.toModel(r, breaks[r.WorkDate])
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func listRecordRows(ctx context.Context, tx platformdb.DBTX, employeeID, from, to string) ([]recordRow, error) {
	rows, err := tx.QueryContext(ctx, selectRecordCols+`
	WHERE employee_id = ? AND work_date BETWEEN ? AND ?
	ORDER BY work_date ASC`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rs []recordRow
	for rows.Next() {
		var r recordRow
		if err := scanRecord(rows, &r); err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, rows.Err()
}

// SaveRecord: Version==0 なら INSERT、それ以外は version 一致時のみ UPDATE。
// 休憩行は同じトランザクションで入れ替える。
func (s *MySQLStore) SaveRecord(ctx context.Context, rec Record) (Record, error) {
	next := rec.Version + 1

	err := platformdb.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		if rec.Version == 0 {
			_, err := tx.ExecContext(ctx, `
	INSERT INTO attendance_records
	  (employee_id, work_date, check_in_at, check_out_at, status,
	   late_minutes, net_minutes, overtime_minutes, breaks_taken, break_minutes, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.EmployeeID, rec.Date, instantOrNil(rec.CheckIn), instantOrNil(rec.CheckOut), string(rec.Status),
				rec.LateByMinutes, rec.NetWorkingMinutes, rec.OvertimeMinutes, rec.TotalBreaksTaken, rec.TotalBreakDurationMinutes, next)
			if err != nil {
				if isDuplicateKey(err) {
					return ErrStoreConflict
				}
				return err
			}
		} else {
			res, err := tx.ExecContext(ctx, `
	UPDATE attendance_records
	SET check_in_at = ?, check_out_at = ?, status = ?,
	    late_minutes = ?, net_minutes = ?, overtime_minutes = ?, breaks_taken = ?, break_minutes = ?,
	    version = ?
	WHERE employee_id = ? AND work_date = ? AND version = ?`,
				instantOrNil(rec.CheckIn), instantOrNil(rec.CheckOut), string(rec.Status),
				rec.LateByMinutes, rec.NetWorkingMinutes, rec.OvertimeMinutes, rec.TotalBreaksTaken, rec.TotalBreakDurationMinutes,
				next, rec.EmployeeID, rec.Date, rec.Version)
			if err != nil {
				return err
			}
			aff, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if aff != 1 {
				return ErrStoreConflict
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_breaks WHERE employee_id = ? AND work_date = ?`,
			rec.EmployeeID, rec.Date); err != nil {
			return err
		}
		for i, b := range rec.Breaks {
			if _, err := tx.ExecContext(ctx, `
	INSERT INTO attendance_breaks
	  (break_id, employee_id, work_date, seq, kind, started_at, ended_at, duration_minutes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, rec.EmployeeID, rec.Date, i, string(b.Kind), b.Start.Instant().UTC(), instantOrNil(b.End), b.DurationMinutes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	saved := rec.clone()
	saved.Version = next
	return saved, nil
}

// ===== helpers =====

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner, r *recordRow) error {
	return sc.Scan(&r.EmployeeID, &r.WorkDate, &r.CheckInAt, &r.CheckOutAt, &r.Status,
		&r.LateMinutes, &r.NetMinutes, &r.Overtime, &r.BreaksTaken, &r.BreakMinutes, &r.Version)
}

// scanBreaks: work_date ごとにまとめる
func (s *MySQLStore) scanBreaks(rows *sql.Rows) (map[string][]BreakInterval, error) {
	out := map[string][]BreakInterval{}
	for rows.Next() {
		var b breakRow
		if err := rows.Scan(&b.BreakID, &b.WorkDate, &b.Kind, &b.StartedAt, &b.EndedAt, &b.Duration); err != nil {
			return nil, err
		}
		bi, err := s.breakToModel(b)
		if err != nil {
			return nil, err
		}
		out[b.WorkDate] = append(out[b.WorkDate], bi)
	}
	return out, rows.Err()
}

func (s *MySQLStore) breakToModel(b breakRow) (BreakInterval, error) {
	kind, err := ParseBreakKind(b.Kind)
	if err != nil {
		return BreakInterval{}, err
	}
	start, err := s.norm.ToCivil(b.StartedAt)
	if err != nil {
		return BreakInterval{}, err
	}
	end, err := s.nullToCivil(b.EndedAt)
	if err != nil {
		return BreakInterval{}, err
	}
	return BreakInterval{ID: b.BreakID, Kind: kind, Start: start, End: end, DurationMinutes: b.Duration}, nil
}

func (s *MySQLStore) toModel(r recordRow, breaks []BreakInterval) (Record, error) {
	st, err := ParseStatus(r.Status)
	if err != nil {
		return Record{}, fmt.Errorf("record %s/%s: %w", r.EmployeeID, r.WorkDate, err)
	}
	in, err := s.nullToCivil(r.CheckInAt)
	if err != nil {
		return Record{}, err
	}
	out, err := s.nullToCivil(r.CheckOutAt)
	if err != nil {
		return Record{}, err
	}
	return Record{
		EmployeeID:                r.EmployeeID,
		Date:                      r.WorkDate,
		CheckIn:                   in,
		CheckOut:                  out,
		Breaks:                    breaks,
		Status:                    st,
		LateByMinutes:             r.LateMinutes,
		NetWorkingMinutes:         r.NetMinutes,
		OvertimeMinutes:           r.Overtime,
		TotalBreaksTaken:          r.BreaksTaken,
		TotalBreakDurationMinutes: r.BreakMinutes,
		Version:                   r.Version,
	}, nil
}

func (s *MySQLStore) nullToCivil(v sql.NullTime) (*civiltime.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	c, err := s.norm.ToCivil(v.Time)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DATETIME は UTC で保存する（DSN 側も loc=UTC）
func instantOrNil(t *civiltime.Time) any {
	if t == nil {
		return nil
	}
	return t.Instant().UTC()
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}
