package telemetry

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/vineyard-analyzer/backend/internal/models"
)

// FlightStore keeps parsed flight records in a temporary DuckDB file
// so record paging and range queries over very large logs do not hold
// the whole record set in session memory.
type FlightStore struct {
	db          *sql.DB
	dbPath      string
	recordCount int
	batchSize   int
	batch       []*models.FlightRecord
	minTs       int64
	maxTs       int64
	hasTs       bool
}

// NewFlightStore creates a DuckDB-backed store in the given temp
// directory, keyed by session ID.
func NewFlightStore(tempDir string, sessionID string) (*FlightStore, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("flight_%s.duckdb", sessionID))

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE flight_records (
			id            INTEGER PRIMARY KEY,
			ts_ms         BIGINT,
			latitude      DOUBLE NOT NULL,
			longitude     DOUBLE NOT NULL,
			altitude      DOUBLE,
			height        DOUBLE,
			pitch         DOUBLE,
			roll          DOUBLE,
			yaw           DOUBLE,
			x_speed       DOUBLE,
			y_speed       DOUBLE,
			z_speed       DOUBLE,
			h_speed       DOUBLE,
			gimbal_pitch  DOUBLE,
			gimbal_roll   DOUBLE,
			gimbal_yaw    DOUBLE,
			battery       DOUBLE,
			gps_num       DOUBLE,
			flight_mode   VARCHAR
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("creating flight_records table: %w", err)
	}

	return &FlightStore{
		db:        db,
		dbPath:    dbPath,
		batchSize: 20000,
		batch:     make([]*models.FlightRecord, 0, 20000),
	}, nil
}

// AddRecord buffers a record for batched insertion.
func (fs *FlightStore) AddRecord(rec *models.FlightRecord) error {
	fs.batch = append(fs.batch, rec)

	if rec.Timestamp != nil {
		tsMs := rec.Timestamp.UnixMilli()
		if !fs.hasTs || tsMs < fs.minTs {
			fs.minTs = tsMs
		}
		if !fs.hasTs || tsMs > fs.maxTs {
			fs.maxTs = tsMs
		}
		fs.hasTs = true
	}
	fs.recordCount++

	if len(fs.batch) >= fs.batchSize {
		return fs.flushBatch()
	}
	return nil
}

// flushBatch writes buffered records through the native Appender API.
func (fs *FlightStore) flushBatch() error {
	if len(fs.batch) == 0 {
		return nil
	}

	conn, err := fs.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "flight_records")
		if err != nil {
			return fmt.Errorf("creating appender: %w", err)
		}
		defer appender.Close()

		baseID := fs.recordCount - len(fs.batch)
		for i, rec := range fs.batch {
			var tsMs any
			if rec.Timestamp != nil {
				tsMs = rec.Timestamp.UnixMilli()
			}
			err := appender.AppendRow(
				int32(baseID+i),
				tsMs,
				rec.Latitude, rec.Longitude, rec.Altitude, rec.Height,
				rec.Pitch, rec.Roll, rec.Yaw,
				rec.XSpeed, rec.YSpeed, rec.ZSpeed, rec.HSpeed,
				rec.GimbalPitch, rec.GimbalRoll, rec.GimbalYaw,
				rec.BatteryLevel, rec.GPSNum, rec.FlightMode,
			)
			if err != nil {
				return fmt.Errorf("appending row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return err
	}

	fs.batch = fs.batch[:0]
	return nil
}

// Finalize flushes pending records and indexes the timestamp column.
func (fs *FlightStore) Finalize() error {
	if err := fs.flushBatch(); err != nil {
		return err
	}
	if _, err := fs.db.Exec("CREATE INDEX idx_ts ON flight_records(ts_ms)"); err != nil {
		return fmt.Errorf("creating timestamp index: %w", err)
	}
	return nil
}

// Len returns the total number of stored records.
func (fs *FlightStore) Len() int {
	return fs.recordCount
}

// TimeRange returns the stored record time range, or nil when no
// record carried a timestamp.
func (fs *FlightStore) TimeRange() *models.TimeRange {
	if !fs.hasTs {
		return nil
	}
	return &models.TimeRange{
		Start: time.UnixMilli(fs.minTs).UTC(),
		End:   time.UnixMilli(fs.maxTs).UTC(),
	}
}

const recordColumns = `ts_ms, latitude, longitude, altitude, height, pitch, roll, yaw,
		x_speed, y_speed, z_speed, h_speed, gimbal_pitch, gimbal_roll, gimbal_yaw,
		battery, gps_num, flight_mode`

// GetRecords returns records with index in [start, end).
func (fs *FlightStore) GetRecords(start, end int) ([]models.FlightRecord, error) {
	if end <= start {
		return []models.FlightRecord{}, nil
	}

	rows, err := fs.db.Query(
		"SELECT "+recordColumns+" FROM flight_records WHERE id >= ? AND id < ? ORDER BY id",
		start, end)
	if err != nil {
		return nil, fmt.Errorf("record page query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetRange returns all records whose timestamp falls in [startTs, endTs].
func (fs *FlightStore) GetRange(startTs, endTs time.Time) ([]models.FlightRecord, error) {
	rows, err := fs.db.Query(
		"SELECT "+recordColumns+" FROM flight_records WHERE ts_ms >= ? AND ts_ms <= ? ORDER BY id",
		startTs.UnixMilli(), endTs.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]models.FlightRecord, error) {
	records := make([]models.FlightRecord, 0)
	for rows.Next() {
		var rec models.FlightRecord
		var tsMs sql.NullInt64
		err := rows.Scan(
			&tsMs,
			&rec.Latitude, &rec.Longitude, &rec.Altitude, &rec.Height,
			&rec.Pitch, &rec.Roll, &rec.Yaw,
			&rec.XSpeed, &rec.YSpeed, &rec.ZSpeed, &rec.HSpeed,
			&rec.GimbalPitch, &rec.GimbalRoll, &rec.GimbalYaw,
			&rec.BatteryLevel, &rec.GPSNum, &rec.FlightMode,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if tsMs.Valid {
			ts := time.UnixMilli(tsMs.Int64).UTC()
			rec.Timestamp = &ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database and removes the backing file.
func (fs *FlightStore) Close() error {
	err := fs.db.Close()
	if rmErr := os.Remove(fs.dbPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
