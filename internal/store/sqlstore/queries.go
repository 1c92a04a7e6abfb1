package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/bizledger/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// valueColumn returns the payload column of table. The settings table
// stores JSON values under "value"; record tables use "payload".
func valueColumn(table string) string {
	if table == store.SettingsTable {
		return "value"
	}
	return "payload"
}

// orderBy returns the ORDER BY clause that restores a table's sequence.
func orderBy(table string) string {
	if table == store.SettingsTable {
		return "key"
	}
	return "seq, key"
}

func queryRows(ctx context.Context, db executor, table string) ([]store.Row, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT key, %s FROM %s ORDER BY %s`, valueColumn(table), table, orderBy(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.Row
	for rows.Next() {
		var (
			key     string
			payload string
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		result = append(result, store.Row{Key: key, Payload: []byte(payload)})
	}
	return result, rows.Err()
}

// renderStatement turns a write-set statement into SQL and bind arguments.
func renderStatement(d dialect, st store.Statement) (string, []any, error) {
	switch st.Kind {
	case store.StmtUpsert:
		if st.Table == store.SettingsTable {
			q := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (%s)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
				st.Table, d.placeholders(1, 2))
			return q, []any{st.Key, string(st.Payload)}, nil
		}
		q := fmt.Sprintf(`INSERT INTO %s (key, payload, seq) VALUES (%s)
			ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, seq = excluded.seq`,
			st.Table, d.placeholders(1, 3))
		return q, []any{st.Key, string(st.Payload), st.Seq}, nil

	case store.StmtDeleteExcept:
		if len(st.Keep) == 0 {
			return fmt.Sprintf(`DELETE FROM %s`, st.Table), nil, nil
		}
		args := make([]any, len(st.Keep))
		for i, k := range st.Keep {
			args[i] = k
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE key NOT IN (%s)`,
			st.Table, d.placeholders(1, len(st.Keep)))
		return q, args, nil
	}
	return "", nil, fmt.Errorf("unknown statement kind %d", st.Kind)
}

func execStatement(ctx context.Context, db executor, d dialect, st store.Statement) error {
	q, args, err := renderStatement(d, st)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, q, args...)
	return err
}
