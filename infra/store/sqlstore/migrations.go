package sqlstore

import (
	"strings"

	"github.com/adlio/schema"
)

// Migrations are written once with two dialect tokens and expanded per
// driver: {{pk}} for an auto-increment primary key, {{bool}} for flags.
var migrations = []struct {
	id     string
	script string
}{
	{
		id: "0001_base_tables",
		script: `
CREATE TABLE IF NOT EXISTS orders (
	id                {{pk}},
	mrn               TEXT NOT NULL,
	first_name        TEXT NOT NULL,
	last_name         TEXT NOT NULL,
	dob               TEXT NOT NULL,
	num_prescriptions INTEGER NOT NULL DEFAULT 1,
	comments          TEXT NOT NULL DEFAULT '',
	initials          TEXT NOT NULL,
	order_type        TEXT NOT NULL DEFAULT 'waiter',
	due_time          BIGINT NOT NULL,
	created_at        BIGINT NOT NULL,
	printed           {{bool}},
	ready             {{bool}},
	ready_at          BIGINT,
	completed         {{bool}}
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS patients (
	id         {{pk}},
	mrn        TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	dob        TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id             {{pk}},
	record_id      BIGINT NOT NULL,
	action         TEXT NOT NULL,
	old_values     TEXT,
	new_values     TEXT,
	staff_initials TEXT NOT NULL DEFAULT '',
	changed_at     BIGINT NOT NULL
);
`,
	},
	{
		id: "0002_mail_columns",
		script: `
ALTER TABLE orders ADD COLUMN moved_to_mail {{bool}};
ALTER TABLE orders ADD COLUMN moved_to_mail_at BIGINT;
ALTER TABLE orders ADD COLUMN mailed {{bool}};
ALTER TABLE orders ADD COLUMN mailed_at BIGINT;
`,
	},
	{
		id: "0003_indexes",
		script: `
CREATE INDEX IF NOT EXISTS orders_completed_due_idx ON orders (completed, due_time);
CREATE INDEX IF NOT EXISTS audit_log_record_idx ON audit_log (record_id, id);
`,
	},
}

func dialectTokens(driver string) *strings.Replacer {
	if driver == DriverPostgres {
		return strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{bool}}", "SMALLINT NOT NULL DEFAULT 0",
		)
	}
	return strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{bool}}", "INTEGER NOT NULL DEFAULT 0",
	)
}

// Migrations returns the schema history for driver.
func Migrations(driver string) []*schema.Migration {
	r := dialectTokens(driver)
	out := make([]*schema.Migration, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, &schema.Migration{ID: m.id, Script: r.Replace(m.script)})
	}
	return out
}

func migrator(driver string) *schema.Migrator {
	if driver == DriverPostgres {
		return schema.NewMigrator(schema.WithDialect(schema.Postgres))
	}
	return schema.NewMigrator(schema.WithDialect(schema.SQLite))
}
