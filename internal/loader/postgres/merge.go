package postgres

import (
	"fmt"
	"strings"

	"github.com/nishad/eudravigilance/internal/loader"
)

// upsertSQL builds the single set-based merge statement for spec, per
// the version gate: apply when there is no existing row, the staging
// row's version key is strictly greater, or the staging row nullifies.
// Tables with neither a version key nor a nullify column apply with an
// unconditional do-nothing on conflict. Row-by-row iteration is never
// used here — the whole merge is one statement.
func upsertSQL(spec loader.TableSpec, staging string) string {
	cols := strings.Join(spec.Columns, ", ")
	pk := strings.Join(spec.PrimaryKey, ", ")

	if spec.VersionKey == "" && spec.NullifyColumn == "" {
		return fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
			spec.Name, cols, cols, staging, pk,
		)
	}

	assignments := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		if c == spec.VersionKey && spec.NullifyColumn != "" {
			// A nullification can satisfy the gate below with an older
			// or empty version key; never let it rewind the stored one.
			assignments = append(assignments, fmt.Sprintf("%s = GREATEST(%s.%s, EXCLUDED.%s)", c, spec.Name, c, c))
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}

	var gate string
	switch {
	case spec.VersionKey != "" && spec.NullifyColumn != "":
		gate = fmt.Sprintf("EXCLUDED.%s > %s.%s OR EXCLUDED.%s",
			spec.VersionKey, spec.Name, spec.VersionKey, spec.NullifyColumn)
	case spec.VersionKey != "":
		gate = fmt.Sprintf("EXCLUDED.%s > %s.%s", spec.VersionKey, spec.Name, spec.VersionKey)
	default:
		gate = fmt.Sprintf("EXCLUDED.%s", spec.NullifyColumn)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s WHERE %s",
		spec.Name, cols, cols, staging, pk, strings.Join(assignments, ", "), gate,
	)
}

func stagingTableName(table string) string {
	return "stg_" + table
}

func createStagingSQL(spec loader.TableSpec, staging string) string {
	return fmt.Sprintf("CREATE TEMP TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DELETE ROWS",
		staging, spec.Name)
}
