package engine

import "github.com/kaelbridge/tridb/internal/corerr"

func errTableExists(name string) error {
	return corerr.Wrap(corerr.ErrSchemaViolation, "table %q already exists", name)
}
