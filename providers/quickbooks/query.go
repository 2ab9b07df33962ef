package quickbooks

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-ledger-sync/transform"
)

// startPosition converts a 1-based page into the provider's 1-based offset.
func startPosition(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page-1)*pageSize + 1
}

func listStatement(kind transform.EntityName, page, pageSize int) string {
	return fmt.Sprintf("select * from %s startposition %d maxresults %d",
		kind, startPosition(page, pageSize), pageSize)
}

func countStatement(kind transform.EntityName) string {
	return fmt.Sprintf("select count(*) from %s", kind)
}

func byIDStatement(kind transform.EntityName, id string) string {
	return fmt.Sprintf("select * from %s where Id = '%s'", kind, quoteLiteral(id))
}

func byNameStatement(kind transform.EntityName, name string) string {
	return fmt.Sprintf("select * from %s where DisplayName = '%s'", kind, quoteLiteral(name))
}

func quoteLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}

func resourcePath(kind transform.EntityName) string {
	return strings.ToLower(string(kind))
}
