package store

import (
	"fmt"
	"strings"

	"github.com/vitaliisemenov/execution-bridge/internal/domain"
)

// queryBuilder assembles parameterized SQL for findBySpec/findPaged. ?
// placeholders are rewritten to Postgres $N placeholders as clauses are
// added, the same convention the rest of this codebase's query helpers use.
type queryBuilder struct {
	whereClauses []string
	args         []interface{}
	argCounter   int
	orderBy      []string
	limit        int
	offset       int
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{whereClauses: []string{"1=1"}}
}

func (qb *queryBuilder) addWhere(clause string, args ...interface{}) {
	numArgs := strings.Count(clause, "?")
	for i := 0; i < numArgs; i++ {
		qb.argCounter++
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", qb.argCounter), 1)
	}
	qb.whereClauses = append(qb.whereClauses, clause)
	qb.args = append(qb.args, args...)
}

// columnForField maps a wire/domain field name to its SQL column. Only
// fields in domain.ValidSortFields are accepted; unknown fields are dropped
// by the caller before reaching here.
func columnForField(field string) string {
	switch field {
	case "id":
		return "id"
	case "executionStatus":
		return "execution_status"
	case "tradeType":
		return "trade_type"
	case "destination":
		return "destination"
	case "securityId":
		return "security_id"
	case "quantity":
		return "quantity"
	case "receivedTimestamp":
		return "received_timestamp"
	case "sentTimestamp":
		return "sent_timestamp"
	default:
		return ""
	}
}

func (qb *queryBuilder) addOrderBy(term domain.SortTerm) {
	col := columnForField(term.Field)
	if col == "" {
		return
	}
	dir := "ASC"
	if !term.Ascending {
		dir = "DESC"
	}
	qb.orderBy = append(qb.orderBy, fmt.Sprintf("%s %s", col, dir))
}

func (qb *queryBuilder) setLimit(limit int)  { qb.limit = limit }
func (qb *queryBuilder) setOffset(offset int) { qb.offset = offset }

const selectColumns = `id, execution_status, trade_type, destination, security_id, quantity,
	limit_price, received_timestamp, sent_timestamp, trade_service_execution_id,
	quantity_filled, average_price, version, client_order_id, last_error`

func (qb *queryBuilder) build() (string, []interface{}) {
	var parts []string
	parts = append(parts, "SELECT "+selectColumns+" FROM execution")

	if len(qb.whereClauses) > 1 {
		parts = append(parts, "WHERE "+strings.Join(qb.whereClauses, " AND "))
	}

	if len(qb.orderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(qb.orderBy, ", "))
	} else {
		parts = append(parts, "ORDER BY id ASC")
	}

	if qb.limit > 0 {
		qb.argCounter++
		parts = append(parts, fmt.Sprintf("LIMIT $%d", qb.argCounter))
		qb.args = append(qb.args, qb.limit)
	}
	if qb.offset > 0 {
		qb.argCounter++
		parts = append(parts, fmt.Sprintf("OFFSET $%d", qb.argCounter))
		qb.args = append(qb.args, qb.offset)
	}

	return strings.Join(parts, " "), qb.args
}

func (qb *queryBuilder) buildCount() (string, []interface{}) {
	var parts []string
	parts = append(parts, "SELECT COUNT(*) FROM execution")
	if len(qb.whereClauses) > 1 {
		parts = append(parts, "WHERE "+strings.Join(qb.whereClauses, " AND "))
	}
	return strings.Join(parts, " "), qb.args
}

// applyFilter turns a domain.Filter into AND-of-equality WHERE clauses.
// String comparisons are case-insensitive per the spec.
func (qb *queryBuilder) applyFilter(f domain.Filter) {
	if f.ID != nil {
		qb.addWhere("id = ?", *f.ID)
	}
	if f.ExecutionStatus != nil {
		qb.addWhere("LOWER(execution_status) = LOWER(?)", *f.ExecutionStatus)
	}
	if f.TradeType != nil {
		qb.addWhere("LOWER(trade_type) = LOWER(?)", *f.TradeType)
	}
	if f.Destination != nil {
		qb.addWhere("LOWER(destination) = LOWER(?)", *f.Destination)
	}
	if f.SecurityID != nil {
		qb.addWhere("LOWER(security_id) = LOWER(?)", *f.SecurityID)
	}
}

// normalizeSort drops unknown fields and defaults to {id, asc} when the
// resulting list is empty, per findBySpec's sort contract.
func normalizeSort(terms []domain.SortTerm) []domain.SortTerm {
	out := make([]domain.SortTerm, 0, len(terms))
	for _, t := range terms {
		if domain.ValidSortFields[t.Field] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = append(out, domain.SortTerm{Field: "id", Ascending: true})
	}
	return out
}

// clampPage enforces limit <= 100 and offset >= 0.
func clampPage(p domain.Page) domain.Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	p.Sort = normalizeSort(p.Sort)
	return p
}
