package postgres

const (
	// SQL table names:
	counterTable = "counter"

	// SQL column names (unqualified, since there is only one table):
	counterID          = "id"
	counterValue       = "value"
	counterCreatedAt   = "created_at"
	counterLastUpdated = "last_updated"
	counterLastUser    = "last_user"
	counterVersion     = "version"

	// WHERE clause fragments:
	isCounter = counterID + "=$1"
)

// counterColumns lists the columns scanned by Get, in order.
var counterColumns = []string{
	counterID,
	counterValue,
	counterCreatedAt,
	counterLastUpdated,
	counterLastUser,
	counterVersion,
}
