package queue

import (
	"database/sql"

	"github.com/teliris/jobscout/errors"
)

// ItemScanArgs holds the variables needed for scanning an item from a
// database row.
type ItemScanArgs struct {
	AncestryJSON  string
	SpawnDepth    int
	Payload       sql.NullString
	ErrorMsg      sql.NullString
	NextAttemptAt sql.NullTime
	ClaimedAt     sql.NullTime
	CompletedAt   sql.NullTime
}

// GetItemScanArgs returns an ItemScanArgs struct ready for scanning
func GetItemScanArgs() *ItemScanArgs {
	return &ItemScanArgs{}
}

// GetItemScanTargets returns scan targets for the item and scan args,
// in the order expected by the standard item SELECT query
func GetItemScanTargets(item *Item, args *ItemScanArgs) []interface{} {
	return []interface{}{
		&item.ID,
		&item.Type,
		&item.Stage,
		&item.Status,
		&item.Lineage.TrackingID,
		&args.AncestryJSON,
		&args.SpawnDepth,
		&item.SourceKey,
		&args.Payload,
		&args.ErrorMsg,
		&item.RetryCount,
		&item.Version,
		&args.NextAttemptAt,
		&args.ClaimedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
		&args.CompletedAt,
	}
}

// ProcessItemScanArgs populates the item from scanned nullable columns.
func ProcessItemScanArgs(item *Item, args *ItemScanArgs) error {
	chain, err := UnmarshalChain(args.AncestryJSON)
	if err != nil {
		return errors.Wrapf(err, "item %s", item.ID)
	}
	item.Lineage.AncestryChain = chain

	// spawn_depth is denormalized for queries; the chain is authoritative
	if args.SpawnDepth != item.Lineage.Depth() {
		return errors.Wrapf(errors.ErrValidation,
			"item %s: stored spawn_depth %d != chain length %d",
			item.ID, args.SpawnDepth, item.Lineage.Depth())
	}

	if args.Payload.Valid {
		item.Payload = []byte(args.Payload.String)
	}
	if args.ErrorMsg.Valid {
		item.Error = args.ErrorMsg.String
	}
	if args.NextAttemptAt.Valid {
		item.NextAttemptAt = &args.NextAttemptAt.Time
	}
	if args.ClaimedAt.Valid {
		item.ClaimedAt = &args.ClaimedAt.Time
	}
	if args.CompletedAt.Valid {
		item.CompletedAt = &args.CompletedAt.Time
	}

	return nil
}

// ScanItemFromRow scans a single item from a sql.Row
func ScanItemFromRow(row *sql.Row, item *Item) error {
	args := GetItemScanArgs()
	targets := GetItemScanTargets(item, args)

	if err := row.Scan(targets...); err != nil {
		return err
	}

	return ProcessItemScanArgs(item, args)
}

// ScanItemFromRows scans a single item from sql.Rows (for use in loops)
func ScanItemFromRows(rows *sql.Rows, item *Item) error {
	args := GetItemScanArgs()
	targets := GetItemScanTargets(item, args)

	if err := rows.Scan(targets...); err != nil {
		return err
	}

	return ProcessItemScanArgs(item, args)
}

// StandardItemSelectColumns returns the standard column list for item
// SELECT queries
func StandardItemSelectColumns() string {
	return `id, item_type, stage, status,
		tracking_id, ancestry_chain, spawn_depth,
		source_key, payload, error,
		retry_count, version, next_attempt_at, claimed_at,
		created_at, updated_at, completed_at`
}
