package postgres

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// pgUUID converts a uuid.UUID to its pgtype representation.
func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// pgUUIDFromPtr converts an optional uuid.UUID; nil maps to SQL NULL.
func pgUUIDFromPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// uuidFromPg converts a pgtype.UUID back to uuid.UUID.
func uuidFromPg(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}

// uuidPtrFromPg converts a nullable pgtype.UUID to an optional uuid.UUID.
func uuidPtrFromPg(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	u := uuid.UUID(id.Bytes)
	return &u
}

// pgText converts a string; empty maps to SQL NULL.
func pgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// textFromPg converts a nullable pgtype.Text to a plain string.
func textFromPg(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// pgNumeric converts a decimal to pgtype.Numeric via its text form, which
// is lossless for the scales tax rates and amounts use.
func pgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return n, err
	}
	return n, nil
}

// decimalFromPg converts a pgtype.Numeric to a decimal. NULL maps to zero.
func decimalFromPg(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid || n.Int == nil {
		return decimal.Zero, nil
	}
	if n.NaN {
		return decimal.Zero, fmt.Errorf("numeric NaN has no decimal representation")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
