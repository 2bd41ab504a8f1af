package inbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrStorageUnavailable marks connectivity-class failures so callers can
	// degrade instead of treating them as query bugs.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidEntry is returned for entries that cannot be stored.
	ErrInvalidEntry = errors.New("invalid entry")
)

// IsUnavailable reports whether err came from an unreachable database.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// classify wraps err with ErrStorageUnavailable when it looks like a
// connection problem, otherwise it only adds the operation prefix.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectivity(err) {
		return fmt.Errorf("inbox: %s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("inbox: %s: %w", op, err)
}

func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception, 57P01-57P03: admin/crash shutdown, cannot connect now
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
