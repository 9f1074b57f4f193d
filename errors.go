package pglink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgproto3/v2"
)

// ErrTLSRefused occurs when the connection attempt requires TLS and the
// PostgreSQL server refuses to use TLS.
var ErrTLSRefused = errors.New("server refused TLS connection")

// ErrDeadConn is delivered to every queued request other than the one in
// flight when the connection terminates, and is returned by calls made after
// the connection has terminated.
var ErrDeadConn = errors.New("conn is dead")

// ErrUnknownHandle is returned by Unlisten when the handle does not belong to
// a live subscription. It is local to the call and leaves the connection
// usable.
var ErrUnknownHandle = errors.New("unknown listen handle")

// ProtocolError occurs when the PostgreSQL server sends a message that is out
// of sequence or otherwise violates the protocol. It is fatal to the
// connection.
type ProtocolError string

func (e ProtocolError) Error() string {
	return string(e)
}

// PgError represents an error reported by the PostgreSQL server. See
// http://www.postgresql.org/docs/11/static/protocol-error-fields.html for
// detailed field description.
type PgError struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         int32
	InternalPosition int32
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             int32
	Routine          string
}

func (pe *PgError) Error() string {
	return pe.Severity + ": " + pe.Message + " (SQLSTATE " + pe.Code + ")"
}

// SQLState returns the SQLState of the error.
func (pe *PgError) SQLState() string {
	return pe.Code
}

func errorResponseToPgError(msg *pgproto3.ErrorResponse) *PgError {
	return &PgError{
		Severity:         msg.Severity,
		Code:             msg.Code,
		Message:          msg.Message,
		Detail:           msg.Detail,
		Hint:             msg.Hint,
		Position:         msg.Position,
		InternalPosition: msg.InternalPosition,
		InternalQuery:    msg.InternalQuery,
		Where:            msg.Where,
		SchemaName:       msg.SchemaName,
		TableName:        msg.TableName,
		ColumnName:       msg.ColumnName,
		DataTypeName:     msg.DataTypeName,
		ConstraintName:   msg.ConstraintName,
		File:             msg.File,
		Line:             msg.Line,
		Routine:          msg.Routine,
	}
}

// ConnectError occurs when the TCP connect, TLS handshake or
// pre-authentication protocol exchange fails. It is fatal for the connection.
type ConnectError struct {
	Config *Config
	msg    string
	err    error
}

func (e *ConnectError) Error() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "failed to connect to `host=%s user=%s database=%s`: %s", e.Config.Host, e.Config.User, e.Config.Database, e.msg)
	if e.err != nil {
		fmt.Fprintf(sb, " (%s)", e.err.Error())
	}
	return sb.String()
}

func (e *ConnectError) Unwrap() error {
	return e.err
}

// AuthError occurs when the server rejects authentication or requests an
// authentication method this package does not implement. It is fatal for the
// connection.
type AuthError struct {
	msg string
	err error
}

func (e *AuthError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
}

func (e *AuthError) Unwrap() error {
	return e.err
}

// errTimeout occurs when a caller-local deadline elapses while waiting for a
// reply. The request keeps its queue slot; only the caller gives up.
type errTimeout struct {
	err error
}

func (e *errTimeout) Error() string {
	return fmt.Sprintf("timeout: %s", e.err.Error())
}

func (e *errTimeout) Unwrap() error {
	return e.err
}

// Timeout reports whether err was caused by a caller-local timeout.
func Timeout(err error) bool {
	var timeoutErr *errTimeout
	return errors.As(err, &timeoutErr)
}
