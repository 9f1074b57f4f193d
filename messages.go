package pglink

import (
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgproto3/v2"
)

// Authentication message subtype codes.
const (
	authTypeOk                = 0
	authTypeCleartextPassword = 3
	authTypeMD5Password       = 5
)

// backendDecoder turns raw frames into pgproto3 backend messages. Message
// structs are reused across calls; a decoded message is only valid until the
// next decode.
type backendDecoder struct {
	authenticationOk                pgproto3.AuthenticationOk
	authenticationCleartextPassword pgproto3.AuthenticationCleartextPassword
	authenticationMD5Password       pgproto3.AuthenticationMD5Password
	backendKeyData                  pgproto3.BackendKeyData
	bindComplete                    pgproto3.BindComplete
	commandComplete                 pgproto3.CommandComplete
	dataRow                         pgproto3.DataRow
	emptyQueryResponse              pgproto3.EmptyQueryResponse
	errorResponse                   pgproto3.ErrorResponse
	noData                          pgproto3.NoData
	noticeResponse                  pgproto3.NoticeResponse
	notificationResponse            pgproto3.NotificationResponse
	parameterDescription            pgproto3.ParameterDescription
	parameterStatus                 pgproto3.ParameterStatus
	parseComplete                   pgproto3.ParseComplete
	portalSuspended                 pgproto3.PortalSuspended
	readyForQuery                   pgproto3.ReadyForQuery
	rowDescription                  pgproto3.RowDescription
}

func (d *backendDecoder) decode(fr frame) (pgproto3.BackendMessage, error) {
	var msg pgproto3.BackendMessage
	switch fr.typ {
	case 'R':
		if len(fr.body) < 4 {
			return nil, ProtocolError("authentication message too short")
		}
		switch code := binary.BigEndian.Uint32(fr.body); code {
		case authTypeOk:
			msg = &d.authenticationOk
		case authTypeCleartextPassword:
			msg = &d.authenticationCleartextPassword
		case authTypeMD5Password:
			msg = &d.authenticationMD5Password
		default:
			return nil, &AuthError{msg: fmt.Sprintf("unsupported authentication method: %d", code)}
		}
	case 'K':
		msg = &d.backendKeyData
	case '2':
		msg = &d.bindComplete
	case 'C':
		msg = &d.commandComplete
	case 'D':
		msg = &d.dataRow
	case 'I':
		msg = &d.emptyQueryResponse
	case 'E':
		msg = &d.errorResponse
	case 'n':
		msg = &d.noData
	case 'N':
		msg = &d.noticeResponse
	case 'A':
		msg = &d.notificationResponse
	case 't':
		msg = &d.parameterDescription
	case 'S':
		msg = &d.parameterStatus
	case '1':
		msg = &d.parseComplete
	case 's':
		msg = &d.portalSuspended
	case 'Z':
		msg = &d.readyForQuery
	case 'T':
		msg = &d.rowDescription
	default:
		return nil, ProtocolError(fmt.Sprintf("unknown message type: %c", fr.typ))
	}

	if err := msg.Decode(fr.body); err != nil {
		return nil, ProtocolError(fmt.Sprintf("decoding %c message: %v", fr.typ, err))
	}
	return msg, nil
}
