package pglink

import (
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgproto3/v2"
	"github.com/pkg/errors"

	"github.com/pglink/pglink/internal/ctxwatch"
)

// phase is the top-level state label of the connection state machine. Every
// inbound message is interpreted relative to it.
type phase int

const (
	phaseConnecting phase = iota
	phaseAuthenticating
	phaseBootstrapping
	phaseReady
	phaseBusySimple
	phaseBusyExtendedParse
	phaseBusyExtendedBind
	phaseBusyExtendedExecute
	phaseBusySync
	phaseTerminating
)

func (p phase) busy() bool {
	switch p {
	case phaseBusySimple, phaseBusyExtendedParse, phaseBusyExtendedBind, phaseBusyExtendedExecute, phaseBusySync:
		return true
	}
	return false
}

func (p phase) extended() bool {
	switch p {
	case phaseBusyExtendedParse, phaseBusyExtendedBind, phaseBusyExtendedExecute:
		return true
	}
	return false
}

var errConnClosed = errors.New("conn closed")

// readEvent is one chunk handed from the reader goroutine to the supervisor.
type readEvent struct {
	buf []byte
	err error
}

// QueryOpts short-circuits the Describe round trip of the extended protocol.
// ParamOIDs and ResultOIDs must both be supplied; ParamOIDs must match the
// argument count and ResultOIDs the result columns.
type QueryOpts struct {
	ParamOIDs  []uint32
	ResultOIDs []uint32
}

// Conn is a single PostgreSQL connection. All state is owned by a supervisor
// goroutine; the exported methods are safe for concurrent use and serialize
// through its request queue.
type Conn struct {
	config *Config

	requests chan *request
	reads    chan readEvent
	deaths   chan Handle
	stopCh   chan chan struct{}
	done     chan struct{}

	// Everything below is owned by the supervisor goroutine.
	netConn  net.Conn
	phase    phase
	framer   framer
	decoder  backendDecoder
	queue    requestQueue
	registry *listenerRegistry
	types    *TypeRegistry
	watchers map[Handle]*ctxwatch.ContextWatcher

	// in-flight accumulation
	columns    []string
	colOIDs    []uint32
	colFormats []int16
	rows       [][][]byte
	commandTag CommandTag

	mu                sync.Mutex
	alive             bool
	causeOfDeath      error
	pid               uint32
	secretKey         uint32
	txStatus          byte
	parameterStatuses map[string]string
}

// Connect establishes a connection with a PostgreSQL server using config.
// config.Database must be specified. config.User defaults to the OS user
// name. Connect returns after authentication and the type bootstrap have
// completed; until then no user request runs.
func Connect(config *Config) (*Conn, error) {
	if err := config.assignDefaults(); err != nil {
		return nil, &ConnectError{Config: config, msg: "invalid config", err: err}
	}

	c := &Conn{
		config:            config,
		requests:          make(chan *request),
		reads:             make(chan readEvent),
		deaths:            make(chan Handle),
		stopCh:            make(chan chan struct{}),
		done:              make(chan struct{}),
		registry:          newListenerRegistry(),
		watchers:          make(map[Handle]*ctxwatch.ContextWatcher),
		types:             config.TypeRegistry,
		alive:             true,
		parameterStatuses: make(map[string]string),
		phase:             phaseConnecting,
	}

	network, address := NetworkAddress(config.Host, config.Port)
	netConn, err := config.DialFunc(network, address)
	if err != nil {
		return nil, &ConnectError{Config: config, msg: "dial error", err: err}
	}
	c.netConn = netConn

	if config.TLSConfig != nil {
		if err := c.startTLS(config.TLSConfig); err != nil {
			netConn.Close()
			return nil, &ConnectError{Config: config, msg: "tls error", err: err}
		}
	}

	if err := c.sendStartupMessage(); err != nil {
		c.netConn.Close()
		return nil, &ConnectError{Config: config, msg: "failed to write startup message", err: err}
	}
	c.phase = phaseAuthenticating

	connectReq := &request{kind: requestConnect, replyCh: make(chan reply, 1)}
	c.queue.push(connectReq)

	go c.readLoop()
	go c.eventLoop()

	rep := <-connectReq.replyCh
	if rep.err != nil {
		return nil, rep.err
	}

	c.log(LogLevelInfo, "connection established", map[string]interface{}{"host": config.Host, "pid": c.PID()})
	return c, nil
}

// startTLS sends an SSLRequest and upgrades the socket. The server answers
// with a single byte before any TLS traffic; 'N' is fatal.
func (c *Conn) startTLS(tlsConfig *tls.Config) error {
	if err := binary.Write(c.netConn, binary.BigEndian, []int32{8, 80877103}); err != nil {
		return err
	}

	response := make([]byte, 1)
	if _, err := io.ReadFull(c.netConn, response); err != nil {
		return err
	}

	if response[0] != 'S' {
		return ErrTLSRefused
	}

	c.netConn = tls.Client(c.netConn, tlsConfig)
	return nil
}

func (c *Conn) sendStartupMessage() error {
	startupMsg := pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      make(map[string]string),
	}
	for k, v := range c.config.RuntimeParams {
		startupMsg.Parameters[k] = v
	}
	startupMsg.Parameters["user"] = c.config.User
	if c.config.Database != "" {
		startupMsg.Parameters["database"] = c.config.Database
	}

	_, err := c.netConn.Write(startupMsg.Encode(nil))
	return err
}

// Query executes sql and returns the fully accumulated result. With no
// arguments the simple protocol is used; otherwise the extended protocol
// with unnamed statement and portal.
func (c *Conn) Query(sql string, args ...interface{}) (*Result, error) {
	return c.QueryOpts(sql, nil, args...)
}

// QueryOpts executes sql like Query. A non-nil opts supplies parameter and
// result type oids up front, skipping the Describe round trip.
func (c *Conn) QueryOpts(sql string, opts *QueryOpts, args ...interface{}) (*Result, error) {
	if opts != nil {
		if opts.ParamOIDs == nil || opts.ResultOIDs == nil {
			return nil, errors.New("QueryOpts requires both ParamOIDs and ResultOIDs")
		}
		if len(opts.ParamOIDs) != len(args) {
			return nil, errors.Errorf("QueryOpts has %d param oids but %d arguments were given", len(opts.ParamOIDs), len(args))
		}
	}

	req := &request{
		kind:     requestQuery,
		sql:      sql,
		args:     args,
		opts:     opts,
		extended: len(args) > 0 || opts != nil,
	}
	rep, err := c.call(req)
	if err != nil {
		return nil, err
	}
	if rep.err != nil {
		return nil, rep.err
	}
	return rep.result, nil
}

// Listen subscribes to notifications on channel. The first subscription for a
// channel issues LISTEN on the connection; further subscriptions share it.
// Cancelling ctx ends the subscription the same way Unlisten does.
//
// The channel name is interpolated into the SQL text verbatim. Names
// containing whitespace or quotes must be quoted by the caller.
func (c *Conn) Listen(ctx context.Context, channel string) (*Subscription, error) {
	req := &request{
		kind:    requestListen,
		channel: channel,
		sql:     "listen " + channel,
	}
	req.listenCtx = ctx
	rep, err := c.call(req)
	if err != nil {
		return nil, err
	}
	if rep.err != nil {
		return nil, rep.err
	}
	return rep.sub, nil
}

// Unlisten cancels the subscription identified by h. When the last
// subscription of a channel is cancelled, UNLISTEN is issued and Unlisten
// returns after it completes. An unknown handle returns ErrUnknownHandle and
// leaves the connection untouched.
func (c *Conn) Unlisten(h Handle) error {
	req := &request{kind: requestUnlisten, handle: h}
	rep, err := c.call(req)
	if err != nil {
		return err
	}
	return rep.err
}

// Close terminates the connection gracefully: a Terminate message is sent and
// the socket is closed. The request in flight, if any, fails with an error
// reporting the close; every other pending request receives ErrDeadConn.
// When CallTimeout is set and elapses first, Close returns a timeout error.
// It is safe to call Close on an already closed connection.
func (c *Conn) Close() error {
	var timeout <-chan time.Time
	if c.config.CallTimeout > 0 {
		timer := time.NewTimer(c.config.CallTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	acked := make(chan struct{})
	select {
	case c.stopCh <- acked:
		select {
		case <-acked:
		case <-timeout:
			return &errTimeout{err: errors.Errorf("close not acknowledged within %s", c.config.CallTimeout)}
		}
	case <-c.done:
	case <-timeout:
		return &errTimeout{err: errors.Errorf("close not acknowledged within %s", c.config.CallTimeout)}
	}
	return nil
}

// IsAlive reports whether the connection can still accept requests.
func (c *Conn) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// CauseOfDeath returns the error that terminated the connection, or nil.
func (c *Conn) CauseOfDeath() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.causeOfDeath
}

// ParameterStatus returns the most recent value of a run-time parameter
// reported by the server (e.g. server_version). Unknown parameters return "".
func (c *Conn) ParameterStatus(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parameterStatuses[key]
}

// PID returns the backend process id, for use with out-of-band cancellation.
func (c *Conn) PID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

// SecretKey returns the backend secret key, for use with out-of-band
// cancellation.
func (c *Conn) SecretKey() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secretKey
}

// TxStatus returns the transaction status byte from the most recent
// ReadyForQuery ('I', 'T' or 'E').
func (c *Conn) TxStatus() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// ServerVersion parses the server_version parameter reported by the server.
func (c *Conn) ServerVersion() (*semver.Version, error) {
	raw := c.ParameterStatus("server_version")
	if raw == "" {
		return nil, errors.New("server_version parameter not reported")
	}
	// e.g. "14.5 (Debian 14.5-1.pgdg110+1)"
	version := raw
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		version = raw[:i]
	}
	return semver.NewVersion(version)
}

// call posts req to the supervisor and waits for the reply, bounded by the
// configured call timeout. A timed-out request keeps its queue slot.
func (c *Conn) call(req *request) (reply, error) {
	req.replyCh = make(chan reply, 1)

	select {
	case c.requests <- req:
	case <-c.done:
		return reply{}, ErrDeadConn
	}

	if c.config.CallTimeout <= 0 {
		return <-req.replyCh, nil
	}

	timer := time.NewTimer(c.config.CallTimeout)
	defer timer.Stop()
	select {
	case rep := <-req.replyCh:
		return rep, nil
	case <-timer.C:
		return reply{}, &errTimeout{err: errors.Errorf("no reply within %s", c.config.CallTimeout)}
	}
}

// readLoop hands socket chunks to the supervisor. The channel is unbuffered,
// so at most one chunk waits for the supervisor. The next read starts as soon
// as the supervisor has taken a chunk; it does not wait for that chunk to be
// processed.
func (c *Conn) readLoop() {
	for {
		buf := make([]byte, 8192)
		n, err := c.netConn.Read(buf)
		if n > 0 {
			select {
			case c.reads <- readEvent{buf: buf[:n]}:
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case c.reads <- readEvent{err: err}:
			case <-c.done:
			}
			return
		}
	}
}

// eventLoop is the supervisor. It is the only goroutine that touches the
// connection state machine.
func (c *Conn) eventLoop() {
	for {
		select {
		case req := <-c.requests:
			c.queue.push(req)
			if c.phase == phaseReady {
				c.pump()
			}
			if c.phase == phaseTerminating {
				return
			}

		case ev := <-c.reads:
			if ev.err != nil {
				c.die(ev.err)
				return
			}
			frames, err := c.framer.feed(ev.buf)
			if err != nil {
				c.die(err)
				return
			}
			for _, fr := range frames {
				msg, err := c.decoder.decode(fr)
				if err != nil {
					c.die(err)
					return
				}
				if err := c.handleMessage(msg); err != nil {
					c.die(err)
					return
				}
				if c.phase == phaseTerminating {
					return
				}
			}

		case h := <-c.deaths:
			c.subscriberDied(h)
			if c.phase == phaseTerminating {
				return
			}

		case acked := <-c.stopCh:
			if _, err := c.netConn.Write((&pgproto3.Terminate{}).Encode(nil)); err != nil {
				c.log(LogLevelWarn, "failed to send terminate message", map[string]interface{}{"err": err})
			}
			// Mark the connection dead before acknowledging so that IsAlive
			// already reports false when Close returns.
			c.mu.Lock()
			c.alive = false
			c.mu.Unlock()
			close(acked)
			c.die(errConnClosed)
			return
		}
	}
}

// pump starts queued requests until one is on the wire or the queue is
// empty. Requests that need no server round trip complete inline.
func (c *Conn) pump() {
	for {
		head := c.queue.peek()
		if head == nil {
			c.phase = phaseReady
			return
		}
		if c.startRequest(head) {
			return
		}
	}
}

// startRequest dispatches the queue head. It returns true when the request is
// now in flight; false when it completed (or failed) without server traffic
// and was popped.
func (c *Conn) startRequest(req *request) bool {
	c.resetAccumulation()

	switch req.kind {
	case requestConnect:
		if c.types != nil {
			c.completeHead(reply{})
			return false
		}
		c.phase = phaseBootstrapping
		return c.writeAll((&pgproto3.Query{String: bootstrapQuery}).Encode(nil))

	case requestQuery:
		if !req.extended {
			c.phase = phaseBusySimple
			return c.writeAll((&pgproto3.Query{String: req.sql}).Encode(nil))
		}
		buf, err := c.encodeExtendedQuery(req)
		if err != nil {
			c.completeHead(reply{err: err})
			return false
		}
		c.phase = phaseBusyExtendedParse
		return c.writeAll(buf)

	case requestListen:
		sub, first := c.registry.add(req.channel)
		c.watch(sub, req.listenCtx)
		req.sub = sub
		if !first {
			c.completeHead(reply{sub: sub})
			return false
		}
		c.phase = phaseBusySimple
		return c.writeAll((&pgproto3.Query{String: req.sql}).Encode(nil))

	case requestUnlisten:
		sub, last, ok := c.registry.remove(req.handle)
		if !ok {
			c.completeHead(reply{err: ErrUnknownHandle})
			return false
		}
		c.unwatch(req.handle)
		close(sub.c)
		if !last {
			c.completeHead(reply{})
			return false
		}
		req.channel = sub.channel
		c.phase = phaseBusySimple
		return c.writeAll((&pgproto3.Query{String: "unlisten " + sub.channel}).Encode(nil))

	case requestUnlistenChannel:
		c.phase = phaseBusySimple
		return c.writeAll((&pgproto3.Query{String: "unlisten " + req.channel}).Encode(nil))
	}

	c.completeHead(reply{err: errors.Errorf("unknown request kind %v", req.kind)})
	return false
}

// encodeExtendedQuery builds the pipelined Parse/Describe/Bind/Execute/Sync
// batch. Describe is skipped when the caller hinted both type lists.
func (c *Conn) encodeExtendedQuery(req *request) ([]byte, error) {
	paramOIDs := make([]uint32, len(req.args))
	if req.opts != nil {
		copy(paramOIDs, req.opts.ParamOIDs)
	} else {
		for i, arg := range req.args {
			paramOIDs[i] = inferParamOID(arg)
		}
	}

	paramValues := make([][]byte, len(req.args))
	paramFormats := make([]int16, len(req.args))
	for i, arg := range req.args {
		data, format, err := c.config.Encoder(c.types, paramOIDs[i], arg)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot encode argument %d", i)
		}
		paramValues[i] = data
		paramFormats[i] = format
	}

	var resultFormats []int16
	if req.opts != nil {
		resultFormats = make([]int16, len(req.opts.ResultOIDs))
		for i, oid := range req.opts.ResultOIDs {
			resultFormats[i] = c.config.Formatter(c.types, oid)
		}
		// No Describe means no RowDescription; decode the result columns from
		// the hints. Column names are not available on this path.
		c.columns = make([]string, len(req.opts.ResultOIDs))
		c.colOIDs = append([]uint32(nil), req.opts.ResultOIDs...)
		c.colFormats = append([]int16(nil), resultFormats...)
	}

	buf := (&pgproto3.Parse{Query: req.sql, ParameterOIDs: paramOIDs}).Encode(nil)
	if req.opts == nil {
		buf = (&pgproto3.Describe{ObjectType: 'S'}).Encode(buf)
	}
	buf = (&pgproto3.Bind{
		ParameterFormatCodes: paramFormats,
		Parameters:           paramValues,
		ResultFormatCodes:    resultFormats,
	}).Encode(buf)
	buf = (&pgproto3.Execute{}).Encode(buf)
	buf = (&pgproto3.Sync{}).Encode(buf)
	return buf, nil
}

// writeAll writes buf to the socket, dying on failure. Returns true when the
// request's messages are on the wire.
func (c *Conn) writeAll(buf []byte) bool {
	if _, err := c.netConn.Write(buf); err != nil {
		c.die(err)
		return true // die already failed every request; stop pumping
	}
	return true
}

func (c *Conn) resetAccumulation() {
	c.columns = nil
	c.colOIDs = nil
	c.colFormats = nil
	c.rows = nil
	c.commandTag = ""
}

// handleMessage interprets one backend message relative to the current
// phase. A returned error is fatal to the connection.
func (c *Conn) handleMessage(msg pgproto3.BackendMessage) error {
	// Messages that may arrive in any phase after authentication.
	switch msg := msg.(type) {
	case *pgproto3.ParameterStatus:
		c.mu.Lock()
		c.parameterStatuses[msg.Name] = msg.Value
		c.mu.Unlock()
		return nil
	case *pgproto3.NoticeResponse:
		if c.shouldLog(LogLevelInfo) {
			c.log(LogLevelInfo, "notice", map[string]interface{}{"severity": msg.Severity, "msg": msg.Message})
		}
		return nil
	case *pgproto3.NotificationResponse:
		n := &Notification{PID: msg.PID, Channel: msg.Channel, Payload: msg.Payload}
		delivered, dropped := c.registry.dispatch(n)
		if c.shouldLog(LogLevelDebug) {
			c.log(LogLevelDebug, "notification dispatched", map[string]interface{}{"channel": n.Channel, "delivered": delivered, "dropped": dropped})
		}
		return nil
	case *pgproto3.BackendKeyData:
		c.mu.Lock()
		c.pid = msg.ProcessID
		c.secretKey = msg.SecretKey
		c.mu.Unlock()
		return nil
	case *pgproto3.ErrorResponse:
		return c.handleErrorResponse(msg)
	case *pgproto3.ReadyForQuery:
		return c.handleReadyForQuery(msg)
	}

	switch c.phase {
	case phaseAuthenticating:
		return c.handleAuthenticationMessage(msg)

	case phaseBootstrapping, phaseBusySimple:
		switch msg := msg.(type) {
		case *pgproto3.RowDescription:
			c.storeRowDescription(msg)
			return nil
		case *pgproto3.DataRow:
			c.storeDataRow(msg)
			return nil
		case *pgproto3.CommandComplete:
			c.commandTag = CommandTag(msg.CommandTag)
			return nil
		case *pgproto3.EmptyQueryResponse:
			return nil
		}

	case phaseBusyExtendedParse:
		if _, ok := msg.(*pgproto3.ParseComplete); ok {
			c.phase = phaseBusyExtendedBind
			return nil
		}

	case phaseBusyExtendedBind:
		switch msg := msg.(type) {
		case *pgproto3.ParameterDescription:
			return nil
		case *pgproto3.RowDescription:
			c.storeRowDescription(msg)
			return nil
		case *pgproto3.NoData:
			return nil
		case *pgproto3.BindComplete:
			c.phase = phaseBusyExtendedExecute
			return nil
		}

	case phaseBusyExtendedExecute:
		switch msg := msg.(type) {
		case *pgproto3.DataRow:
			c.storeDataRow(msg)
			return nil
		case *pgproto3.CommandComplete:
			c.commandTag = CommandTag(msg.CommandTag)
			c.phase = phaseBusySync
			return nil
		case *pgproto3.EmptyQueryResponse:
			c.phase = phaseBusySync
			return nil
		case *pgproto3.PortalSuspended:
			// Execute is always sent with no row limit; a suspended portal is
			// treated as completion with the rows received so far.
			c.phase = phaseBusySync
			return nil
		}

	case phaseBusySync:
		// Discarding until ReadyForQuery after an error or completion.
		return nil
	}

	return ProtocolError(fmt.Sprintf("received unexpected message %T in phase %d", msg, c.phase))
}

func (c *Conn) handleAuthenticationMessage(msg pgproto3.BackendMessage) error {
	switch msg := msg.(type) {
	case *pgproto3.AuthenticationOk:
		return nil
	case *pgproto3.AuthenticationCleartextPassword:
		return c.txPasswordMessage(c.config.Password)
	case *pgproto3.AuthenticationMD5Password:
		digestedPassword := "md5" + hexMD5(hexMD5(c.config.Password+c.config.User)+string(msg.Salt[:]))
		return c.txPasswordMessage(digestedPassword)
	default:
		return ProtocolError(fmt.Sprintf("received unexpected message %T during authentication", msg))
	}
}

func (c *Conn) handleErrorResponse(msg *pgproto3.ErrorResponse) error {
	pgErr := errorResponseToPgError(msg)

	switch {
	case c.phase == phaseAuthenticating:
		return &AuthError{msg: "authentication failed", err: pgErr}
	case c.phase == phaseBootstrapping:
		return &ConnectError{Config: c.config, msg: "type bootstrap failed", err: pgErr}
	case c.phase.busy():
		if head := c.queue.peek(); head != nil {
			head.err = pgErr
		}
		if c.phase.extended() {
			// The server discards messages until our already-sent Sync.
			c.phase = phaseBusySync
		}
		return nil
	default:
		// An ErrorResponse outside any request context (e.g. FATAL admin
		// shutdown) terminates the connection.
		return pgErr
	}
}

func (c *Conn) handleReadyForQuery(msg *pgproto3.ReadyForQuery) error {
	c.mu.Lock()
	c.txStatus = msg.TxStatus
	c.mu.Unlock()

	switch c.phase {
	case phaseAuthenticating:
		c.pump()
		return nil

	case phaseBootstrapping:
		head := c.queue.peek()
		if head == nil || head.kind != requestConnect {
			return ProtocolError("type bootstrap completed with no connect request queued")
		}
		types, err := registryFromCatalogRows(c.rows)
		if err != nil {
			return err
		}
		c.types = types
		c.completeHead(reply{})
		c.pump()
		return nil

	case phaseBusySimple, phaseBusyExtendedParse, phaseBusyExtendedBind, phaseBusyExtendedExecute, phaseBusySync:
		head := c.queue.peek()
		if head == nil {
			return ProtocolError("ReadyForQuery with empty queue")
		}
		if head.err != nil {
			if head.kind == requestListen && head.sub != nil {
				// The LISTEN query failed; roll back the registration.
				if sub, _, ok := c.registry.remove(head.sub.handle); ok {
					c.unwatch(sub.handle)
					close(sub.c)
				}
			}
			c.completeHead(reply{err: head.err})
		} else {
			rep, err := c.finishRequest(head)
			if err != nil {
				return err
			}
			c.completeHead(rep)
		}
		c.pump()
		return nil

	case phaseReady:
		// Spurious but harmless.
		return nil

	default:
		return ProtocolError("unexpected ReadyForQuery")
	}
}

// finishRequest builds the reply for a successfully completed head request.
func (c *Conn) finishRequest(req *request) (reply, error) {
	switch req.kind {
	case requestQuery:
		result, err := c.buildResult()
		if err != nil {
			// A value decode failure is local to this request.
			return reply{err: err}, nil
		}
		if c.shouldLog(LogLevelInfo) {
			c.log(LogLevelInfo, "query", map[string]interface{}{"sql": req.sql, "args": logQueryArgs(req.args), "rowCount": result.NumRows()})
		}
		return reply{result: result}, nil

	case requestListen:
		return reply{sub: req.sub}, nil

	case requestUnlisten, requestUnlistenChannel:
		return reply{}, nil

	default:
		return reply{}, ProtocolError(fmt.Sprintf("request kind %v completed a query cycle", req.kind))
	}
}

func (c *Conn) completeHead(rep reply) {
	head := c.queue.pop()
	if head != nil {
		head.reply(rep)
	}
}

func (c *Conn) storeRowDescription(msg *pgproto3.RowDescription) {
	c.columns = make([]string, len(msg.Fields))
	c.colOIDs = make([]uint32, len(msg.Fields))
	c.colFormats = make([]int16, len(msg.Fields))
	for i := range msg.Fields {
		c.columns[i] = string(msg.Fields[i].Name)
		c.colOIDs[i] = msg.Fields[i].DataTypeOID
		c.colFormats[i] = msg.Fields[i].Format
	}
	// A new result set within one simple query replaces the previous one.
	c.rows = nil
}

func (c *Conn) storeDataRow(msg *pgproto3.DataRow) {
	row := make([][]byte, len(msg.Values))
	for i, v := range msg.Values {
		if v == nil {
			continue
		}
		row[i] = make([]byte, len(v))
		copy(row[i], v)
	}
	c.rows = append(c.rows, row)
}

func (c *Conn) buildResult() (*Result, error) {
	result := &Result{
		Columns:    c.columns,
		Rows:       make([][]interface{}, len(c.rows)),
		CommandTag: c.commandTag,
	}
	if result.Columns == nil {
		result.Columns = []string{}
	}

	for i, raw := range c.rows {
		row := make([]interface{}, len(raw))
		for j, data := range raw {
			oid, format := UnknownOID, TextFormatCode
			if j < len(c.colOIDs) {
				oid, format = c.colOIDs[j], c.colFormats[j]
			}
			value, err := c.config.Decoder(c.types, oid, format, data)
			if err != nil {
				return nil, errors.Wrapf(err, "cannot decode row %d column %d", i, j)
			}
			row[j] = value
		}
		result.Rows[i] = row
	}

	return result, nil
}

func (c *Conn) txPasswordMessage(password string) error {
	_, err := c.netConn.Write((&pgproto3.PasswordMessage{Password: password}).Encode(nil))
	return err
}

func hexMD5(s string) string {
	hash := md5.New()
	io.WriteString(hash, s)
	return hex.EncodeToString(hash.Sum(nil))
}

// watch starts observing the subscriber's context. Cancellation reports the
// handle to the supervisor as a subscriber death.
func (c *Conn) watch(sub *Subscription, ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	h := sub.handle
	done := sub.done
	cw := ctxwatch.NewContextWatcher(func() {
		select {
		case c.deaths <- h:
		case <-done:
		case <-c.done:
		}
	}, func() {})
	cw.Watch(ctx)
	c.watchers[h] = cw
}

func (c *Conn) unwatch(h Handle) {
	if cw, ok := c.watchers[h]; ok {
		cw.Unwatch()
		delete(c.watchers, h)
	}
}

// subscriberDied applies the implicit unlisten for a dead subscriber. No
// caller reply is expected; when the channel drains, an internal UNLISTEN is
// injected to run next.
func (c *Conn) subscriberDied(h Handle) {
	sub, last, ok := c.registry.remove(h)
	if !ok {
		return
	}
	c.unwatch(h)
	close(sub.c)
	if c.shouldLog(LogLevelDebug) {
		c.log(LogLevelDebug, "subscriber died", map[string]interface{}{"channel": sub.channel, "lastForChannel": last})
	}
	if !last {
		return
	}

	req := &request{kind: requestUnlistenChannel, channel: sub.channel}
	if c.phase == phaseReady {
		c.queue.pushFront(req)
		c.pump()
	} else {
		c.queue.injectBehindHead(req)
	}
}

// die terminates the connection: every queued request receives a terminal
// error, subscriptions are closed, and the socket is shut down.
func (c *Conn) die(err error) {
	if c.phase == phaseTerminating {
		return
	}
	c.phase = phaseTerminating

	c.mu.Lock()
	c.alive = false
	c.causeOfDeath = err
	c.mu.Unlock()

	if err != errConnClosed && c.shouldLog(LogLevelError) {
		c.log(LogLevelError, "connection terminated", map[string]interface{}{"err": err})
	}

	head := true
	for _, req := range c.queue.drain() {
		if head {
			req.reply(reply{err: err})
			head = false
		} else {
			req.reply(reply{err: ErrDeadConn})
		}
	}

	close(c.done)

	for _, sub := range c.registry.all() {
		if removed, _, ok := c.registry.remove(sub.handle); ok {
			c.unwatch(removed.handle)
			close(removed.c)
		}
	}

	c.netConn.Close()
}

func (c *Conn) shouldLog(lvl LogLevel) bool {
	return c.config.Logger != nil && c.config.LogLevel >= lvl
}

func (c *Conn) log(lvl LogLevel, msg string, data map[string]interface{}) {
	if !c.shouldLog(lvl) {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	if pid := c.PID(); pid != 0 {
		data["pid"] = pid
	}
	c.config.Logger.Log(context.Background(), lvl, msg, data)
}
