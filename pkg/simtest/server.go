package simtest

import (
	"fmt"
	"net"
	"sync"

	"github.com/kalifun/tracilink/pkg/protocol"
	"github.com/kalifun/tracilink/pkg/types"
	"github.com/sirupsen/logrus"
)

type subscription struct {
	kind   types.EntityKind
	resp   byte
	id     string
	window types.Window
	vars   []protocol.SubscriptionVar
}

// Server answers TraCI requests from a World. It serves one client at a
// time, the way SUMO does with a single remote port client.
type Server struct {
	world *World
	ln    net.Listener

	mu         sync.Mutex
	identifier string
	apiLevel   int
	subs       []*subscription
	simVars    []protocol.SubscriptionVar
	order      int
	requests   []byte
	garbleNext bool
	conn       net.Conn

	logger *logrus.Entry
	wg     sync.WaitGroup
}

// NewServer listens on a free loopback port and starts serving.
func NewServer(w *World) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		world:      w,
		ln:         ln,
		identifier: "SUMO v" + Release,
		apiLevel:   APILevel,
		logger:     logrus.WithField("component", "simtest-server"),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// WithVersion changes the reported identifier and API level.
func (s *Server) WithVersion(identifier string, apiLevel int) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identifier, s.apiLevel = identifier, apiLevel
	return s
}

// GarbleNext makes the next response undecodable.
func (s *Server) GarbleNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.garbleNext = true
}

// DropConnection closes the client connection without a reply.
func (s *Server) DropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Requests returns the opcodes received so far, in order.
func (s *Server) Requests() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte{}, s.requests...)
}

// Order returns the client order set through CMD_SETORDER.
func (s *Server) Order() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

// Subscriptions returns the number of active object subscriptions.
func (s *Server) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) Close() error {
	err := s.ln.Close()
	s.DropConnection()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.subs, s.simVars = nil, nil
		s.mu.Unlock()
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	for {
		body, err := protocol.ReadMessage(conn)
		if err != nil {
			return
		}
		out, closing := s.dispatch(body)

		s.mu.Lock()
		if s.garbleNext {
			s.garbleNext = false
			out = []byte{0x07, 0x00}
		}
		s.mu.Unlock()

		if err := protocol.WriteMessage(conn, out); err != nil || closing {
			return
		}
	}
}

// dispatch answers every command of one message.
func (s *Server) dispatch(body []byte) ([]byte, bool) {
	r := protocol.NewReader(body)
	var (
		out     []byte
		closing bool
	)
	for r.Remaining() > 0 {
		cmd, c := r.Command()
		if r.Err() != nil {
			s.logger.WithError(r.Err()).Warn("Malformed request")
			return out, true
		}
		s.mu.Lock()
		s.requests = append(s.requests, cmd)
		s.mu.Unlock()

		out = append(out, s.command(cmd, c)...)
		if cmd == protocol.CmdClose {
			closing = true
		}
	}
	return out, closing
}

func ok(cmd byte) []byte {
	return protocol.EncodeStatus(cmd, protocol.StatusOK, "")
}

func fail(cmd byte, err error) []byte {
	return protocol.EncodeStatus(cmd, protocol.StatusErr, err.Error())
}

func (s *Server) command(cmd byte, c *protocol.Reader) []byte {
	switch cmd {
	case protocol.CmdGetVersion:
		s.mu.Lock()
		content := protocol.NewWriter().Int(int32(s.apiLevel)).String(s.identifier).Bytes()
		s.mu.Unlock()
		return append(ok(cmd), protocol.NewWriter().Command(protocol.CmdGetVersion, content).Bytes()...)

	case protocol.CmdSetOrder:
		order := c.Int()
		if c.Err() != nil {
			return fail(cmd, c.Err())
		}
		s.mu.Lock()
		s.order = int(order)
		s.mu.Unlock()
		return ok(cmd)

	case protocol.CmdSimStep:
		target := c.Double()
		if c.Err() != nil {
			return fail(cmd, c.Err())
		}
		if err := s.world.step(target); err != nil {
			return fail(cmd, err)
		}
		return append(ok(cmd), protocol.EncodeStepResponses(s.stepResponses())...)

	case protocol.CmdClose:
		s.world.close()
		return ok(cmd)

	case protocol.CmdSubscribeSimulationVariable:
		return s.subscribeSimulation(cmd, c)

	case protocol.CmdGetVehicleVariable, protocol.CmdSetVehicleVariable,
		protocol.CmdGetPersonVariable, protocol.CmdGetSimulationVariable:
		return s.variable(cmd, c)
	}

	if kind, ok := subscribeKind(cmd); ok {
		return s.subscribe(cmd, kind, c)
	}
	return protocol.EncodeStatus(cmd, protocol.StatusNotImplemented, fmt.Sprintf("Command 0x%02x is not implemented", cmd))
}

func subscribeKind(cmd byte) (types.EntityKind, bool) {
	for _, kind := range types.EntityKinds {
		if c, _, _ := protocol.SubscribeCommand(kind); c == cmd {
			return kind, true
		}
	}
	return "", false
}

// readSubscribeHeader reads begin, end, object id and the variable list.
// Leader and parameter variables carry a typed parameter.
func readSubscribeHeader(c *protocol.Reader) (types.Window, string, []protocol.SubscriptionVar, error) {
	w := types.Window{Begin: c.Double(), End: c.Double()}
	id := c.String()
	n := int(c.Ubyte())
	vars := make([]protocol.SubscriptionVar, 0, n)
	for i := 0; i < n && c.Err() == nil; i++ {
		sv := protocol.SubscriptionVar{Var: c.Ubyte()}
		if sv.Var == protocol.VarLeader || sv.Var == protocol.VarParameter {
			sv.Param = c.Value()
		}
		vars = append(vars, sv)
	}
	if c.Err() == nil && c.Remaining() != 0 {
		return w, id, nil, fmt.Errorf("%d unread bytes in subscription", c.Remaining())
	}
	return w, id, vars, c.Err()
}

func (s *Server) subscribe(cmd byte, kind types.EntityKind, c *protocol.Reader) []byte {
	window, id, vars, err := readSubscribeHeader(c)
	if err != nil {
		return fail(cmd, err)
	}
	_, resp, _ := protocol.SubscribeCommand(kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, sub := range s.subs {
		if sub.kind == kind && sub.id == id {
			idx = i
		}
	}
	if len(vars) == 0 {
		if idx >= 0 {
			s.subs = append(s.subs[:idx], s.subs[idx+1:]...)
		}
		return ok(cmd)
	}
	if err := s.world.exists(kind, id); err != nil {
		return fail(cmd, err)
	}
	sub := &subscription{kind: kind, resp: resp, id: id, window: window, vars: vars}
	if idx >= 0 {
		s.subs[idx] = sub
	} else {
		s.subs = append(s.subs, sub)
	}
	return append(ok(cmd), s.responseFor(sub).Encode()...)
}

func (s *Server) subscribeSimulation(cmd byte, c *protocol.Reader) []byte {
	_, _, vars, err := readSubscribeHeader(c)
	if err != nil {
		return fail(cmd, err)
	}
	s.mu.Lock()
	s.simVars = vars
	s.mu.Unlock()
	if len(vars) == 0 {
		return ok(cmd)
	}
	return append(ok(cmd), s.simulationResponse(vars).Encode()...)
}

func (s *Server) responseFor(sub *subscription) *protocol.SubscriptionResponse {
	sr := &protocol.SubscriptionResponse{Response: sub.resp, ObjectID: sub.id}
	for _, sv := range sub.vars {
		v, err := s.world.value(sub.kind, sub.id, sv)
		if err != nil {
			sr.Variables = append(sr.Variables, protocol.VariableResult{Var: sv.Var, Status: protocol.StatusErr, Value: protocol.Str(err.Error())})
			continue
		}
		sr.Variables = append(sr.Variables, protocol.VariableResult{Var: sv.Var, Status: protocol.StatusOK, Value: v})
	}
	return sr
}

func (s *Server) simulationResponse(vars []protocol.SubscriptionVar) *protocol.SubscriptionResponse {
	arrivedVehicles, arrivedPersons, departedPersons := s.world.stepLists()
	sr := &protocol.SubscriptionResponse{Response: protocol.RespSubscribeSimulation}
	for _, sv := range vars {
		var v protocol.Value
		switch sv.Var {
		case protocol.VarArrivedVehicleIDs:
			v = protocol.StringList(arrivedVehicles)
		case protocol.VarArrivedPersonIDs:
			v = protocol.StringList(arrivedPersons)
		case protocol.VarDepartedPersonIDs:
			v = protocol.StringList(departedPersons)
		case protocol.VarTime:
			v = protocol.Double(s.world.Time())
		default:
			sr.Variables = append(sr.Variables, protocol.VariableResult{Var: sv.Var, Status: protocol.StatusErr, Value: protocol.Str("unsupported simulation variable")})
			continue
		}
		sr.Variables = append(sr.Variables, protocol.VariableResult{Var: sv.Var, Status: protocol.StatusOK, Value: v})
	}
	return sr
}

// stepResponses drops subscriptions of entities that left the simulation
// and reports the others whose window contains the current time.
func (s *Server) stepResponses() []*protocol.SubscriptionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.world.Time()
	var out []*protocol.SubscriptionResponse
	if len(s.simVars) > 0 {
		out = append(out, s.simulationResponse(s.simVars))
	}
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if s.world.exists(sub.kind, sub.id) != nil {
			continue
		}
		kept = append(kept, sub)
		begin, end := sub.window.Bounds()
		if begin <= now && now <= end {
			out = append(out, s.responseFor(sub))
		}
	}
	s.subs = kept
	return out
}

// variable answers the value retrieval and state change commands the bridge uses.
func (s *Server) variable(cmd byte, c *protocol.Reader) []byte {
	v := c.Ubyte()
	id := c.String()
	if c.Err() != nil {
		return fail(cmd, c.Err())
	}

	var (
		resp  byte
		value protocol.Value
		err   error
	)
	switch {
	case cmd == protocol.CmdGetVehicleVariable && v == protocol.VarTaxiFleet:
		resp = protocol.RespGetVehicleVariable
		flag := c.TypedInt()
		if err = c.Err(); err == nil {
			var ids []string
			ids, err = s.world.taxiFleet(int(flag))
			value = protocol.StringList(ids)
		}
	case cmd == protocol.CmdSetVehicleVariable && v == protocol.VarTaxiDispatch:
		reservations := c.TypedStringList()
		if err = c.Err(); err == nil {
			err = s.world.dispatchTaxi(id, reservations)
		}
		if err != nil {
			return fail(cmd, err)
		}
		return ok(cmd)
	case cmd == protocol.CmdGetPersonVariable && v == protocol.VarTaxiReservations:
		resp = protocol.RespGetPersonVariable
		filter := c.TypedInt()
		if err = c.Err(); err == nil {
			var rs []types.TaxiReservation
			rs, err = s.world.taxiReservations(int(filter))
			value = protocol.ReservationsValue(rs)
		}
	case cmd == protocol.CmdGetPersonVariable && v == protocol.VarTypeID:
		resp = protocol.RespGetPersonVariable
		var typeID string
		typeID, err = s.world.personTypeID(id)
		value = protocol.Str(typeID)
	case cmd == protocol.CmdGetSimulationVariable:
		resp = protocol.RespGetSimulationVariable
		sr := s.simulationResponse([]protocol.SubscriptionVar{{Var: v}})
		if !sr.Variables[0].OK() {
			err = fmt.Errorf("Simulation variable 0x%02x is not supported", v)
		}
		value = sr.Variables[0].Value
	default:
		return protocol.EncodeStatus(cmd, protocol.StatusNotImplemented, fmt.Sprintf("Variable 0x%02x is not implemented", v))
	}

	if err != nil {
		return fail(cmd, err)
	}
	return append(ok(cmd), protocol.EncodeVariable(resp, v, id, value)...)
}
