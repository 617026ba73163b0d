package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single framed message.
const MaxMessageSize = 64 << 20

// Frame prepends the total message length, which includes the four length bytes.
func Frame(body []byte) []byte {
	msg := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(msg, uint32(4+len(body)))
	return append(msg, body...)
}

// WriteMessage writes one framed message.
func WriteMessage(w io.Writer, body []byte) error {
	_, err := w.Write(Frame(body))
	return err
}

// ReadMessage reads exactly one framed message and returns its body.
func ReadMessage(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read message length: %w", err)
	}
	total := binary.BigEndian.Uint32(header[:])
	if total < 4 || total > MaxMessageSize {
		return nil, fmt.Errorf("invalid message length %d", total)
	}
	body := make([]byte, total-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}
	return body, nil
}

// Command appends a length-prefixed command. Commands longer than 255 bytes
// use the extended form: a zero byte followed by a 32-bit length.
func (w *Writer) Command(id byte, content []byte) *Writer {
	if n := 2 + len(content); n <= 255 {
		w.Ubyte(uint8(n)).Ubyte(id)
	} else {
		w.Ubyte(0).Int(int32(6 + len(content))).Ubyte(id)
	}
	return w.Raw(content)
}

// Command reads one length-prefixed command and returns its id and a reader
// over exactly its content.
func (r *Reader) Command() (byte, *Reader) {
	start := r.pos
	n := int(r.Ubyte())
	header := 2
	if r.err == nil && n == 0 {
		n = int(r.Int())
		header = 6
	}
	id := r.Ubyte()
	if r.err != nil {
		return 0, NewReader(nil)
	}
	if n < header {
		r.fail(fmt.Errorf("command length %d shorter than its header at offset %d", n, start))
		return 0, NewReader(nil)
	}
	content := r.take(n - header)
	if content == nil && r.err != nil {
		return 0, NewReader(nil)
	}
	return id, NewReader(content)
}

// Request builds one command: opcode, optional variable, object id and
// type-tagged parameters in the order the command declares them.
type Request struct {
	cmd byte
	w   *Writer
}

// NewRequest starts a command with the given opcode.
func NewRequest(cmd byte) *Request {
	return &Request{cmd: cmd, w: NewWriter()}
}

func (q *Request) Variable(v byte) *Request {
	q.w.Ubyte(v)
	return q
}

func (q *Request) ID(id string) *Request {
	q.w.String(id)
	return q
}

// Param writes a type-tagged parameter.
func (q *Request) Param(v Value) *Request {
	q.w.Value(v)
	return q
}

func (q *Request) Ubyte(v uint8) *Request {
	q.w.Ubyte(v)
	return q
}

func (q *Request) Int(v int32) *Request {
	q.w.Int(v)
	return q
}

func (q *Request) Double(v float64) *Request {
	q.w.Double(v)
	return q
}

func (q *Request) String(v string) *Request {
	q.w.String(v)
	return q
}

// Opcode returns the command opcode.
func (q *Request) Opcode() byte {
	return q.cmd
}

// Content returns the command content without framing.
func (q *Request) Content() []byte {
	return q.w.Bytes()
}

// Body returns the framed command without the message length.
func (q *Request) Body() []byte {
	return NewWriter().Command(q.cmd, q.w.Bytes()).Bytes()
}

// Message returns the complete wire message.
func (q *Request) Message() []byte {
	return Frame(q.Body())
}

// Status is the mandatory first part of every response.
type Status struct {
	Command     byte
	Result      byte
	Description string
}

// StatusError is a declared error status. The connection stays usable.
type StatusError struct {
	Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command 0x%02x returned status 0x%02x: %s", e.Command, e.Result, e.Description)
}

// DesyncError means the response did not have the declared layout. The
// stream position is unknown afterwards.
type DesyncError struct {
	Stage string
	Err   error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *DesyncError) Unwrap() error {
	return e.Err
}

// Response is a decoded status plus a reader over the remaining body.
type Response struct {
	Status Status
	Body   *Reader
}

// DecodeResponse reads the status section of a response body. A non-OK status
// returns the response together with a *StatusError; layout problems return a
// *DesyncError.
func DecodeResponse(body []byte, cmd byte) (*Response, error) {
	r := NewReader(body)
	id, sr := r.Command()
	if err := r.Err(); err != nil {
		return nil, &DesyncError{Stage: "status", Err: err}
	}
	if id != cmd {
		return nil, &DesyncError{Stage: "status", Err: fmt.Errorf("status for command 0x%02x, expected 0x%02x", id, cmd)}
	}
	st := Status{Command: id, Result: sr.Ubyte(), Description: sr.String()}
	if err := sr.Err(); err != nil {
		return nil, &DesyncError{Stage: "status", Err: err}
	}
	if sr.Remaining() != 0 {
		return nil, &DesyncError{Stage: "status", Err: fmt.Errorf("%d trailing bytes in status", sr.Remaining())}
	}
	resp := &Response{Status: st, Body: r}
	if st.Result != StatusOK {
		return resp, &StatusError{Status: st}
	}
	return resp, nil
}

// EncodeStatus builds a status command body.
func EncodeStatus(cmd, result byte, description string) []byte {
	content := NewWriter().Ubyte(result).String(description).Bytes()
	return NewWriter().Command(cmd, content).Bytes()
}

// Variable reads a value retrieval response command: response opcode,
// variable, object id and one tagged value.
func (resp *Response) Variable(respCmd, variable byte) (string, Value, error) {
	id, c := resp.Body.Command()
	if err := resp.Body.Err(); err != nil {
		return "", nil, &DesyncError{Stage: "variable response", Err: err}
	}
	if id != respCmd {
		return "", nil, &DesyncError{Stage: "variable response", Err: fmt.Errorf("response 0x%02x, expected 0x%02x", id, respCmd)}
	}
	c.ExpectUbyte(variable, "variable")
	objectID := c.String()
	v := c.Value()
	if err := c.Err(); err != nil {
		return "", nil, &DesyncError{Stage: "variable response", Err: err}
	}
	return objectID, v, nil
}

// EncodeVariable builds a value retrieval response command.
func EncodeVariable(respCmd, variable byte, objectID string, v Value) []byte {
	content := NewWriter().Ubyte(variable).String(objectID).Value(v).Bytes()
	return NewWriter().Command(respCmd, content).Bytes()
}
