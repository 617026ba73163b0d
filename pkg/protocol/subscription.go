package protocol

import "fmt"

// NewSubscribeRequest builds a variable subscription command. Subscribing
// with no variables cancels the subscription.
func NewSubscribeRequest(cmd byte, begin, end float64, objectID string, vars []SubscriptionVar) *Request {
	q := NewRequest(cmd).Double(begin).Double(end).ID(objectID).Ubyte(uint8(len(vars)))
	for _, sv := range vars {
		q.Ubyte(sv.Var)
		if sv.Param != nil {
			q.Param(sv.Param)
		}
	}
	return q
}

// VariableResult is one variable of a subscription response. When Status is
// not StatusOK the value holds SUMO's error string.
type VariableResult struct {
	Var    byte
	Status byte
	Value  Value
}

func (v VariableResult) OK() bool {
	return v.Status == StatusOK
}

// SubscriptionResponse is the per-object block SUMO sends for a subscription,
// both as the reply to subscribing and after every step.
type SubscriptionResponse struct {
	Response  byte
	ObjectID  string
	Variables []VariableResult
}

// ReadSubscriptionResponse decodes the content of a subscription response
// command.
func ReadSubscriptionResponse(resp byte, c *Reader) (*SubscriptionResponse, error) {
	sr := &SubscriptionResponse{Response: resp, ObjectID: c.String()}
	n := int(c.Ubyte())
	sr.Variables = make([]VariableResult, 0, n)
	for i := 0; i < n && c.Err() == nil; i++ {
		v := VariableResult{Var: c.Ubyte(), Status: c.Ubyte()}
		v.Value = c.Value()
		sr.Variables = append(sr.Variables, v)
	}
	if err := c.Err(); err != nil {
		return nil, &DesyncError{Stage: fmt.Sprintf("subscription response 0x%02x", resp), Err: err}
	}
	if c.Remaining() != 0 {
		return nil, &DesyncError{
			Stage: fmt.Sprintf("subscription response 0x%02x", resp),
			Err:   fmt.Errorf("%d trailing bytes for object %q", c.Remaining(), sr.ObjectID),
		}
	}
	return sr, nil
}

// Encode returns the framed response command.
func (sr *SubscriptionResponse) Encode() []byte {
	w := NewWriter().String(sr.ObjectID).Ubyte(uint8(len(sr.Variables)))
	for _, v := range sr.Variables {
		w.Ubyte(v.Var).Ubyte(v.Status).Value(v.Value)
	}
	return NewWriter().Command(sr.Response, w.Bytes()).Bytes()
}

// Find returns the result of variable v.
func (sr *SubscriptionResponse) Find(v byte) (VariableResult, bool) {
	for _, vr := range sr.Variables {
		if vr.Var == v {
			return vr, true
		}
	}
	return VariableResult{}, false
}

// Subscription reads the subscription response following the status of a
// subscribe command. Unsubscribing yields no response and returns nil.
func (resp *Response) Subscription(respCmd byte) (*SubscriptionResponse, error) {
	if resp.Body.Remaining() == 0 {
		return nil, nil
	}
	id, c := resp.Body.Command()
	if err := resp.Body.Err(); err != nil {
		return nil, &DesyncError{Stage: "subscribe response", Err: err}
	}
	if id != respCmd {
		return nil, &DesyncError{Stage: "subscribe response", Err: fmt.Errorf("response 0x%02x, expected 0x%02x", id, respCmd)}
	}
	return ReadSubscriptionResponse(id, c)
}

// StepResponses reads the subscription results that follow the status of a
// simulation step.
func (resp *Response) StepResponses() ([]*SubscriptionResponse, error) {
	n := resp.Body.Int()
	if err := resp.Body.Err(); err != nil {
		return nil, &DesyncError{Stage: "step response", Err: err}
	}
	if n < 0 || int(n) > resp.Body.Remaining() {
		return nil, &DesyncError{Stage: "step response", Err: fmt.Errorf("invalid response count %d", n)}
	}
	out := make([]*SubscriptionResponse, 0, n)
	for i := int32(0); i < n; i++ {
		id, c := resp.Body.Command()
		if err := resp.Body.Err(); err != nil {
			return nil, &DesyncError{Stage: fmt.Sprintf("step response %d", i), Err: err}
		}
		sr, err := ReadSubscriptionResponse(id, c)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	if resp.Body.Remaining() != 0 {
		return nil, &DesyncError{Stage: "step response", Err: fmt.Errorf("%d trailing bytes", resp.Body.Remaining())}
	}
	return out, nil
}

// EncodeStepResponses builds the part of a step reply after the status.
func EncodeStepResponses(responses []*SubscriptionResponse) []byte {
	w := NewWriter().Int(int32(len(responses)))
	for _, sr := range responses {
		w.Raw(sr.Encode())
	}
	return w.Bytes()
}
