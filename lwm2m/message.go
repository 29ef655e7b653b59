package lwm2m

import "time"

// MessageType is the msgType discriminator of a wire envelope.
type MessageType string

// Downlink command types and uplink event types.
const (
	TypeDiscover      MessageType = "discover"
	TypeRead          MessageType = "read"
	TypeWrite         MessageType = "write"
	TypeWriteAttr     MessageType = "write-attr"
	TypeExecute       MessageType = "execute"
	TypeCreate        MessageType = "create"
	TypeDelete        MessageType = "delete"
	TypeObserve       MessageType = "observe"
	TypeCancelObserve MessageType = "cancel-observe"
	TypeNotify        MessageType = "notify"
	TypeRegister      MessageType = "register"
	TypeUpdate        MessageType = "update"
)

var validMsgTypes = map[MessageType]bool{
	TypeDiscover: true, TypeRead: true, TypeWrite: true, TypeWriteAttr: true,
	TypeExecute: true, TypeCreate: true, TypeDelete: true, TypeObserve: true,
	TypeCancelObserve: true, TypeNotify: true, TypeRegister: true, TypeUpdate: true,
}

// Valid reports whether t is a recognized message type.
func (t MessageType) Valid() bool { return validMsgTypes[t] }

// Request is a downlink command to be serialized and published to an
// endpoint's command topic.
type Request interface {
	// Type returns the wire msgType of the command.
	Type() MessageType
	// TargetPath returns the path the command addresses. It doubles as the
	// secondary correlation key for transports that drop the request
	// identifier on some response types.
	TargetPath() Path
}

// DiscoverRequest lists resources and attached attributes under a path.
type DiscoverRequest struct {
	Path Path
}

// Type implements Request.
func (r DiscoverRequest) Type() MessageType { return TypeDiscover }

// TargetPath implements Request.
func (r DiscoverRequest) TargetPath() Path { return r.Path }

// ReadRequest reads the value(s) under a path.
type ReadRequest struct {
	Path Path
}

// Type implements Request.
func (r ReadRequest) Type() MessageType { return TypeRead }

// TargetPath implements Request.
func (r ReadRequest) TargetPath() Path { return r.Path }

// WriteRequest writes one or more resource values. A single entry is sent
// in the compact single-resource form; multiple entries are sent as a
// batch under their common object instance.
type WriteRequest struct {
	Values map[Path]any
}

// Type implements Request.
func (r WriteRequest) Type() MessageType { return TypeWrite }

// TargetPath implements Request.
func (r WriteRequest) TargetPath() Path {
	for p := range r.Values {
		return p
	}
	return ""
}

// WriteAttrRequest attaches notification attributes to a path.
type WriteAttrRequest struct {
	Path Path
	Attributes
}

// Type implements Request.
func (r WriteAttrRequest) Type() MessageType { return TypeWriteAttr }

// TargetPath implements Request.
func (r WriteAttrRequest) TargetPath() Path { return r.Path }

// ExecuteRequest invokes an executable resource.
type ExecuteRequest struct {
	Path Path
	Args string
}

// Type implements Request.
func (r ExecuteRequest) Type() MessageType { return TypeExecute }

// TargetPath implements Request.
func (r ExecuteRequest) TargetPath() Path { return r.Path }

// CreateRequest creates an object instance. Values are keyed by paths
// relative to BasePath, e.g. BasePath "/1" with "/0/0" entries.
type CreateRequest struct {
	BasePath Path
	Values   map[Path]any
}

// Type implements Request.
func (r CreateRequest) Type() MessageType { return TypeCreate }

// TargetPath implements Request.
func (r CreateRequest) TargetPath() Path { return r.BasePath }

// DeleteRequest deletes an object instance.
type DeleteRequest struct {
	Path Path
}

// Type implements Request.
func (r DeleteRequest) Type() MessageType { return TypeDelete }

// TargetPath implements Request.
func (r DeleteRequest) TargetPath() Path { return r.Path }

// ObserveRequest opens an observation on a path.
type ObserveRequest struct {
	Path Path
}

// Type implements Request.
func (r ObserveRequest) Type() MessageType { return TypeObserve }

// TargetPath implements Request.
func (r ObserveRequest) TargetPath() Path { return r.Path }

// CancelObserveRequest cancels an observation on a path.
type CancelObserveRequest struct {
	Path Path
}

// Type implements Request.
func (r CancelObserveRequest) Type() MessageType { return TypeCancelObserve }

// TargetPath implements Request.
func (r CancelObserveRequest) TargetPath() Path { return r.Path }

// Uplink is an inbound message already classified by the codec. Exactly
// one of the concrete types *Response, *Notification, *Lifecycle
// implements it.
type Uplink interface {
	// EndpointName returns the endpoint the message originated from.
	EndpointName() string
}

// Response is the correlated answer to a downlink command.
type Response struct {
	Endpoint  string
	MsgType   MessageType
	ReqID     int
	Code      Code
	CodeMsg   string
	ReqPath   Path
	Content   map[Path]any
	RawLinks  []string // discover content, CoRE link format
	Timestamp time.Time
}

// EndpointName implements Uplink.
func (r *Response) EndpointName() string { return r.Endpoint }

// Value returns the content value stored under the requested path, or the
// whole content map when the response carries values for other paths.
func (r *Response) Value() any {
	if v, ok := r.Content[NewPath(string(r.ReqPath))]; ok {
		return v
	}
	if len(r.Content) > 0 {
		return r.Content
	}
	return nil
}

// Links parses the discover content into path-to-attribute maps.
func (r *Response) Links() map[Path]map[string]any {
	return parseCoreLinks(r.RawLinks)
}

// Notification is unsolicited observation traffic. SeqNum is the strictly
// increasing per-observation counter; ReqID carries the identifier of the
// originating observe command (the first notification doubles as its
// acknowledgment).
type Notification struct {
	Endpoint  string
	ReqID     int
	SeqNum    int
	Code      Code
	ReqPath   Path
	Content   map[Path]any
	Timestamp time.Time
}

// EndpointName implements Uplink.
func (n *Notification) EndpointName() string { return n.Endpoint }

// Lifecycle is an unsolicited register or update event describing the
// endpoint's current state. It carries no request identifier.
type Lifecycle struct {
	Endpoint      string
	MsgType       MessageType // TypeRegister or TypeUpdate
	Lifetime      int64
	SMS           string
	Version       string // LwM2M protocol version, e.g. "1.0"
	Binding       string
	AlternatePath string
	ObjectList    []string
	Timestamp     time.Time
}

// EndpointName implements Uplink.
func (l *Lifecycle) EndpointName() string { return l.Endpoint }
