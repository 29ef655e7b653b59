package lwm2m

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Penlect/emqxlwm2m/errors"
)

// NoReqID marks an uplink response that arrived without a request
// identifier. Such responses are correlated by path only.
const NoReqID = -1

// wireMessage is the outer JSON envelope shared by all message types.
type wireMessage struct {
	ReqID   *int            `json:"reqID,omitempty"`
	SeqNum  *int            `json:"seqNum,omitempty"`
	MsgType MessageType     `json:"msgType"`
	Data    json.RawMessage `json:"data"`
}

// wireData is the data object of uplink messages. Content stays raw until
// the message type determines its shape.
type wireData struct {
	Path          string          `json:"path,omitempty"`
	ReqPath       string          `json:"reqPath,omitempty"`
	Code          Code            `json:"code,omitempty"`
	CodeMsg       string          `json:"codeMsg,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	ObjectList    []string        `json:"objectList,omitempty"`
	Version       string          `json:"lwm2m,omitempty"`
	Lifetime      int64           `json:"lt,omitempty"`
	SMS           string          `json:"sms,omitempty"`
	Binding       string          `json:"b,omitempty"`
	AlternatePath string          `json:"alternatePath,omitempty"`
}

type wireContentItem struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// EncodeRequest serializes a downlink command with its allocated request
// identifier into the wire JSON envelope.
func EncodeRequest(req Request, reqID int) ([]byte, error) {
	data, err := requestData(req)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeRequest", "build data")
	}
	payload := map[string]any{
		"reqID":   reqID,
		"msgType": req.Type(),
		"data":    data,
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "EncodeRequest", "marshal envelope")
	}
	return out, nil
}

func requestData(req Request) (map[string]any, error) {
	switch r := req.(type) {
	case DiscoverRequest:
		return map[string]any{"path": r.Path.String()}, nil
	case ReadRequest:
		return map[string]any{"path": r.Path.String()}, nil
	case DeleteRequest:
		return map[string]any{"path": r.Path.String()}, nil
	case ObserveRequest:
		return map[string]any{"path": r.Path.String()}, nil
	case CancelObserveRequest:
		return map[string]any{"path": r.Path.String()}, nil
	case ExecuteRequest:
		return map[string]any{"path": r.Path.String(), "args": r.Args}, nil
	case WriteRequest:
		return writeData(r)
	case WriteAttrRequest:
		return writeAttrData(r), nil
	case CreateRequest:
		return createData(r)
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

func writeData(r WriteRequest) (map[string]any, error) {
	if len(r.Values) == 0 {
		return nil, fmt.Errorf("write request without values")
	}
	if len(r.Values) == 1 {
		for p, v := range r.Values {
			typeName, value, err := wireTypeValue(v)
			if err != nil {
				return nil, err
			}
			return map[string]any{"path": p.String(), "type": typeName, "value": value}, nil
		}
	}
	// Batch form: all paths must share one object instance.
	data := make(map[string]any)
	var content []map[string]any
	for p, v := range r.Values {
		parts := p.Parts()
		if len(parts) != 3 {
			return nil, fmt.Errorf("batch write path %q is not a resource path", p)
		}
		data["basePath"] = parts[0] + "/" + parts[1] + "/"
		typeName, value, err := wireTypeValue(v)
		if err != nil {
			return nil, err
		}
		content = append(content, map[string]any{"path": parts[2], "type": typeName, "value": value})
	}
	data["content"] = content
	return data, nil
}

// writeAttrData carries threshold values as strings, unset fields omitted.
func writeAttrData(r WriteAttrRequest) map[string]any {
	data := map[string]any{"path": r.Path.String()}
	if r.PMin != nil {
		data["pmin"] = strconv.Itoa(*r.PMin)
	}
	if r.PMax != nil {
		data["pmax"] = strconv.Itoa(*r.PMax)
	}
	if r.Lt != nil {
		data["lt"] = strconv.FormatFloat(*r.Lt, 'g', -1, 64)
	}
	if r.St != nil {
		data["st"] = strconv.FormatFloat(*r.St, 'g', -1, 64)
	}
	if r.Gt != nil {
		data["gt"] = strconv.FormatFloat(*r.Gt, 'g', -1, 64)
	}
	return data
}

func createData(r CreateRequest) (map[string]any, error) {
	oid, err := r.BasePath.ObjectID()
	if err != nil {
		return nil, err
	}
	var content []map[string]any
	for p, v := range r.Values {
		typeName, value, err := wireTypeValue(v)
		if err != nil {
			return nil, err
		}
		content = append(content, map[string]any{
			"path": p.String(), "type": typeName, "value": value,
		})
	}
	return map[string]any{
		"basePath": "/" + strconv.Itoa(oid),
		"content":  content,
	}, nil
}

// DecodeUplink parses an inbound payload from an endpoint and classifies
// it into exactly one of *Response, *Notification, or *Lifecycle. It is
// side-effect-free and never consults correlation state.
func DecodeUplink(endpoint string, payload []byte) (Uplink, error) {
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err),
			"Codec", "DecodeUplink", "unmarshal envelope")
	}
	if !wire.MsgType.Valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: msgType %q", errors.ErrMalformedEnvelope, wire.MsgType),
			"Codec", "DecodeUplink", "classify message")
	}

	var data wireData
	if len(wire.Data) > 0 {
		if err := json.Unmarshal(wire.Data, &data); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: data: %v", errors.ErrMalformedEnvelope, err),
				"Codec", "DecodeUplink", "unmarshal data")
		}
	}
	now := time.Now()

	switch wire.MsgType {
	case TypeRegister, TypeUpdate:
		return &Lifecycle{
			Endpoint:      endpoint,
			MsgType:       wire.MsgType,
			Lifetime:      data.Lifetime,
			SMS:           data.SMS,
			Version:       data.Version,
			Binding:       data.Binding,
			AlternatePath: data.AlternatePath,
			ObjectList:    data.ObjectList,
			Timestamp:     now,
		}, nil

	case TypeNotify:
		if wire.SeqNum == nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: notify without seqNum", errors.ErrMalformedEnvelope),
				"Codec", "DecodeUplink", "classify notify")
		}
		content, _, err := decodeContent(wire.MsgType, data.Content)
		if err != nil {
			return nil, err
		}
		reqID := NoReqID
		if wire.ReqID != nil {
			reqID = *wire.ReqID
		}
		return &Notification{
			Endpoint:  endpoint,
			ReqID:     reqID,
			SeqNum:    *wire.SeqNum,
			Code:      data.Code,
			ReqPath:   NewPath(data.ReqPath),
			Content:   content,
			Timestamp: now,
		}, nil

	default:
		content, links, err := decodeContent(wire.MsgType, data.Content)
		if err != nil {
			return nil, err
		}
		reqID := NoReqID
		if wire.ReqID != nil {
			reqID = *wire.ReqID
		}
		return &Response{
			Endpoint:  endpoint,
			MsgType:   wire.MsgType,
			ReqID:     reqID,
			Code:      data.Code,
			CodeMsg:   data.CodeMsg,
			ReqPath:   NewPath(data.ReqPath),
			Content:   content,
			RawLinks:  links,
			Timestamp: now,
		}, nil
	}
}

// decodeContent interprets the content array: discover carries CoRE link
// strings, everything else carries path/value items.
func decodeContent(msgType MessageType, raw json.RawMessage) (map[Path]any, []string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil, nil
	}
	if msgType == TypeDiscover {
		var links []string
		if err := json.Unmarshal(raw, &links); err != nil {
			return nil, nil, errors.WrapInvalid(
				fmt.Errorf("%w: discover content: %v", errors.ErrMalformedEnvelope, err),
				"Codec", "decodeContent", "unmarshal links")
		}
		return nil, links, nil
	}
	var items []wireContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: content: %v", errors.ErrMalformedEnvelope, err),
			"Codec", "decodeContent", "unmarshal items")
	}
	content := make(map[Path]any, len(items))
	for _, item := range items {
		content[NewPath(item.Path)] = item.Value
	}
	return content, nil, nil
}
