package session

import (
	"bytes"
	"fmt"

	"github.com/danmuck/armlink/internal/protocol/frame"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/tlv"
)

// ProtocolVersion is the command-set version this client speaks in Connect.
const ProtocolVersion uint16 = 5

// Request is one command-channel request.
type Request struct {
	Kind      uint32
	CommandID uint32
	Fields    []tlv.Field
}

// Response is one command-channel response correlated by Kind and CommandID.
type Response struct {
	Kind      uint32
	CommandID uint32
	Status    uint8
	Fields    []tlv.Field
}

// EncodeRequestFrame validates and frames one request.
func EncodeRequestFrame(req Request) ([]byte, error) {
	if req.CommandID == 0 {
		return nil, fmt.Errorf("session: %s request missing command_id", schema.KindName(req.Kind))
	}
	if err := schema.Validate(req.Kind, req.Fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   uint64(req.CommandID),
			MessageType: req.Kind,
		},
		Payload: tlv.EncodeFields(req.Fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRequestFrame parses one request frame with schema validation.
func DecodeRequestFrame(f frame.Frame) (Request, error) {
	if f.Header.Flags&frame.FlagIsResponse != 0 {
		return Request{}, fmt.Errorf("session: expected request, got response frame")
	}
	id, err := commandID(f.Header)
	if err != nil {
		return Request{}, err
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Request{}, err
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return Request{}, err
	}
	return Request{Kind: f.Header.MessageType, CommandID: id, Fields: fields}, nil
}

// EncodeResponseFrame frames one response. The status field is written first.
func EncodeResponseFrame(resp Response) ([]byte, error) {
	fields := make([]tlv.Field, 0, len(resp.Fields)+1)
	fields = append(fields, tlv.U8(schema.FieldStatus, resp.Status))
	for _, f := range resp.Fields {
		if f.ID == schema.FieldStatus {
			continue
		}
		fields = append(fields, f)
	}
	if err := schema.ValidateResponse(resp.Kind, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   uint64(resp.CommandID),
			MessageType: resp.Kind,
			Flags:       frame.FlagIsResponse,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeResponseFrame parses one response frame with schema validation.
func DecodeResponseFrame(f frame.Frame) (Response, error) {
	if f.Header.Flags&frame.FlagIsResponse == 0 {
		return Response{}, fmt.Errorf("session: expected response, got request frame")
	}
	id, err := commandID(f.Header)
	if err != nil {
		return Response{}, err
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Response{}, err
	}
	if err := schema.ValidateResponse(f.Header.MessageType, fields); err != nil {
		return Response{}, err
	}
	status, err := tlv.GetU8(fields, schema.FieldStatus)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Kind:      f.Header.MessageType,
		CommandID: id,
		Status:    status,
		Fields:    fields,
	}, nil
}

func commandID(h frame.Header) (uint32, error) {
	if h.MessageID == 0 || h.MessageID > uint64(^uint32(0)) {
		return 0, fmt.Errorf("session: invalid command_id %d", h.MessageID)
	}
	return uint32(h.MessageID), nil
}

// ConnectRequest opens a session and tells the controller where to send state datagrams.
type ConnectRequest struct {
	Version uint16
	UDPPort uint16
}

func (c ConnectRequest) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.U16(schema.FieldVersion, c.Version),
		tlv.U16(schema.FieldUDPPort, c.UDPPort),
	}
}

// ParseConnectRequest reads the connect fields of a decoded request.
func ParseConnectRequest(req Request) (ConnectRequest, error) {
	version, err := tlv.GetU16(req.Fields, schema.FieldVersion)
	if err != nil {
		return ConnectRequest{}, err
	}
	port, err := tlv.GetU16(req.Fields, schema.FieldUDPPort)
	if err != nil {
		return ConnectRequest{}, err
	}
	return ConnectRequest{Version: version, UDPPort: port}, nil
}

// ConnectVersion reads the controller version carried by a Connect response.
func ConnectVersion(resp Response) (uint16, error) {
	return tlv.GetU16(resp.Fields, schema.FieldVersion)
}
