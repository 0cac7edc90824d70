package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/proto"
)

// Protobuf encodes proto messages. The zero value is ready to use.
//
// A single message uses the standard wire format. A slice of message pointers
// is written as size-delimited messages back to back, so sessions over a
// message type (T = *mypb.User) can use both ToClass and ToArray.
type Protobuf struct{}

var _ Codec = Protobuf{}

var (
	errNotMessage = errors.New("protobuf codec: not a proto message")
	messageType   = reflect.TypeOf((*proto.Message)(nil)).Elem()
)

func (Protobuf) Name() string { return "protobuf" }

func (Protobuf) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || !rv.Type().Elem().Implements(messageType) {
		return nil, fmt.Errorf("%w: %T", errNotMessage, v)
	}
	var buf bytes.Buffer
	for i := 0; i < rv.Len(); i++ {
		m, _ := rv.Index(i).Interface().(proto.Message)
		if _, err := protodelim.MarshalTo(&buf, m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal accepts a message (*M), a pointer to a message pointer (**M),
// or a pointer to a slice of message pointers (*[]*M).
func (Protobuf) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: %T", errNotMessage, v)
	}
	target := rv.Elem()
	tt := target.Type()

	switch {
	case tt.Kind() == reflect.Pointer && tt.Implements(messageType):
		m := reflect.New(tt.Elem())
		if err := proto.Unmarshal(data, m.Interface().(proto.Message)); err != nil {
			return err
		}
		target.Set(m)
		return nil

	case tt.Kind() == reflect.Slice && tt.Elem().Kind() == reflect.Pointer && tt.Elem().Implements(messageType):
		out := reflect.MakeSlice(tt, 0, 0)
		r := bytes.NewReader(data)
		for {
			m := reflect.New(tt.Elem().Elem())
			err := protodelim.UnmarshalFrom(r, m.Interface().(proto.Message))
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			out = reflect.Append(out, m)
		}
		target.Set(out)
		return nil
	}
	return fmt.Errorf("%w: %T", errNotMessage, v)
}
