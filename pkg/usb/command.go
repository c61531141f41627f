// Package usb carries host commands arriving over the USB interface of
// the half connected to the host.
package usb

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/robotalks/ghostkb/pkg/messages"
)

// Kind is the type of a host command.
type Kind int

// Command kinds.
const (
	KindPing Kind = iota
	KindStatus
	KindFirmwareUpdate
	KindSetRGB
	KindSetBacklight
	KindKeymap
)

var kindNames = []string{"ping", "status", "fw-update", "rgb", "backlight", "keymap"}

// String implements Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses the name of a kind.
func ParseKind(str string) (Kind, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	for n, name := range kindNames {
		if name == str {
			return Kind(n), nil
		}
	}
	return KindPing, fmt.Errorf("unknown command %q", str)
}

// Command is a decoded host command.
type Command struct {
	Kind  Kind
	Value int64
	Data  []byte
}

// String implements Stringer.
func (c Command) String() string {
	return fmt.Sprintf("%s(%d, %dB)", c.Kind, c.Value, len(c.Data))
}

// Encode serializes a command as a protobuf Struct document.
func Encode(cmd Command) ([]byte, error) {
	doc, err := structpb.NewStruct(map[string]interface{}{
		"kind":  cmd.Kind.String(),
		"value": float64(cmd.Value),
		"data":  base64.StdEncoding.EncodeToString(cmd.Data),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(doc)
}

// Decode parses a command encoded by Encode.
func Decode(data []byte) (cmd Command, err error) {
	var doc structpb.Struct
	if err = proto.Unmarshal(data, &doc); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	fields := doc.GetFields()
	kind, ok := fields["kind"]
	if !ok {
		return cmd, fmt.Errorf("%w: missing kind", ErrBadCommand)
	}
	if cmd.Kind, err = ParseKind(kind.GetStringValue()); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	cmd.Value = int64(fields["value"].GetNumberValue())
	if encoded := fields["data"].GetStringValue(); encoded != "" {
		if cmd.Data, err = base64.StdEncoding.DecodeString(encoded); err != nil {
			return cmd, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
	}
	return cmd, nil
}

// Tag maps a command to the subsystem handling it on either half.
func Tag(kind Kind) messages.Tag {
	switch kind {
	case KindFirmwareUpdate:
		return messages.TagFirmwareUpdate
	case KindSetRGB, KindSetBacklight:
		return messages.TagRGB
	case KindKeymap:
		return messages.TagKeys
	}
	return messages.TagUSB
}

// Payload converts a command to its interboard payload.
func Payload(cmd Command) (messages.Payload, error) {
	data, err := Encode(cmd)
	if err != nil {
		return messages.Payload{}, err
	}
	return messages.Payload{Tag: Tag(cmd.Kind), Data: data}, nil
}

// FromPayload decodes the command carried by a payload.
func FromPayload(payload messages.Payload) (Command, error) {
	return Decode(payload.Data)
}
